// Package ingest is the file ingestion orchestrator: parse → chunk → map
// (chunk-level extraction) → reduce (pooled consolidation) → embed →
// load (stage). Unlike [memoryservice], nothing it writes reaches the
// canonical graph directly — every node and edge lands in the staging
// mirror for human confirmation via CommitStaging.
package ingest

import (
	"log/slog"

	"github.com/zenzeng/endgameos/internal/config"
	"github.com/zenzeng/endgameos/internal/graphstore"
	"github.com/zenzeng/endgameos/internal/observe"
	"github.com/zenzeng/endgameos/internal/perception"
	"github.com/zenzeng/endgameos/internal/vectorstore"
)

// ProgressFunc is invoked at parse/extract/embed/graph milestones with a
// percentage complete and a human-readable status message.
type ProgressFunc func(percent int, message string)

// Pipeline is the ingestion orchestrator over one graph store, vector
// store, and perception layer.
type Pipeline struct {
	graph      graphstore.Store
	vectors    vectorstore.Store
	perception *perception.Layer
	cfg        config.IngestionConfig
	attention  config.AttentionConfig
	metrics    *observe.Metrics
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New constructs a Pipeline.
func New(graph graphstore.Store, vectors vectorstore.Store, p *perception.Layer, cfg config.IngestionConfig, attention config.AttentionConfig, opts ...Option) *Pipeline {
	pl := &Pipeline{
		graph:      graph,
		vectors:    vectors,
		perception: p,
		cfg:        cfg,
		attention:  attention,
		metrics:    observe.DefaultMetrics(),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(pl)
	}
	return pl
}

// Result summarizes one completed ingestion run.
type Result struct {
	ChunksTotal     int
	ChunksExtracted int
	NodesStaged     int
	EdgesStaged     int
}
