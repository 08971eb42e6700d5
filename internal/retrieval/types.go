// Package retrieval composes the per-turn context blob the external agent
// layer consumes: recent vector recall, structured or concept recall,
// strategy guidance, and an alignment note, fanned out concurrently and
// joined in a fixed order. It never interprets the resulting text itself —
// that is the agent's job.
package retrieval

import (
	"log/slog"
	"time"

	"github.com/zenzeng/endgameos/internal/config"
	"github.com/zenzeng/endgameos/internal/evolution"
	"github.com/zenzeng/endgameos/internal/graphstore"
	"github.com/zenzeng/endgameos/internal/observe"
	"github.com/zenzeng/endgameos/internal/perception"
	"github.com/zenzeng/endgameos/internal/vectorstore"
)

// Section limits, per the fixed assembly contract.
const (
	defaultDocumentLimit = 10
	projectLimit         = 15
	taskLimit            = 20
	goalLimit            = 5

	// conceptSimilarityThreshold is the minimum cosine similarity a single
	// concept match must clear to be worth surfacing when the query carries
	// no graph-search keyword.
	conceptSimilarityThreshold = 0.7
)

// Assembler concurrently fetches every data-dependent context section and
// joins them in a fixed order.
type Assembler struct {
	graph      graphstore.Store
	vectors    vectorstore.Store
	perception *perception.Layer
	evolution  *evolution.Service
	attention  config.AttentionConfig
	metrics    *observe.Metrics
	logger     *slog.Logger

	clock func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// withClock overrides the time source used for the current-time section.
// Test-only.
func withClock(fn func() time.Time) Option {
	return func(a *Assembler) { a.clock = fn }
}

// New constructs an Assembler over the graph and vector stores, the
// perception layer (for query embedding and the alignment call), and the
// evolution service (for strategy guidance).
func New(graph graphstore.Store, vectors vectorstore.Store, p *perception.Layer, evo *evolution.Service, attention config.AttentionConfig, opts ...Option) *Assembler {
	a := &Assembler{
		graph:      graph,
		vectors:    vectors,
		perception: p,
		evolution:  evo,
		attention:  attention,
		metrics:    observe.DefaultMetrics(),
		logger:     slog.Default(),
		clock:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}
