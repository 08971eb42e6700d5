// Package evolution implements the self-evolution loop: a per-turn
// micro-evolution that turns one interaction into an optional strategy, and
// a nightly reflect-strategize cycle that mines a day of logs for recurring
// patterns. Both converge on the same output — an Experience persisted to
// the graph and vector stores — which [Service.GetGuidance] later retrieves
// to steer future responses.
package evolution

import (
	"log/slog"
	"time"

	"github.com/zenzeng/endgameos/internal/config"
	"github.com/zenzeng/endgameos/internal/graphstore"
	"github.com/zenzeng/endgameos/internal/observe"
	"github.com/zenzeng/endgameos/internal/vectorstore"
	"github.com/zenzeng/endgameos/pkg/provider/embeddings"
	"github.com/zenzeng/endgameos/pkg/provider/llm"
)

// guidanceResults is how many nearest experiences GetGuidance returns.
const guidanceResults = 3

// reflectorLogCap bounds how many of yesterday's logs are fed to the
// reflector prompt, to keep the nightly cycle's token usage bounded.
const reflectorLogCap = 50

// Service evolves the Self's behavior by distilling interactions and daily
// logs into Experience records. All methods are safe for concurrent use.
type Service struct {
	graph    graphstore.Store
	vectors  vectorstore.Store
	embedder embeddings.Provider
	reasoner llm.Provider
	cfg      config.EvolutionConfig
	metrics  *observe.Metrics
	logger   *slog.Logger

	clock func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// withClock overrides the time source used to find "yesterday". Test-only.
func withClock(fn func() time.Time) Option {
	return func(s *Service) { s.clock = fn }
}

// New constructs a Service over the given stores, embedding backend, and
// reasoning backend (the LLM used for self-attribution, reflection, and
// strategizing).
func New(graph graphstore.Store, vectors vectorstore.Store, embedder embeddings.Provider, reasoner llm.Provider, cfg config.EvolutionConfig, opts ...Option) *Service {
	s := &Service{
		graph:    graph,
		vectors:  vectors,
		embedder: embedder,
		reasoner: reasoner,
		cfg:      cfg,
		metrics:  observe.DefaultMetrics(),
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// reflection is one Reflector-identified improvement point.
type reflection struct {
	trigger string
	insight string
}
