package perception

import (
	"context"
	"log/slog"
	"math"

	"github.com/zenzeng/endgameos/pkg/provider/embeddings"
	"github.com/zenzeng/endgameos/pkg/provider/llm"
	"github.com/zenzeng/endgameos/pkg/types"
)

// config holds optional tunables for Layer.
type config struct {
	dimension int
	logger    *slog.Logger
}

// Option configures a Layer.
type Option func(*config)

// WithLogger sets the logger used for backend-failure diagnostics.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Layer is the perception layer: one embedding backend, one extraction
// backend, no stored state. A single instance may be shared across
// goroutines — both provider interfaces require concurrent safety from
// their implementations.
type Layer struct {
	embedder  embeddings.Provider
	extractor llm.Provider
	dimension int
	logger    *slog.Logger
}

// New constructs a Layer over the given embedding and extraction backends.
// The embedder's reported Dimensions() is used as the zero-vector fallback
// width when embedding fails.
func New(embedder embeddings.Provider, extractor llm.Provider, opts ...Option) *Layer {
	cfg := &config{dimension: embedder.Dimensions(), logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}
	return &Layer{
		embedder:  embedder,
		extractor: extractor,
		dimension: cfg.dimension,
		logger:    cfg.logger,
	}
}

// EmbedBatch embeds texts in a single backend call. On any failure it logs
// the error and returns one zero-vector of the configured dimension per
// input text, so the ingestion/chat pipeline can continue rather than abort.
func (l *Layer) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	vectors, err := l.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		l.logger.Error("perception: embed batch failed, returning zero vectors", "error", err, "count", len(texts))
		return zeroVectors(len(texts), l.dimension)
	}
	return vectors
}

func zeroVectors(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
	}
	return out
}

// ComputeSimilarity returns the cosine similarity of a and b in [-1, 1].
// Returns 0 if either vector is empty or has zero norm.
func (l *Layer) ComputeSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SummarizeText asks the extraction backend to summarize text. If prompt is
// empty a default "summarize the following" instruction is used. On any
// backend failure it falls back to a truncated prefix of text.
func (l *Layer) SummarizeText(ctx context.Context, text string, prompt string) string {
	if prompt == "" {
		prompt = "Summarize the following content:\n" + text
	}
	resp, err := l.extractor.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	})
	if err != nil || resp == nil {
		l.logger.Error("perception: summarize failed, falling back to truncation", "error", err)
		return truncate(text, 150)
	}
	return resp.Content
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
