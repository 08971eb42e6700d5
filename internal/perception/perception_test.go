package perception_test

import (
	"context"
	"errors"
	"testing"

	"github.com/zenzeng/endgameos/internal/perception"
	"github.com/zenzeng/endgameos/pkg/provider/embeddings/mock"
	llm "github.com/zenzeng/endgameos/pkg/provider/llm"
	llmmock "github.com/zenzeng/endgameos/pkg/provider/llm/mock"
)

func TestEmbedBatch_ReturnsZeroVectorsOnFailure(t *testing.T) {
	embedder := &mock.Provider{
		EmbedBatchErr:   errors.New("backend unavailable"),
		DimensionsValue: 4,
	}
	layer := perception.New(embedder, &llmmock.Provider{})

	vectors := layer.EmbedBatch(context.Background(), []string{"a", "b"})
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	for _, v := range vectors {
		if len(v) != 4 {
			t.Fatalf("expected dimension 4, got %d", len(v))
		}
		for _, f := range v {
			if f != 0 {
				t.Fatalf("expected zero vector, got %v", v)
			}
		}
	}
}

func TestEmbedBatch_PassesThroughOnSuccess(t *testing.T) {
	want := [][]float32{{1, 2, 3}}
	embedder := &mock.Provider{EmbedBatchResult: want, DimensionsValue: 3}
	layer := perception.New(embedder, &llmmock.Provider{})

	got := layer.EmbedBatch(context.Background(), []string{"hello"})
	if len(got) != 1 || got[0][0] != 1 {
		t.Fatalf("expected passthrough result, got %+v", got)
	}
}

func TestComputeSimilarity(t *testing.T) {
	layer := perception.New(&mock.Provider{}, &llmmock.Provider{})

	if got := layer.ComputeSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors: expected ~1.0, got %v", got)
	}
	if got := layer.ComputeSimilarity([]float32{1, 0}, []float32{0, 1}); got > 0.001 || got < -0.001 {
		t.Errorf("orthogonal vectors: expected ~0.0, got %v", got)
	}
	if got := layer.ComputeSimilarity(nil, []float32{1}); got != 0 {
		t.Errorf("empty vector: expected 0, got %v", got)
	}
}

func TestExtractStructuredMemory_SelfCoercion(t *testing.T) {
	extractor := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"entities":[{"name":"user-1","type":"Concept","content":"talked about himself"}],"relations":[]}`,
		},
	}
	layer := perception.New(&mock.Provider{}, extractor)

	result, err := layer.ExtractStructuredMemory(context.Background(), "I am building a startup", "user-1", "")
	if err != nil {
		t.Fatalf("ExtractStructuredMemory: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Type != "Self" {
		t.Fatalf("expected entity named user-1 coerced to type Self, got %+v", result.Entities)
	}
}

func TestExtractStructuredMemory_StripsCodeFence(t *testing.T) {
	extractor := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "```json\n{\"entities\":[],\"relations\":[]}\n```",
		},
	}
	layer := perception.New(&mock.Provider{}, extractor)

	result, err := layer.ExtractStructuredMemory(context.Background(), "hello", "user-1", "")
	if err != nil {
		t.Fatalf("ExtractStructuredMemory: %v", err)
	}
	if len(result.Entities) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestExtractStructuredMemory_BackendError(t *testing.T) {
	extractor := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	layer := perception.New(&mock.Provider{}, extractor)

	_, err := layer.ExtractStructuredMemory(context.Background(), "hello", "user-1", "")
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestExtractStructuredMemoryLargeModel(t *testing.T) {
	extractor := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"nodes":[{"id":"n1","type":"Project","name":"Launch","content":"ship v1"}],"edges":[]}`,
		},
	}
	layer := perception.New(&mock.Provider{}, extractor)

	result, err := layer.ExtractStructuredMemoryLargeModel(context.Background(), "dumped chat log", "build a company")
	if err != nil {
		t.Fatalf("ExtractStructuredMemoryLargeModel: %v", err)
	}
	if len(result.Nodes) != 1 || result.Nodes[0].ID != "n1" {
		t.Fatalf("expected one node n1, got %+v", result.Nodes)
	}
}

func TestArbitrateMerge_PrefilterSkipsDissimilarNames(t *testing.T) {
	extractor := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"should_merge":true}`},
	}
	layer := perception.New(&mock.Provider{}, extractor)

	result, err := layer.ArbitrateMerge(context.Background(), []string{"Java", "Rust"})
	if err != nil {
		t.Fatalf("ArbitrateMerge: %v", err)
	}
	if result.ShouldMerge {
		t.Fatalf("expected pre-filter to skip dissimilar names without merging")
	}
	if len(extractor.CompleteCalls) != 0 {
		t.Fatalf("expected no LLM call for dissimilar names, got %d calls", len(extractor.CompleteCalls))
	}
}

func TestArbitrateMerge_SimilarNamesConsultBackend(t *testing.T) {
	extractor := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"should_merge":true,"master_name":"Rust","reason":"abbreviation"}`,
		},
	}
	layer := perception.New(&mock.Provider{}, extractor)

	result, err := layer.ArbitrateMerge(context.Background(), []string{"Rust", "RustLang"})
	if err != nil {
		t.Fatalf("ArbitrateMerge: %v", err)
	}
	if !result.ShouldMerge || result.MasterName != "Rust" {
		t.Fatalf("expected merge with master_name Rust, got %+v", result)
	}
	if len(extractor.CompleteCalls) != 1 {
		t.Fatalf("expected exactly one LLM call, got %d", len(extractor.CompleteCalls))
	}
}

func TestArbitrateMerge_SingleNameNeverMerges(t *testing.T) {
	layer := perception.New(&mock.Provider{}, &llmmock.Provider{})
	result, err := layer.ArbitrateMerge(context.Background(), []string{"Solo"})
	if err != nil {
		t.Fatalf("ArbitrateMerge: %v", err)
	}
	if result.ShouldMerge {
		t.Fatal("expected no merge for a single name")
	}
}

func TestSummarizeText_FallsBackOnBackendError(t *testing.T) {
	extractor := &llmmock.Provider{CompleteErr: errors.New("down")}
	layer := perception.New(&mock.Provider{}, extractor)

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	got := layer.SummarizeText(context.Background(), string(long), "")
	if len(got) != 153 { // 150 chars + "..."
		t.Fatalf("expected truncated fallback of length 153, got %d", len(got))
	}
}

func TestSummarizeText_UsesBackendResponse(t *testing.T) {
	extractor := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "a tidy summary"},
	}
	layer := perception.New(&mock.Provider{}, extractor)

	got := layer.SummarizeText(context.Background(), "some long text", "")
	if got != "a tidy summary" {
		t.Fatalf("expected backend summary, got %q", got)
	}
}

func TestConsolidateNodes_MapsAndPrunes(t *testing.T) {
	extractor := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"mapping":{"Xiao Xiong":"Zhang Xiongyi","Zhang Xiongyi":"Zhang Xiongyi"},` +
				`"standard_nodes":[{"name":"Zhang Xiongyi","type":"Person","content":"core collaborator"}]}`,
		},
	}
	layer := perception.New(&mock.Provider{}, extractor)

	result, err := layer.ConsolidateNodes(context.Background(), []perception.NodeSummary{
		{Name: "Xiao Xiong", Type: "Person", Content: "mentioned once"},
		{Name: "Zhang Xiongyi", Type: "Person", Content: "mentioned formally"},
	}, "build a company")
	if err != nil {
		t.Fatalf("ConsolidateNodes: %v", err)
	}
	if result.Mapping["Xiao Xiong"] != "Zhang Xiongyi" {
		t.Fatalf("expected nickname mapped to standard name, got %+v", result.Mapping)
	}
	if len(result.StandardNodes) != 1 {
		t.Fatalf("expected one standard node, got %+v", result.StandardNodes)
	}
}

func TestConsolidateNodes_EmptyInputSkipsCall(t *testing.T) {
	extractor := &llmmock.Provider{}
	layer := perception.New(&mock.Provider{}, extractor)

	result, err := layer.ConsolidateNodes(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("ConsolidateNodes: %v", err)
	}
	if len(result.StandardNodes) != 0 || len(extractor.CompleteCalls) != 0 {
		t.Fatalf("expected no-op for empty input, got %+v calls=%d", result, len(extractor.CompleteCalls))
	}
}

func TestScoreAlignment_UsesBackendResponse(t *testing.T) {
	extractor := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"score":0.9,"reason":"directly advances the plan"}`},
	}
	layer := perception.New(&mock.Provider{}, extractor)

	result := layer.ScoreAlignment(context.Background(), "I shipped the landing page", "launch a startup")
	if result.Score != 0.9 || result.Reason != "directly advances the plan" {
		t.Fatalf("expected backend result, got %+v", result)
	}
}

func TestScoreAlignment_EmptyVisionReturnsDefault(t *testing.T) {
	extractor := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"score":0.9,"reason":"n/a"}`}}
	layer := perception.New(&mock.Provider{}, extractor)

	result := layer.ScoreAlignment(context.Background(), "anything", "")
	if result.Score != 0.5 || result.Reason != "unknown" {
		t.Fatalf("expected neutral default with no vision text, got %+v", result)
	}
	if len(extractor.CompleteCalls) != 0 {
		t.Fatal("expected no backend call when vision text is empty")
	}
}

func TestScoreAlignment_BackendErrorReturnsDefault(t *testing.T) {
	extractor := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	layer := perception.New(&mock.Provider{}, extractor)

	result := layer.ScoreAlignment(context.Background(), "anything", "launch a startup")
	if result.Score != 0.5 || result.Reason != "unknown" {
		t.Fatalf("expected neutral default on backend error, got %+v", result)
	}
}

func TestScoreAlignment_OutOfRangeScoreReturnsDefault(t *testing.T) {
	extractor := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"score":1.5,"reason":"bad"}`}}
	layer := perception.New(&mock.Provider{}, extractor)

	result := layer.ScoreAlignment(context.Background(), "anything", "launch a startup")
	if result.Score != 0.5 || result.Reason != "unknown" {
		t.Fatalf("expected neutral default for out-of-range score, got %+v", result)
	}
}
