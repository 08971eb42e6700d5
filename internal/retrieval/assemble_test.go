package retrieval_test

import (
	"context"
	"strings"
	"testing"

	"github.com/zenzeng/endgameos/internal/config"
	"github.com/zenzeng/endgameos/internal/evolution"
	"github.com/zenzeng/endgameos/internal/graphstore"
	"github.com/zenzeng/endgameos/internal/graphstore/graphstoremock"
	"github.com/zenzeng/endgameos/internal/perception"
	"github.com/zenzeng/endgameos/internal/retrieval"
	"github.com/zenzeng/endgameos/internal/vectorstore"
	"github.com/zenzeng/endgameos/internal/vectorstore/vectorstoremock"
	"github.com/zenzeng/endgameos/pkg/provider/embeddings/mock"
	"github.com/zenzeng/endgameos/pkg/provider/llm"
	llmmock "github.com/zenzeng/endgameos/pkg/provider/llm/mock"
)

func newTestAssembler(t *testing.T, graph *graphstoremock.Store, vectors *vectorstoremock.Store, reasoner *llmmock.Provider, attention config.AttentionConfig) *retrieval.Assembler {
	t.Helper()
	embedder := &mock.Provider{EmbedBatchResult: [][]float32{{0.3}}, DimensionsValue: 1}
	p := perception.New(embedder, reasoner)
	evo := evolution.New(graph, vectors, embedder, reasoner, config.EvolutionConfig{})
	return retrieval.New(graph, vectors, p, evo, attention)
}

func TestAssemble_IncludesCurrentTimeAndRecall(t *testing.T) {
	graph := &graphstoremock.Store{
		GetNodesByTypeResult: []graphstore.Node{
			{ID: "vision_user-1", Type: graphstore.TypeVision, Content: "build a sustainable startup"},
		},
	}
	vectors := &vectorstoremock.Store{
		SearchDocumentsResult: []vectorstore.DocumentResult{
			{ID: "d1", Content: "launched the MVP", Metadata: map[string]any{"timestamp": "2026-07-20"}},
		},
	}
	reasoner := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"score":0.8,"reason":"on track"}`}}
	a := newTestAssembler(t, graph, vectors, reasoner, config.AttentionConfig{})

	blob, err := a.Assemble(context.Background(), "user-1", "how is the launch going?")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(blob, "Current time:") {
		t.Fatalf("expected current time section, got %q", blob)
	}
	if !strings.Contains(blob, "launched the MVP") {
		t.Fatalf("expected vector recall content, got %q", blob)
	}
	if !strings.Contains(blob, "Alignment: score=0.80 reason=on track") {
		t.Fatalf("expected alignment note, got %q", blob)
	}
}

func TestAssemble_GraphKeywordTriggersStructuredRecall(t *testing.T) {
	graph := &graphstoremock.Store{
		GetNodesByTypeResult: []graphstore.Node{
			{
				ID: "p1", Type: graphstore.TypeProject, Name: "Launch", Content: "ship v1",
				Attributes: map[string]any{"due": "2026-08-01", "priority": "high"},
			},
		},
	}
	vectors := &vectorstoremock.Store{}
	reasoner := &llmmock.Provider{}
	attention := config.AttentionConfig{GraphSearchKeywords: []string{"project"}}
	a := newTestAssembler(t, graph, vectors, reasoner, attention)

	blob, err := a.Assemble(context.Background(), "user-1", "what's the status of my project?")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(blob, "Structured context:") || !strings.Contains(blob, "Launch") {
		t.Fatalf("expected structured recall section, got %q", blob)
	}
	if !strings.Contains(blob, "due: 2026-08-01") || !strings.Contains(blob, "priority: high") {
		t.Fatalf("expected dossier attributes rendered alongside the node, got %q", blob)
	}
	if vectors.CallCount("FindSimilarConcept") != 0 {
		t.Fatal("expected concept recall to be skipped when a graph keyword matches")
	}
}

func TestAssemble_NoKeywordFallsBackToConceptRecall(t *testing.T) {
	graph := &graphstoremock.Store{}
	vectors := &vectorstoremock.Store{
		FindSimilarConceptResult: vectorstore.ConceptMatch{ID: "c1", Name: "discipline", Similarity: 0.9},
		FindSimilarConceptOK:     true,
	}
	reasoner := &llmmock.Provider{}
	a := newTestAssembler(t, graph, vectors, reasoner, config.AttentionConfig{})

	blob, err := a.Assemble(context.Background(), "user-1", "just chatting today")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(blob, "Related concept: discipline") {
		t.Fatalf("expected concept recall section, got %q", blob)
	}
}

func TestAssemble_DegradesToNeutralOnEmptyStores(t *testing.T) {
	graph := &graphstoremock.Store{}
	vectors := &vectorstoremock.Store{}
	reasoner := &llmmock.Provider{}
	a := newTestAssembler(t, graph, vectors, reasoner, config.AttentionConfig{})

	blob, err := a.Assemble(context.Background(), "user-1", "hello")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(blob, "Alignment: score=0.50 reason=unknown") {
		t.Fatalf("expected neutral alignment default, got %q", blob)
	}
}
