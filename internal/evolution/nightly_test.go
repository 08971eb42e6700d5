package evolution_test

import (
	"context"
	"testing"
	"time"

	"github.com/zenzeng/endgameos/internal/config"
	"github.com/zenzeng/endgameos/internal/evolution"
	"github.com/zenzeng/endgameos/internal/graphstore"
	"github.com/zenzeng/endgameos/internal/graphstore/graphstoremock"
	"github.com/zenzeng/endgameos/internal/vectorstore/vectorstoremock"
	"github.com/zenzeng/endgameos/pkg/provider/embeddings/mock"
	"github.com/zenzeng/endgameos/pkg/provider/llm"
	llmmock "github.com/zenzeng/endgameos/pkg/provider/llm/mock"
)

func TestRunNightlyCycle_NoLogsIsANoOp(t *testing.T) {
	graph := &graphstoremock.Store{}
	vectors := &vectorstoremock.Store{}
	embedder := &mock.Provider{EmbedBatchResult: [][]float32{{0.1}}, DimensionsValue: 1}
	reasoner := &llmmock.Provider{}
	s := evolution.New(graph, vectors, embedder, reasoner, config.EvolutionConfig{NightlyCycleHour: 3})

	if err := s.RunNightlyCycle(context.Background(), "user-1"); err != nil {
		t.Fatalf("RunNightlyCycle: %v", err)
	}
	if len(reasoner.CompleteCalls) != 0 {
		t.Fatal("expected no reasoning calls when there are no logs")
	}
}

func TestRunNightlyCycle_ReflectsAndStrategizes(t *testing.T) {
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	graph := &graphstoremock.Store{
		GetNodesByTypeResult: []graphstore.Node{
			{ID: "log1", Type: graphstore.TypeLog, Content: "worked late again, skipped the gym",
				Attributes: map[string]any{"timestamp": yesterday + "T22:00:00"}},
			{ID: "log2", Type: graphstore.TypeLog, Content: "irrelevant old entry",
				Attributes: map[string]any{"timestamp": "2000-01-01T00:00:00"}},
		},
	}
	vectors := &vectorstoremock.Store{}
	embedder := &mock.Provider{EmbedBatchResult: [][]float32{{0.2}}, DimensionsValue: 1}

	reflectorResponse := "TRIGGER: skipped exercise\nINSIGHT: working past the point of diminishing returns"
	strategistResponse := "stand up and stretch for two minutes before continuing"
	reasoner := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: reflectorResponse},
			{Content: strategistResponse},
		},
	}

	s := evolution.New(graph, vectors, embedder, reasoner, config.EvolutionConfig{NightlyCycleHour: 3})

	if err := s.RunNightlyCycle(context.Background(), "user-1"); err != nil {
		t.Fatalf("RunNightlyCycle: %v", err)
	}
	if graph.CallCount("AddExperience") != 1 {
		t.Fatalf("expected one experience recorded, got %d", graph.CallCount("AddExperience"))
	}
}

func TestRunNightlyCycle_ReflectorFindsNothing(t *testing.T) {
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	graph := &graphstoremock.Store{
		GetNodesByTypeResult: []graphstore.Node{
			{ID: "log1", Type: graphstore.TypeLog, Content: "uneventful day",
				Attributes: map[string]any{"timestamp": yesterday + "T10:00:00"}},
		},
	}
	vectors := &vectorstoremock.Store{}
	embedder := &mock.Provider{EmbedBatchResult: [][]float32{{0.1}}, DimensionsValue: 1}
	reasoner := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: ""}}
	s := evolution.New(graph, vectors, embedder, reasoner, config.EvolutionConfig{NightlyCycleHour: 3})

	if err := s.RunNightlyCycle(context.Background(), "user-1"); err != nil {
		t.Fatalf("RunNightlyCycle: %v", err)
	}
	if graph.CallCount("AddExperience") != 0 {
		t.Fatal("expected no experience when reflector surfaces nothing")
	}
}
