// Package memoryservice is the cognitive center: per-interaction extraction
// and the status policy that gates what a chat turn writes straight to the
// canonical graph, without the human-gated staging airlock ingestion uses.
package memoryservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zenzeng/endgameos/internal/config"
	"github.com/zenzeng/endgameos/internal/graphstore"
	"github.com/zenzeng/endgameos/internal/observe"
	"github.com/zenzeng/endgameos/internal/perception"
	"github.com/zenzeng/endgameos/internal/vectorstore"
)

// Service is the cognitive center: attention filter, extraction, and direct
// writes to the canonical graph for chat-turn memory.
type Service struct {
	graph      graphstore.Store
	vectors    vectorstore.Store
	perception *perception.Layer
	attention  config.AttentionConfig
	metrics    *observe.Metrics
	logger     *slog.Logger
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

// New constructs a Service over the graph store, vector store, and
// perception layer, gated by the given attention filter configuration.
func New(graph graphstore.Store, vectors vectorstore.Store, p *perception.Layer, attention config.AttentionConfig, opts ...Option) *Service {
	s := &Service{
		graph:      graph,
		vectors:    vectors,
		perception: p,
		attention:  attention,
		metrics:    observe.DefaultMetrics(),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ProcessChatInteraction is the per-turn procedure: it combines one chat
// exchange, embeds and extracts it, applies the status policy, and writes
// directly to the canonical graph. Unlike file ingestion, nothing is staged
// — a chat turn is assumed to be the user's own, already-confirmed account
// of their own life.
//
// If neither half of the exchange passes the attention filter, the call is
// a silent no-op.
func (s *Service) ProcessChatInteraction(ctx context.Context, userID, conversationID, userMsg, aiMsg string) error {
	combined := userMsg + "\n" + aiMsg
	if !PassesAttentionFilter(userMsg, s.attention) && !PassesAttentionFilter(aiMsg, s.attention) {
		return nil
	}

	embedStart := time.Now()
	vectors := s.perception.EmbedBatch(ctx, []string{combined})
	s.metrics.EmbeddingDuration.Record(ctx, time.Since(embedStart).Seconds())
	if len(vectors) == 1 {
		err := s.vectors.AddDocuments(ctx,
			[]string{combined},
			[]map[string]any{{
				"user_id":         userID,
				"type":            "chat",
				"conversation_id": conversationID,
				"timestamp":       time.Now().UTC().Format(time.RFC3339),
			}},
			[]string{fmt.Sprintf("chat_%s_%d", conversationID, time.Now().UnixNano())},
			vectors,
		)
		if err != nil {
			s.logger.Error("memoryservice: write chat document vector failed", "error", err, "user_id", userID)
		}
	}

	strategicContext, err := s.graph.GetStrategicContext(ctx, userID)
	if err != nil {
		s.logger.Warn("memoryservice: strategic context unavailable, extracting without it", "error", err, "user_id", userID)
	}

	extractStart := time.Now()
	extraction, err := s.perception.ExtractStructuredMemory(ctx, combined, userID, strategicContext)
	s.metrics.ExtractionDuration.Record(ctx, time.Since(extractStart).Seconds())
	if err != nil {
		return fmt.Errorf("memoryservice: extract structured memory: %w", err)
	}

	entities := make([]graphstore.Entity, 0, len(extraction.Entities))
	for _, e := range extraction.Entities {
		status := applyStatusPolicy(graphstore.NodeType(e.Type), e.Status)
		entities = append(entities, graphstore.Entity{
			Name:           e.Name,
			Type:           graphstore.NodeType(e.Type),
			Content:        e.Content,
			Status:         status,
			EnergyImpact:   e.EnergyImpact,
			AlignmentScore: alignmentOrDefault(e.AlignmentScore, graphstore.NodeType(e.Type)),
			Dossier:        e.Dossier,
		})
	}

	nodes, err := s.graph.BatchUpsertEntities(ctx, userID, entities)
	if err != nil {
		return fmt.Errorf("memoryservice: batch upsert entities: %w", err)
	}

	for _, n := range nodes {
		if n.Status != graphstore.StatusConfirmed {
			continue
		}
		vec := s.perception.EmbedBatch(ctx, []string{n.Name})
		if len(vec) != 1 {
			continue
		}
		if err := s.vectors.AddConcept(ctx, n.ID, n.Name, vec[0]); err != nil {
			s.logger.Error("memoryservice: write concept vector failed", "error", err, "node_id", n.ID)
		}
	}

	for _, r := range extraction.Relations {
		source := resolveRelationEndpoint(r.Source, userID)
		target := resolveRelationEndpoint(r.Target, userID)
		relation := graphstore.NormalizeRelation(r.Relation)
		if err := s.graph.UpsertEdge(ctx, userID, source, target, relation, nil); err != nil {
			s.logger.Error("memoryservice: upsert edge failed", "error", err, "source", source, "target", target)
		}
	}

	return nil
}

// applyStatusPolicy implements the status policy of the memory service: a
// Task or Person with no explicit status is pending human confirmation;
// everything else is confirmed on arrival, since a chat turn is the user's
// own already-trusted account, not an unverified bulk import.
func applyStatusPolicy(t graphstore.NodeType, explicit string) graphstore.NodeStatus {
	if explicit != "" {
		return graphstore.NodeStatus(explicit)
	}
	if t == graphstore.TypeTask || t == graphstore.TypePerson {
		return graphstore.StatusPending
	}
	return graphstore.StatusConfirmed
}

func alignmentOrDefault(score float64, t graphstore.NodeType) float64 {
	if score != 0 {
		return score
	}
	return graphstore.DefaultAlignmentScore(t)
}

// resolveRelationEndpoint maps a first-person name ("Self", the literal
// userID, or empty) to the canonical Self id; every other name is looked up
// by its stable id, since extraction returns names, not ids.
func resolveRelationEndpoint(name, userID string) string {
	if name == "" {
		return graphstore.StableID("unknown")
	}
	if name == "Self" || name == userID {
		return graphstore.SelfID(userID)
	}
	return graphstore.StableID(name)
}

// SyncUserToSelfNode upserts the canonical Self node for userID with the
// given display name and dossier content. This is the only path by which a
// Self node may be created or updated outside of extraction's own id
// canonicalization — called on login and whenever the user edits their own
// profile.
func (s *Service) SyncUserToSelfNode(ctx context.Context, userID, name, content string) error {
	_, err := s.graph.UpsertNode(ctx, userID, graphstore.Node{
		ID:             graphstore.SelfID(userID),
		Type:           graphstore.TypeSelf,
		Name:           name,
		Content:        content,
		Status:         graphstore.StatusConfirmed,
		AlignmentScore: graphstore.DefaultAlignmentScore(graphstore.TypeSelf),
	})
	if err != nil {
		return fmt.Errorf("memoryservice: sync user to self node: %w", err)
	}
	return nil
}

// SyncVisionNode upserts the canonical Vision node for userID. Called
// whenever the user edits their end-game vision statement.
func (s *Service) SyncVisionNode(ctx context.Context, userID, content string) error {
	_, err := s.graph.UpsertNode(ctx, userID, graphstore.Node{
		ID:             graphstore.VisionID(userID),
		Type:           graphstore.TypeVision,
		Name:           "Vision",
		Content:        content,
		Status:         graphstore.StatusConfirmed,
		AlignmentScore: graphstore.DefaultAlignmentScore(graphstore.TypeVision),
	})
	if err != nil {
		return fmt.Errorf("memoryservice: sync vision node: %w", err)
	}
	return nil
}
