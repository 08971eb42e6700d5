package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zenzeng/endgameos/internal/graphstore"
)

// UpsertNode implements [graphstore.Store].
func (s *Store) UpsertNode(ctx context.Context, userID string, node graphstore.Node) (graphstore.Node, error) {
	node.UserID = userID
	switch node.Type {
	case graphstore.TypeSelf:
		node.ID = graphstore.SelfID(userID)
	case graphstore.TypeVision:
		node.ID = graphstore.VisionID(userID)
	default:
		if node.ID == "" && node.Name != "" {
			node.ID = graphstore.StableID(node.Name)
		}
	}
	if node.ID == "" {
		return graphstore.Node{}, fmt.Errorf("graphstore: upsert node: %w: empty id", graphstore.ErrValidation)
	}
	if node.Status == "" {
		node.Status = graphstore.StatusConfirmed
	}

	attrsJSON, err := json.Marshal(node.Attributes)
	if err != nil {
		return graphstore.Node{}, fmt.Errorf("graphstore: marshal attributes: %w", err)
	}
	timeJSON, err := json.Marshal(node.TimeMetadata)
	if err != nil {
		return graphstore.Node{}, fmt.Errorf("graphstore: marshal time metadata: %w", err)
	}

	const q = `
		INSERT INTO nodes
		    (id, user_id, type, name, content, attributes, status, time_metadata,
		     strategic_role, energy_impact, alignment_score, source_file, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (id) DO UPDATE SET
		    type            = EXCLUDED.type,
		    name            = EXCLUDED.name,
		    content         = CASE WHEN EXCLUDED.content = '' THEN nodes.content ELSE EXCLUDED.content END,
		    attributes      = EXCLUDED.attributes,
		    status          = EXCLUDED.status,
		    time_metadata   = EXCLUDED.time_metadata,
		    strategic_role  = EXCLUDED.strategic_role,
		    energy_impact   = EXCLUDED.energy_impact,
		    alignment_score = EXCLUDED.alignment_score,
		    source_file     = EXCLUDED.source_file
		RETURNING id, user_id, type, name, content, attributes, status, time_metadata,
		          strategic_role, energy_impact, alignment_score, source_file, created_at`

	rows, err := s.pool.Query(ctx, q,
		node.ID, node.UserID, node.Type, node.Name, node.Content, attrsJSON,
		node.Status, timeJSON, node.StrategicRole, node.EnergyImpact,
		node.AlignmentScore, node.SourceFile,
	)
	if err != nil {
		return graphstore.Node{}, fmt.Errorf("graphstore: upsert node: %w", err)
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return graphstore.Node{}, fmt.Errorf("graphstore: upsert node: %w", err)
	}
	if len(nodes) == 0 {
		return graphstore.Node{}, fmt.Errorf("graphstore: upsert node: no row returned")
	}
	return nodes[0], nil
}

// BatchUpsertEntities implements [graphstore.Store]. Per-entity failures are
// logged and skipped and do not abort the batch; the returned slice contains
// only the entities that succeeded.
func (s *Store) BatchUpsertEntities(ctx context.Context, userID string, entities []graphstore.Entity) ([]graphstore.Node, error) {
	results := make([]graphstore.Node, 0, len(entities))
	for _, e := range entities {
		if e.Name == "" {
			slog.Warn("graphstore: batch upsert: skipping entity with empty name", "user_id", userID)
			continue
		}
		id := graphstore.StableID(e.Name)

		existing, err := s.getNodeByID(ctx, userID, id)
		if err != nil && err != graphstore.ErrNotFound {
			slog.Warn("graphstore: batch upsert: lookup failed, skipping entity", "error", err, "name", e.Name)
			continue
		}

		merged := mergeDossier(existing.Attributes, e.Dossier)

		status := e.Status
		if status == "" {
			status = graphstore.StatusConfirmed
		}
		alignment := e.AlignmentScore
		if alignment == 0 {
			alignment = graphstore.DefaultAlignmentScore(e.Type)
		}

		node := graphstore.Node{
			ID:             id,
			UserID:         userID,
			Type:           e.Type,
			Name:           e.Name,
			Content:        e.Content,
			Attributes:     merged,
			Status:         status,
			EnergyImpact:   e.EnergyImpact,
			AlignmentScore: alignment,
			SourceFile:     e.SourceFile,
		}

		written, err := s.UpsertNode(ctx, userID, node)
		if err != nil {
			slog.Warn("graphstore: batch upsert: write failed, skipping entity", "error", err, "name", e.Name)
			continue
		}
		results = append(results, written)
	}
	return results, nil
}

// mergeDossier merges incoming attribute values into existing, taking the
// union of list-valued entries and overwriting scalar ones.
func mergeDossier(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		incomingList, incomingIsList := v.([]any)
		existingList, existingIsList := merged[k].([]any)
		if incomingIsList && existingIsList {
			merged[k] = unionAny(existingList, incomingList)
			continue
		}
		merged[k] = v
	}
	return merged
}

// unionAny returns the union of a and b, preserving a's order and appending
// novel elements from b, comparing by fmt.Sprint equality.
func unionAny(a, b []any) []any {
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[fmt.Sprint(v)] = struct{}{}
	}
	result := append([]any{}, a...)
	for _, v := range b {
		key := fmt.Sprint(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, v)
	}
	return result
}

// getNodeByID returns ErrNotFound when the node does not exist.
func (s *Store) getNodeByID(ctx context.Context, userID, id string) (graphstore.Node, error) {
	const q = `
		SELECT id, user_id, type, name, content, attributes, status, time_metadata,
		       strategic_role, energy_impact, alignment_score, source_file, created_at
		FROM   nodes
		WHERE  id = $1 AND user_id = $2`

	rows, err := s.pool.Query(ctx, q, id, userID)
	if err != nil {
		return graphstore.Node{}, fmt.Errorf("graphstore: get node: %w", err)
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return graphstore.Node{}, fmt.Errorf("graphstore: get node: %w", err)
	}
	if len(nodes) == 0 {
		return graphstore.Node{}, graphstore.ErrNotFound
	}
	return nodes[0], nil
}

// AddLog implements [graphstore.Store]. The log type is stored as the node's
// name; the timestamp is recorded in attributes.
func (s *Store) AddLog(ctx context.Context, userID, logID, content string, timestamp time.Time, logType string) error {
	node := graphstore.Node{
		ID:      logID,
		Type:    graphstore.TypeLog,
		Name:    logType,
		Content: content,
		Attributes: map[string]any{
			"timestamp": timestamp.Format(time.RFC3339),
		},
	}
	_, err := s.UpsertNode(ctx, userID, node)
	if err != nil {
		return fmt.Errorf("graphstore: add log: %w", err)
	}
	return nil
}

// GetNodesByType implements [graphstore.Store].
func (s *Store) GetNodesByType(ctx context.Context, userID string, t graphstore.NodeType) ([]graphstore.Node, error) {
	const q = `
		SELECT id, user_id, type, name, content, attributes, status, time_metadata,
		       strategic_role, energy_impact, alignment_score, source_file, created_at
		FROM   nodes
		WHERE  user_id = $1 AND type = $2
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, userID, t)
	if err != nil {
		return nil, fmt.Errorf("graphstore: get nodes by type: %w", err)
	}
	return collectNodes(rows)
}

// GetSubEntities implements [graphstore.Store].
func (s *Store) GetSubEntities(ctx context.Context, userID, parentID string, relation graphstore.Relation) ([]graphstore.Node, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	parentArg := next(parentID)
	userArg := next(userID)
	relFilter := ""
	if relation != "" {
		relFilter = "\n  AND e.relation = " + next(relation)
	}

	q := fmt.Sprintf(`
		SELECT n.id, n.user_id, n.type, n.name, n.content, n.attributes, n.status,
		       n.time_metadata, n.strategic_role, n.energy_impact, n.alignment_score,
		       n.source_file, n.created_at
		FROM   nodes n
		JOIN   edges e ON e.target = n.id
		WHERE  e.source = %s AND e.user_id = %s%s
		ORDER  BY n.created_at`, parentArg, userArg, relFilter)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: get sub entities: %w", err)
	}
	return collectNodes(rows)
}

// collectNodes scans pgx rows into a slice of Node values.
func collectNodes(rows pgx.Rows) ([]graphstore.Node, error) {
	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graphstore.Node, error) {
		var (
			n         graphstore.Node
			attrsJSON []byte
			timeJSON  []byte
		)
		if err := row.Scan(
			&n.ID, &n.UserID, &n.Type, &n.Name, &n.Content, &attrsJSON, &n.Status,
			&timeJSON, &n.StrategicRole, &n.EnergyImpact, &n.AlignmentScore,
			&n.SourceFile, &n.CreatedAt,
		); err != nil {
			return graphstore.Node{}, err
		}
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &n.Attributes); err != nil {
				return graphstore.Node{}, fmt.Errorf("unmarshal node attributes: %w", err)
			}
		}
		if n.Attributes == nil {
			n.Attributes = map[string]any{}
		}
		if len(timeJSON) > 0 {
			if err := json.Unmarshal(timeJSON, &n.TimeMetadata); err != nil {
				return graphstore.Node{}, fmt.Errorf("unmarshal node time metadata: %w", err)
			}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []graphstore.Node{}
	}
	return nodes, nil
}
