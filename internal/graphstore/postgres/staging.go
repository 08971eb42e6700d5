package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zenzeng/endgameos/internal/graphstore"
)

// AddToStaging implements [graphstore.Store]. Staging is additive; writes are
// insert-ignore on primary key so re-ingesting the same file is idempotent.
func (s *Store) AddToStaging(ctx context.Context, userID string, nodes []graphstore.Node, edges []graphstore.Edge, sourceFile string) error {
	for _, n := range nodes {
		n.UserID = userID
		n.SourceFile = sourceFile
		if n.Status == "" {
			n.Status = graphstore.StatusPending
		}
		if err := s.insertStagingNode(ctx, n); err != nil {
			return fmt.Errorf("graphstore: add to staging: %w", err)
		}
	}
	for _, e := range edges {
		e.UserID = userID
		if err := s.insertStagingEdge(ctx, e); err != nil {
			return fmt.Errorf("graphstore: add to staging: %w", err)
		}
	}
	return nil
}

func (s *Store) insertStagingNode(ctx context.Context, n graphstore.Node) error {
	attrsJSON, err := json.Marshal(n.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	timeJSON, err := json.Marshal(n.TimeMetadata)
	if err != nil {
		return fmt.Errorf("marshal time metadata: %w", err)
	}

	const q = `
		INSERT INTO staging_nodes
		    (id, user_id, type, name, content, attributes, status, time_metadata,
		     strategic_role, energy_impact, alignment_score, source_file, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (id) DO NOTHING`

	alignment := n.AlignmentScore
	if alignment == 0 {
		alignment = graphstore.DefaultAlignmentScore(n.Type)
	}

	_, err = s.pool.Exec(ctx, q,
		n.ID, n.UserID, n.Type, n.Name, n.Content, attrsJSON, n.Status, timeJSON,
		n.StrategicRole, n.EnergyImpact, alignment, n.SourceFile,
	)
	return err
}

func (s *Store) insertStagingEdge(ctx context.Context, e graphstore.Edge) error {
	propsJSON, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}

	const q = `
		INSERT INTO staging_edges (source, target, relation, user_id, properties, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (source, target, relation, user_id) DO NOTHING`

	_, err = s.pool.Exec(ctx, q, e.Source, e.Target, e.Relation, e.UserID, propsJSON)
	return err
}

// GetStaging implements [graphstore.Store].
func (s *Store) GetStaging(ctx context.Context, userID string) (graphstore.GraphData, error) {
	const nq = `
		SELECT id, user_id, type, name, content, attributes, status, time_metadata,
		       strategic_role, energy_impact, alignment_score, source_file, created_at
		FROM   staging_nodes
		WHERE  user_id = $1
		ORDER  BY created_at`

	nrows, err := s.pool.Query(ctx, nq, userID)
	if err != nil {
		return graphstore.GraphData{}, fmt.Errorf("graphstore: get staging: %w", err)
	}
	nodes, err := collectNodes(nrows)
	if err != nil {
		return graphstore.GraphData{}, fmt.Errorf("graphstore: get staging: %w", err)
	}

	const eq = `
		SELECT source, target, relation, user_id, properties, created_at
		FROM   staging_edges
		WHERE  user_id = $1
		ORDER  BY created_at`

	erows, err := s.pool.Query(ctx, eq, userID)
	if err != nil {
		return graphstore.GraphData{}, fmt.Errorf("graphstore: get staging: %w", err)
	}
	edges, err := collectEdges(erows)
	if err != nil {
		return graphstore.GraphData{}, fmt.Errorf("graphstore: get staging: %w", err)
	}

	return graphstore.GraphData{Nodes: nodes, Links: edges}, nil
}

// CommitStaging implements [graphstore.Store]. When nodeIDs is nil, every
// staged node and edge is promoted. When a subset is given, only edges whose
// both endpoints are in the subset are promoted; the rest remain staged.
func (s *Store) CommitStaging(ctx context.Context, userID string, nodeIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graphstore: commit staging: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var idFilter string
	var args []any
	args = append(args, userID)
	if len(nodeIDs) > 0 {
		args = append(args, nodeIDs)
		idFilter = " AND id = ANY($2::text[])"
	}

	promoteNodesQ := fmt.Sprintf(`
		INSERT INTO nodes
		    (id, user_id, type, name, content, attributes, status, time_metadata,
		     strategic_role, energy_impact, alignment_score, source_file, created_at)
		SELECT id, user_id, type, name, content, attributes, 'confirmed', time_metadata,
		       strategic_role, energy_impact, alignment_score, source_file, created_at
		FROM   staging_nodes
		WHERE  user_id = $1%s
		ON CONFLICT (id) DO UPDATE SET
		    content         = CASE WHEN EXCLUDED.content = '' THEN nodes.content ELSE EXCLUDED.content END,
		    attributes      = EXCLUDED.attributes,
		    status          = 'confirmed',
		    strategic_role  = EXCLUDED.strategic_role,
		    energy_impact   = EXCLUDED.energy_impact,
		    alignment_score = EXCLUDED.alignment_score`, idFilter)

	if _, err := tx.Exec(ctx, promoteNodesQ, args...); err != nil {
		return fmt.Errorf("graphstore: commit staging: promote nodes: %w", err)
	}

	var edgeQ string
	var edgeArgs []any
	if len(nodeIDs) == 0 {
		edgeQ = `
			INSERT INTO edges (source, target, relation, user_id, properties, created_at)
			SELECT source, target, relation, user_id, properties, created_at
			FROM   staging_edges WHERE user_id = $1
			ON CONFLICT (source, target, relation, user_id) DO NOTHING`
		edgeArgs = []any{userID}
	} else {
		edgeQ = `
			INSERT INTO edges (source, target, relation, user_id, properties, created_at)
			SELECT source, target, relation, user_id, properties, created_at
			FROM   staging_edges
			WHERE  user_id = $1 AND source = ANY($2::text[]) AND target = ANY($2::text[])
			ON CONFLICT (source, target, relation, user_id) DO NOTHING`
		edgeArgs = []any{userID, nodeIDs}
	}
	if _, err := tx.Exec(ctx, edgeQ, edgeArgs...); err != nil {
		return fmt.Errorf("graphstore: commit staging: promote edges: %w", err)
	}

	if len(nodeIDs) == 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM staging_edges WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("graphstore: commit staging: clear staged edges: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM staging_nodes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("graphstore: commit staging: clear staged nodes: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `DELETE FROM staging_edges WHERE user_id = $1 AND source = ANY($2::text[]) AND target = ANY($2::text[])`, userID, nodeIDs); err != nil {
			return fmt.Errorf("graphstore: commit staging: clear staged edges: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM staging_nodes WHERE user_id = $1 AND id = ANY($2::text[])`, userID, nodeIDs); err != nil {
			return fmt.Errorf("graphstore: commit staging: clear staged nodes: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("graphstore: commit staging: commit: %w", err)
	}
	return nil
}

// MergeStaging implements [graphstore.Store].
func (s *Store) MergeStaging(ctx context.Context, userID, sourceID, targetID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graphstore: merge staging: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO staging_edges (source, target, relation, user_id, properties, created_at)
		SELECT $3, target, relation, user_id, properties, created_at
		FROM   staging_edges WHERE user_id = $1 AND source = $2
		ON CONFLICT (source, target, relation, user_id) DO NOTHING`, userID, sourceID, targetID); err != nil {
		return fmt.Errorf("graphstore: merge staging: rewrite source: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO staging_edges (source, target, relation, user_id, properties, created_at)
		SELECT source, $3, relation, user_id, properties, created_at
		FROM   staging_edges WHERE user_id = $1 AND target = $2
		ON CONFLICT (source, target, relation, user_id) DO NOTHING`, userID, sourceID, targetID); err != nil {
		return fmt.Errorf("graphstore: merge staging: rewrite target: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM staging_edges WHERE user_id = $1 AND (source = $2 OR target = $2)`, userID, sourceID); err != nil {
		return fmt.Errorf("graphstore: merge staging: drop stale edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM staging_nodes WHERE user_id = $1 AND id = $2`, userID, sourceID); err != nil {
		return fmt.Errorf("graphstore: merge staging: delete source node: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("graphstore: merge staging: commit: %w", err)
	}
	return nil
}

// UpdateStagingNode implements [graphstore.Store].
func (s *Store) UpdateStagingNode(ctx context.Context, userID, nodeID string, node graphstore.Node) error {
	attrsJSON, err := json.Marshal(node.Attributes)
	if err != nil {
		return fmt.Errorf("graphstore: update staging node: marshal attributes: %w", err)
	}

	const q = `
		UPDATE staging_nodes
		SET    name       = CASE WHEN $3 = '' THEN name ELSE $3 END,
		       content    = CASE WHEN $4 = '' THEN content ELSE $4 END,
		       attributes = attributes || $5::jsonb
		WHERE  id = $1 AND user_id = $2`

	tag, err := s.pool.Exec(ctx, q, nodeID, userID, node.Name, node.Content, attrsJSON)
	if err != nil {
		return fmt.Errorf("graphstore: update staging node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return graphstore.ErrNotFound
	}
	return nil
}

// DeleteStagingNode implements [graphstore.Store].
func (s *Store) DeleteStagingNode(ctx context.Context, userID, nodeID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graphstore: delete staging node: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM staging_edges WHERE user_id = $1 AND (source = $2 OR target = $2)`, userID, nodeID); err != nil {
		return fmt.Errorf("graphstore: delete staging node: edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM staging_nodes WHERE user_id = $1 AND id = $2`, userID, nodeID); err != nil {
		return fmt.Errorf("graphstore: delete staging node: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("graphstore: delete staging node: commit: %w", err)
	}
	return nil
}

// ClearStaging implements [graphstore.Store].
func (s *Store) ClearStaging(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM staging_edges WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("graphstore: clear staging: edges: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM staging_nodes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("graphstore: clear staging: nodes: %w", err)
	}
	return nil
}

// ClearAll implements [graphstore.Store]. Only the graph and experience
// tables owned by this store are touched; H3 persona/protocol collaborator
// state is out of scope.
func (s *Store) ClearAll(ctx context.Context, userID string) error {
	if err := s.ClearGraphOnly(ctx, userID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM experiences WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("graphstore: clear all: experiences: %w", err)
	}
	return nil
}

// ClearGraphOnly implements [graphstore.Store].
func (s *Store) ClearGraphOnly(ctx context.Context, userID string) error {
	if err := s.ClearStaging(ctx, userID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM edges WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("graphstore: clear graph: edges: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM nodes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("graphstore: clear graph: nodes: %w", err)
	}
	return nil
}
