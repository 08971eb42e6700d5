package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zenzeng/endgameos/internal/graphstore"
)

// UpsertEdge implements [graphstore.Store]. The relation is stored verbatim;
// callers apply [graphstore.NormalizeRelation] before calling this if
// vocabulary degradation is desired.
func (s *Store) UpsertEdge(ctx context.Context, userID, source, target string, relation graphstore.Relation, properties map[string]any) error {
	if source == "" || target == "" {
		return fmt.Errorf("graphstore: upsert edge: %w: empty endpoint", graphstore.ErrValidation)
	}
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("graphstore: marshal edge properties: %w", err)
	}

	const q = `
		INSERT INTO edges (source, target, relation, user_id, properties, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (source, target, relation, user_id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, q, source, target, relation, userID, propsJSON); err != nil {
		return fmt.Errorf("graphstore: upsert edge: %w", err)
	}
	return nil
}

// getEdges returns all canonical edges owned by userID.
func (s *Store) getEdges(ctx context.Context, userID string) ([]graphstore.Edge, error) {
	const q = `
		SELECT source, target, relation, user_id, properties, created_at
		FROM   edges
		WHERE  user_id = $1
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("graphstore: get edges: %w", err)
	}
	return collectEdges(rows)
}

// collectEdges scans pgx rows into a slice of Edge values.
func collectEdges(rows pgx.Rows) ([]graphstore.Edge, error) {
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graphstore.Edge, error) {
		var (
			e         graphstore.Edge
			propsJSON []byte
		)
		if err := row.Scan(&e.Source, &e.Target, &e.Relation, &e.UserID, &propsJSON, &e.CreatedAt); err != nil {
			return graphstore.Edge{}, err
		}
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &e.Properties); err != nil {
				return graphstore.Edge{}, fmt.Errorf("unmarshal edge properties: %w", err)
			}
		}
		if e.Properties == nil {
			e.Properties = map[string]any{}
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if edges == nil {
		edges = []graphstore.Edge{}
	}
	return edges, nil
}
