package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zenzeng/endgameos/internal/graphstore"
)

// SelfHeal implements [graphstore.Store]. Self and Vision are modeled as
// singletons per user, but extraction can race and produce duplicate rows
// before the canonical id convention settles. SelfHeal finds any extra
// Self/Vision nodes, merges their attributes, concatenates any non-empty
// content, and redirects edges into the canonical id, then deletes the
// duplicates — in both the canonical and staging tables. Calling it when no
// duplicates exist is a no-op.
func (s *Store) SelfHeal(ctx context.Context, userID string) error {
	canonicalSelf := graphstore.SelfID(userID)
	canonicalVision := graphstore.VisionID(userID)

	if err := s.healType(ctx, userID, graphstore.TypeSelf, canonicalSelf, "nodes", "edges"); err != nil {
		return fmt.Errorf("graphstore: self heal: self: %w", err)
	}
	if err := s.healType(ctx, userID, graphstore.TypeVision, canonicalVision, "nodes", "edges"); err != nil {
		return fmt.Errorf("graphstore: self heal: vision: %w", err)
	}
	if err := s.healType(ctx, userID, graphstore.TypeSelf, canonicalSelf, "staging_nodes", "staging_edges"); err != nil {
		return fmt.Errorf("graphstore: self heal: staging self: %w", err)
	}
	if err := s.healType(ctx, userID, graphstore.TypeVision, canonicalVision, "staging_nodes", "staging_edges"); err != nil {
		return fmt.Errorf("graphstore: self heal: staging vision: %w", err)
	}
	return nil
}

// healType merges every node of the given type other than canonicalID into
// canonicalID within the named node/edge tables, using identical table
// shapes to nodes/edges and staging_nodes/staging_edges.
func (s *Store) healType(ctx context.Context, userID string, t graphstore.NodeType, canonicalID, nodeTable, edgeTable string) error {
	q := fmt.Sprintf(`SELECT id, attributes FROM %s WHERE user_id = $1 AND type = $2 AND id != $3`, nodeTable)
	rows, err := s.pool.Query(ctx, q, userID, t, canonicalID)
	if err != nil {
		return err
	}
	type dupRow struct {
		ID         string
		Attributes []byte
	}
	dups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dupRow, error) {
		var d dupRow
		err := row.Scan(&d.ID, &d.Attributes)
		return d, err
	})
	if err != nil {
		return err
	}
	if len(dups) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ensureQ := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, type, name, content, attributes, created_at)
		VALUES ($1, $2, $3, '', '', '{}', now())
		ON CONFLICT (id) DO NOTHING`, nodeTable)
	if _, err := tx.Exec(ctx, ensureQ, canonicalID, userID, t); err != nil {
		return fmt.Errorf("ensure canonical: %w", err)
	}

	for _, d := range dups {
		mergeQ := fmt.Sprintf(`
			UPDATE %s SET
				attributes = attributes || (SELECT attributes FROM %s WHERE id = $2),
				content = CASE
					WHEN content = '' THEN (SELECT content FROM %s WHERE id = $2)
					WHEN (SELECT content FROM %s WHERE id = $2) = '' THEN content
					ELSE content || E'\n' || (SELECT content FROM %s WHERE id = $2)
				END
			WHERE id = $1`, nodeTable, nodeTable, nodeTable, nodeTable, nodeTable)
		if _, err := tx.Exec(ctx, mergeQ, canonicalID, d.ID); err != nil {
			return fmt.Errorf("merge attributes and content: %w", err)
		}

		redirectSrcQ := fmt.Sprintf(`
			INSERT INTO %s (source, target, relation, user_id, properties, created_at)
			SELECT $3, target, relation, user_id, properties, created_at
			FROM   %s WHERE user_id = $1 AND source = $2
			ON CONFLICT (source, target, relation, user_id) DO NOTHING`, edgeTable, edgeTable)
		if _, err := tx.Exec(ctx, redirectSrcQ, userID, d.ID, canonicalID); err != nil {
			return fmt.Errorf("redirect source edges: %w", err)
		}
		redirectTgtQ := fmt.Sprintf(`
			INSERT INTO %s (source, target, relation, user_id, properties, created_at)
			SELECT source, $3, relation, user_id, properties, created_at
			FROM   %s WHERE user_id = $1 AND target = $2
			ON CONFLICT (source, target, relation, user_id) DO NOTHING`, edgeTable, edgeTable)
		if _, err := tx.Exec(ctx, redirectTgtQ, userID, d.ID, canonicalID); err != nil {
			return fmt.Errorf("redirect target edges: %w", err)
		}

		dropEdgesQ := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND (source = $2 OR target = $2)`, edgeTable)
		if _, err := tx.Exec(ctx, dropEdgesQ, userID, d.ID); err != nil {
			return fmt.Errorf("drop stale edges: %w", err)
		}
		dropNodeQ := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND id = $2`, nodeTable)
		if _, err := tx.Exec(ctx, dropNodeQ, userID, d.ID); err != nil {
			return fmt.Errorf("drop duplicate node: %w", err)
		}
	}

	return tx.Commit(ctx)
}
