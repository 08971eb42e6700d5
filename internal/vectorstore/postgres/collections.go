package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/zenzeng/endgameos/internal/vectorstore"
)

// isBusyErr reports whether err looks like a transient "read-only database"
// or "too many connections" condition worth a single retry.
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "read-only") ||
		strings.Contains(msg, "read only") ||
		strings.Contains(msg, "too many clients") ||
		strings.Contains(msg, "busy")
}

// execRetryOnce runs fn, and on a busy-looking error retries exactly once
// through the circuit breaker. Beyond that the error is surfaced to the
// caller, per the store's batch-skip failure policy.
func (s *Store) execRetryOnce(ctx context.Context, fn func() error) error {
	err := s.breaker.Execute(fn)
	if err != nil && isBusyErr(err) {
		err = s.breaker.Execute(fn)
	}
	return err
}

// AddDocuments implements [vectorstore.Store].
func (s *Store) AddDocuments(ctx context.Context, documents []string, metadatas []map[string]any, ids []string, embeddings [][]float32) error {
	if len(documents) != len(metadatas) || len(documents) != len(ids) || len(documents) != len(embeddings) {
		return fmt.Errorf("vectorstore: add documents: mismatched list lengths")
	}

	return s.execRetryOnce(ctx, func() error {
		batch := &pgx.Batch{}
		for i := range documents {
			meta := metadatas[i]
			if meta == nil {
				meta = map[string]any{}
			}
			metaJSON, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("vectorstore: marshal metadata: %w", err)
			}
			userID, _ := meta["user_id"].(string)
			docType, _ := meta["type"].(string)

			batch.Queue(`
				INSERT INTO documents_collection (id, user_id, doc_type, content, metadata, embedding, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, now())
				ON CONFLICT (id) DO UPDATE SET
				    content   = EXCLUDED.content,
				    metadata  = EXCLUDED.metadata,
				    embedding = EXCLUDED.embedding`,
				ids[i], userID, docType, documents[i], metaJSON, pgvector.NewVector(embeddings[i]),
			)
		}
		br := s.pool.SendBatch(ctx, batch)
		defer br.Close()
		for range documents {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("vectorstore: add documents: %w", err)
			}
		}
		return nil
	})
}

// AddConcept implements [vectorstore.Store].
func (s *Store) AddConcept(ctx context.Context, id, name string, embedding []float32) error {
	return s.execRetryOnce(ctx, func() error {
		const q = `
			INSERT INTO concepts_collection (id, content, embedding, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`
		_, err := s.pool.Exec(ctx, q, id, name, pgvector.NewVector(embedding))
		if err != nil {
			return fmt.Errorf("vectorstore: add concept: %w", err)
		}
		return nil
	})
}

// AddExperienceVector implements [vectorstore.Store].
func (s *Store) AddExperienceVector(ctx context.Context, id, text string, embedding []float32) error {
	return s.execRetryOnce(ctx, func() error {
		const q = `
			INSERT INTO experiences_collection (id, content, embedding, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`
		_, err := s.pool.Exec(ctx, q, id, text, pgvector.NewVector(embedding))
		if err != nil {
			return fmt.Errorf("vectorstore: add experience vector: %w", err)
		}
		return nil
	})
}

// SearchDocuments implements [vectorstore.Store].
func (s *Store) SearchDocuments(ctx context.Context, embedding []float32, userID string, n int) ([]vectorstore.DocumentResult, error) {
	queryVec := pgvector.NewVector(embedding)
	args := []any{queryVec}
	where := ""
	if userID != "" {
		args = append(args, userID)
		where = "WHERE user_id = $2"
	}
	args = append(args, n)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM   documents_collection
		%s
		ORDER  BY distance
		LIMIT  %s`, where, limitArg)

	var results []vectorstore.DocumentResult
	err := s.execRetryOnce(ctx, func() error {
		rows, err := s.pool.Query(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("vectorstore: search documents: %w", err)
		}
		results, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorstore.DocumentResult, error) {
			var (
				r        vectorstore.DocumentResult
				metaJSON []byte
			)
			if err := row.Scan(&r.ID, &r.Content, &metaJSON, &r.Distance); err != nil {
				return vectorstore.DocumentResult{}, err
			}
			if len(metaJSON) > 0 {
				if err := json.Unmarshal(metaJSON, &r.Metadata); err != nil {
					return vectorstore.DocumentResult{}, fmt.Errorf("unmarshal metadata: %w", err)
				}
			}
			if r.Metadata == nil {
				r.Metadata = map[string]any{}
			}
			return r, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []vectorstore.DocumentResult{}
	}
	return results, nil
}

// SearchExperiences implements [vectorstore.Store].
func (s *Store) SearchExperiences(ctx context.Context, embedding []float32, n int) ([]string, error) {
	const q = `
		SELECT content
		FROM   experiences_collection
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	var texts []string
	err := s.execRetryOnce(ctx, func() error {
		rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), n)
		if err != nil {
			return fmt.Errorf("vectorstore: search experiences: %w", err)
		}
		texts, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, err
	}
	if texts == nil {
		texts = []string{}
	}
	return texts, nil
}

// FindSimilarConcept implements [vectorstore.Store].
func (s *Store) FindSimilarConcept(ctx context.Context, embedding []float32, threshold float32) (vectorstore.ConceptMatch, bool, error) {
	const q = `
		SELECT id, content, 1 - (embedding <=> $1) AS similarity
		FROM   concepts_collection
		ORDER  BY embedding <=> $1
		LIMIT  1`

	var (
		match vectorstore.ConceptMatch
		found bool
	)
	err := s.execRetryOnce(ctx, func() error {
		rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding))
		if err != nil {
			return fmt.Errorf("vectorstore: find similar concept: %w", err)
		}
		defer rows.Close()
		if !rows.Next() {
			return rows.Err()
		}
		if err := rows.Scan(&match.ID, &match.Name, &match.Similarity); err != nil {
			return err
		}
		found = match.Similarity >= threshold
		return nil
	})
	if err != nil {
		return vectorstore.ConceptMatch{}, false, err
	}
	return match, found, nil
}

// GetStats implements [vectorstore.Store].
func (s *Store) GetStats(ctx context.Context) (vectorstore.Stats, error) {
	var stats vectorstore.Stats
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents_collection`).Scan(&stats.Documents); err != nil {
		return vectorstore.Stats{}, fmt.Errorf("vectorstore: get stats: documents: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM concepts_collection`).Scan(&stats.Concepts); err != nil {
		return vectorstore.Stats{}, fmt.Errorf("vectorstore: get stats: concepts: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM experiences_collection`).Scan(&stats.Experiences); err != nil {
		return vectorstore.Stats{}, fmt.Errorf("vectorstore: get stats: experiences: %w", err)
	}
	return stats, nil
}

// ClearAll implements [vectorstore.Store]. It destroys and recreates all
// three collections, mirroring the dimension-mismatch reset path.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := resetCollections(ctx, s.pool, s.dimension); err != nil {
		return fmt.Errorf("vectorstore: clear all: %w", err)
	}
	return nil
}
