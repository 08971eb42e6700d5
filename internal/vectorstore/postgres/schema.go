package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlCollection returns the DDL for one vector-backed collection table.
// HNSW with vector_cosine_ops mirrors the teacher's L2 semantic index.
func ddlCollection(table string, dimension int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id         TEXT                    PRIMARY KEY,
    user_id    TEXT                    NOT NULL DEFAULT '',
    doc_type   TEXT                    NOT NULL DEFAULT '',
    content    TEXT                    NOT NULL DEFAULT '',
    metadata   JSONB                   NOT NULL DEFAULT '{}',
    embedding  vector(%[2]d)           NOT NULL,
    created_at TIMESTAMPTZ             NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_user_id ON %[1]s (user_id);
CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding ON %[1]s
    USING hnsw (embedding vector_cosine_ops);
`, table, dimension)
}

var collectionTables = []string{"documents_collection", "concepts_collection", "experiences_collection"}

// Migrate enables pgvector and creates all three collection tables at the
// given embedding dimension. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("vectorstore migrate: enable pgvector: %w", err)
	}
	for _, table := range collectionTables {
		if _, err := pool.Exec(ctx, ddlCollection(table, dimension)); err != nil {
			return fmt.Errorf("vectorstore migrate: create %s: %w", table, err)
		}
	}
	return nil
}

// resetCollections drops and recreates all three collections at dimension,
// per the store's one automatic destructive policy: a dimension mismatch on
// open.
func resetCollections(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	for _, table := range collectionTables {
		if _, err := pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return fmt.Errorf("vectorstore reset: drop %s: %w", table, err)
		}
	}
	return Migrate(ctx, pool, dimension)
}

// storedDimension returns the vector column's declared dimension for table,
// or 0 if the table does not exist yet.
func storedDimension(ctx context.Context, pool *pgxpool.Pool, table string) (int, error) {
	const q = `
		SELECT atttypmod
		FROM   pg_attribute
		WHERE  attrelid = $1::regclass AND attname = 'embedding'`

	var typmod int
	err := pool.QueryRow(ctx, q, table).Scan(&typmod)
	if err != nil {
		return 0, nil
	}
	return typmod, nil
}
