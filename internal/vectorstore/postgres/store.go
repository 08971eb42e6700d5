package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/zenzeng/endgameos/internal/resilience"
	"github.com/zenzeng/endgameos/internal/vectorstore"
)

// Compile-time interface check.
var _ vectorstore.Store = (*Store)(nil)

// Store is the PostgreSQL+pgvector implementation of [vectorstore.Store].
// All operations are safe for concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	breaker   *resilience.CircuitBreaker
}

// NewStore opens a connection pool to dsn, registers pgvector types, and
// ensures all three collections exist at the given dimension. If the
// documents collection already exists at a different dimension, all three
// collections are destroyed and recreated at the new dimension — the store's
// one automatic destructive action.
func NewStore(ctx context.Context, dsn string, dimension int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore: ping: %w", err)
	}

	existing, err := storedDimension(ctx, pool, "documents_collection")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore: check dimension: %w", err)
	}
	if existing != 0 && existing != dimension {
		if err := resetCollections(ctx, pool, dimension); err != nil {
			pool.Close()
			return nil, fmt.Errorf("vectorstore: reset on dimension mismatch: %w", err)
		}
	} else if err := Migrate(ctx, pool, dimension); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore: migrate: %w", err)
	}

	return &Store{
		pool:      pool,
		dimension: dimension,
		breaker:   resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "vectorstore"}),
	}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
