// Package postgres is the pgx-backed implementation of [graphstore.Store].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    id              TEXT         PRIMARY KEY,
    user_id         TEXT         NOT NULL,
    type            TEXT         NOT NULL,
    name            TEXT         NOT NULL DEFAULT '',
    content         TEXT         NOT NULL DEFAULT '',
    attributes      JSONB        NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_nodes_user_id ON nodes (user_id);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes (type);
`

// optionalNodeColumns are ALTERed in on open if missing, per SPEC_FULL §4.1's
// schema-evolution contract. They are listed separately from ddlNodes so a
// database created by an older version of this store still picks them up.
var optionalNodeColumns = []string{
	`ALTER TABLE nodes ADD COLUMN IF NOT EXISTS status TEXT NOT NULL DEFAULT 'confirmed'`,
	`ALTER TABLE nodes ADD COLUMN IF NOT EXISTS time_metadata JSONB NOT NULL DEFAULT '{}'`,
	`ALTER TABLE nodes ADD COLUMN IF NOT EXISTS strategic_role TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE nodes ADD COLUMN IF NOT EXISTS energy_impact INT NOT NULL DEFAULT 0`,
	`ALTER TABLE nodes ADD COLUMN IF NOT EXISTS alignment_score REAL NOT NULL DEFAULT 0.5`,
	`ALTER TABLE nodes ADD COLUMN IF NOT EXISTS source_file TEXT NOT NULL DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_status ON nodes (status)`,
}

const ddlEdges = `
CREATE TABLE IF NOT EXISTS edges (
    source      TEXT         NOT NULL,
    target      TEXT         NOT NULL,
    relation    TEXT         NOT NULL,
    user_id     TEXT         NOT NULL,
    properties  JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (source, target, relation, user_id)
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges (source);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges (target);
CREATE INDEX IF NOT EXISTS idx_edges_user_id ON edges (user_id);
`

const ddlStaging = `
CREATE TABLE IF NOT EXISTS staging_nodes (
    id              TEXT         PRIMARY KEY,
    user_id         TEXT         NOT NULL,
    type            TEXT         NOT NULL,
    name            TEXT         NOT NULL DEFAULT '',
    content         TEXT         NOT NULL DEFAULT '',
    attributes      JSONB        NOT NULL DEFAULT '{}',
    status          TEXT         NOT NULL DEFAULT 'pending',
    time_metadata   JSONB        NOT NULL DEFAULT '{}',
    strategic_role  TEXT         NOT NULL DEFAULT '',
    energy_impact   INT          NOT NULL DEFAULT 0,
    alignment_score REAL         NOT NULL DEFAULT 0.5,
    source_file     TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_staging_nodes_user_id ON staging_nodes (user_id);

CREATE TABLE IF NOT EXISTS staging_edges (
    source      TEXT         NOT NULL,
    target      TEXT         NOT NULL,
    relation    TEXT         NOT NULL,
    user_id     TEXT         NOT NULL,
    properties  JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (source, target, relation, user_id)
);

CREATE INDEX IF NOT EXISTS idx_staging_edges_user_id ON staging_edges (user_id);
`

const ddlExperiences = `
CREATE TABLE IF NOT EXISTS experiences (
    id                TEXT         PRIMARY KEY,
    user_id           TEXT         NOT NULL,
    trigger_scenario  TEXT         NOT NULL DEFAULT '',
    insight           TEXT         NOT NULL DEFAULT '',
    strategy          TEXT         NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_experiences_user_id ON experiences (user_id);
`

// Migrate creates or ensures all required database tables exist and ALTERs
// in any optional nodes columns that predate the running binary. It is
// idempotent and safe to call on every process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{ddlNodes}
	statements = append(statements, optionalNodeColumns...)
	statements = append(statements, ddlEdges, ddlStaging, ddlExperiences)

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("graphstore migrate: %w", err)
		}
	}
	return nil
}
