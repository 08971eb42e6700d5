package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zenzeng/endgameos/internal/graphstore"
)

// AddExperience implements [graphstore.Store].
func (s *Store) AddExperience(ctx context.Context, userID, id, trigger, insight, strategy string) error {
	const q = `
		INSERT INTO experiences (id, user_id, trigger_scenario, insight, strategy, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
		    trigger_scenario = EXCLUDED.trigger_scenario,
		    insight          = EXCLUDED.insight,
		    strategy         = EXCLUDED.strategy`

	if _, err := s.pool.Exec(ctx, q, id, userID, trigger, insight, strategy); err != nil {
		return fmt.Errorf("graphstore: add experience: %w", err)
	}
	return nil
}

// GetAllExperiences implements [graphstore.Store].
func (s *Store) GetAllExperiences(ctx context.Context, userID string) ([]graphstore.Experience, error) {
	const q = `
		SELECT id, user_id, trigger_scenario, insight, strategy, created_at
		FROM   experiences
		WHERE  user_id = $1
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("graphstore: get all experiences: %w", err)
	}
	experiences, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graphstore.Experience, error) {
		var e graphstore.Experience
		err := row.Scan(&e.ID, &e.UserID, &e.TriggerScenario, &e.Insight, &e.Strategy, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("graphstore: get all experiences: %w", err)
	}
	if experiences == nil {
		experiences = []graphstore.Experience{}
	}
	return experiences, nil
}
