package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/zenzeng/endgameos/internal/graphstore"
)

// Per-view node caps: global is the broadest projection and gets the
// largest cap; strategic and people views are narrower slices of the graph
// and a large render would be unusual for them.
const (
	maxGlobalViewNodes    = 2000
	maxStrategicViewNodes = 1000
	maxViewNodes          = 500
)

// strategicTypeRankOrderBy ranks the strategic view's node types
// Self→Vision→Goal→Project→Task→Insight→others, per the view projection's
// type-rank ordering.
const strategicTypeRankOrderBy = `
	CASE type
		WHEN 'Self' THEN 0
		WHEN 'Vision' THEN 1
		WHEN 'Goal' THEN 2
		WHEN 'Project' THEN 3
		WHEN 'Task' THEN 4
		WHEN 'Insight' THEN 5
		ELSE 6
	END, created_at DESC`

// peopleOrderBy sorts the people/social view with Self first, then by
// energy_impact descending.
const peopleOrderBy = `CASE WHEN type = 'Self' THEN 0 ELSE 1 END, energy_impact DESC`

const globalOrderBy = `energy_impact DESC, created_at DESC`

// GetGraphData implements [graphstore.Store].
func (s *Store) GetGraphData(ctx context.Context, userID string, view graphstore.ViewType) (graphstore.GraphData, error) {
	if view == graphstore.ViewStaging {
		return s.GetStaging(ctx, userID)
	}

	var typeFilter, orderBy string
	limit := maxViewNodes
	switch view {
	case graphstore.ViewStrategic:
		typeFilter = " AND type IN ('Self', 'Vision', 'Goal', 'Project', 'Task', 'Action', 'Insight')"
		orderBy = strategicTypeRankOrderBy
		limit = maxStrategicViewNodes
	case graphstore.ViewPeople:
		typeFilter = " AND type IN ('Person', 'Organization', 'Self')"
		orderBy = peopleOrderBy
	case graphstore.ViewGlobal, "":
		orderBy = globalOrderBy
		limit = maxGlobalViewNodes
	default:
		orderBy = globalOrderBy
		limit = maxGlobalViewNodes
	}

	q := fmt.Sprintf(`
		SELECT id, user_id, type, name, content, attributes, status, time_metadata,
		       strategic_role, energy_impact, alignment_score, source_file, created_at
		FROM   nodes
		WHERE  user_id = $1%s
		ORDER  BY %s
		LIMIT  %d`, typeFilter, orderBy, limit)

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return graphstore.GraphData{}, fmt.Errorf("graphstore: get graph data: %w", err)
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return graphstore.GraphData{}, fmt.Errorf("graphstore: get graph data: %w", err)
	}

	ids := make([]string, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
		seen[n.ID] = struct{}{}
	}
	if len(ids) == 0 {
		return graphstore.GraphData{Nodes: nodes, Links: []graphstore.Edge{}}, nil
	}

	const eq = `
		SELECT source, target, relation, user_id, properties, created_at
		FROM   edges
		WHERE  user_id = $1 AND (source = ANY($2::text[]) OR target = ANY($2::text[]))
		ORDER  BY created_at`

	erows, err := s.pool.Query(ctx, eq, userID, ids)
	if err != nil {
		return graphstore.GraphData{}, fmt.Errorf("graphstore: get graph data: %w", err)
	}
	edges, err := collectEdges(erows)
	if err != nil {
		return graphstore.GraphData{}, fmt.Errorf("graphstore: get graph data: %w", err)
	}

	ghostIDs := make([]string, 0)
	ghostSeen := make(map[string]struct{})
	for _, e := range edges {
		for _, id := range [2]string{e.Source, e.Target} {
			if _, ok := seen[id]; ok {
				continue
			}
			if _, ok := ghostSeen[id]; ok {
				continue
			}
			ghostSeen[id] = struct{}{}
			ghostIDs = append(ghostIDs, id)
		}
	}
	if len(ghostIDs) > 0 {
		ghosts, err := s.nodesByID(ctx, userID, ghostIDs)
		if err != nil {
			return graphstore.GraphData{}, fmt.Errorf("graphstore: get graph data: fill ghost nodes: %w", err)
		}
		nodes = append(nodes, ghosts...)
	}

	return graphstore.GraphData{Nodes: nodes, Links: edges}, nil
}

// nodesByID fetches the canonical rows for a set of node ids, regardless of
// type, for ghost-node fill: a neighbor reached by an edge but outside a
// view's primary node set is still rendered using its real row.
func (s *Store) nodesByID(ctx context.Context, userID string, ids []string) ([]graphstore.Node, error) {
	const q = `
		SELECT id, user_id, type, name, content, attributes, status, time_metadata,
		       strategic_role, energy_impact, alignment_score, source_file, created_at
		FROM   nodes
		WHERE  user_id = $1 AND id = ANY($2::text[])`

	rows, err := s.pool.Query(ctx, q, userID, ids)
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}

// GetStrategicContext implements [graphstore.Store]. It renders Vision/Goal/
// Project nodes as an indented text block suitable for an LLM prompt.
func (s *Store) GetStrategicContext(ctx context.Context, userID string) (string, error) {
	var sb strings.Builder

	visions, err := s.GetNodesByType(ctx, userID, graphstore.TypeVision)
	if err != nil {
		return "", fmt.Errorf("graphstore: get strategic context: %w", err)
	}
	for _, v := range visions {
		sb.WriteString("Vision: " + v.Content + "\n")
	}

	goals, err := s.GetNodesByType(ctx, userID, graphstore.TypeGoal)
	if err != nil {
		return "", fmt.Errorf("graphstore: get strategic context: %w", err)
	}
	for _, g := range goals {
		sb.WriteString("  Goal: " + g.Name + " — " + g.Content + "\n")

		projects, err := s.GetSubEntities(ctx, userID, g.ID, graphstore.RelHasProject)
		if err != nil {
			return "", fmt.Errorf("graphstore: get strategic context: %w", err)
		}
		for _, p := range projects {
			sb.WriteString("    Project: " + p.Name + " — " + p.Content + "\n")
		}
	}

	return sb.String(), nil
}

// GetStats implements [graphstore.Store].
func (s *Store) GetStats(ctx context.Context, userID string) (graphstore.Stats, error) {
	stats := graphstore.Stats{NodesByType: map[graphstore.NodeType]int{}}

	const tq = `SELECT type, COUNT(*) FROM nodes WHERE user_id = $1 GROUP BY type`
	rows, err := s.pool.Query(ctx, tq, userID)
	if err != nil {
		return graphstore.Stats{}, fmt.Errorf("graphstore: get stats: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (struct {
		Type  graphstore.NodeType
		Count int
	}, error) {
		var r struct {
			Type  graphstore.NodeType
			Count int
		}
		err := row.Scan(&r.Type, &r.Count)
		return r, err
	})
	if err != nil {
		return graphstore.Stats{}, fmt.Errorf("graphstore: get stats: %w", err)
	}
	for _, c := range counts {
		stats.NodesByType[c.Type] = c.Count
		stats.TotalNodes += c.Count
	}

	const eq = `SELECT COUNT(*) FROM edges WHERE user_id = $1`
	if err := s.pool.QueryRow(ctx, eq, userID).Scan(&stats.TotalEdges); err != nil {
		return graphstore.Stats{}, fmt.Errorf("graphstore: get stats: %w", err)
	}

	return stats, nil
}
