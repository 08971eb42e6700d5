package postgres_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenzeng/endgameos/internal/graphstore"
	"github.com/zenzeng/endgameos/internal/graphstore/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if ENDGAME_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("ENDGAME_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ENDGAME_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

// dropSchema removes all tables created by Migrate in reverse dependency order.
func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS staging_edges CASCADE",
		"DROP TABLE IF EXISTS staging_nodes CASCADE",
		"DROP TABLE IF EXISTS edges CASCADE",
		"DROP TABLE IF EXISTS nodes CASCADE",
		"DROP TABLE IF EXISTS experiences CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("dropSchema %q: %v", stmt, err)
		}
	}
}

const testUser = "user-1"

func TestUpsertNode_SelfIDCanonicalization(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node, err := store.UpsertNode(ctx, testUser, graphstore.Node{
		ID:      "whatever-caller-passed",
		Type:    graphstore.TypeSelf,
		Content: "I am a backend engineer.",
	})
	if err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if node.ID != graphstore.SelfID(testUser) {
		t.Errorf("ID = %q, want %q", node.ID, graphstore.SelfID(testUser))
	}
}

func TestUpsertNode_ContentPreservedUnlessNonEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertNode(ctx, testUser, graphstore.Node{
		Type: graphstore.TypeGoal, Name: "Ship v1", Content: "Launch the product.",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := store.UpsertNode(ctx, testUser, graphstore.Node{
		ID: first.ID, Type: graphstore.TypeGoal, Name: "Ship v1", Content: "",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Content != "Launch the product." {
		t.Errorf("content overwritten by empty incoming value: got %q", second.Content)
	}
}

func TestBatchUpsertEntities_StableIDAndDossierMerge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	nodes, err := store.BatchUpsertEntities(ctx, testUser, []graphstore.Entity{
		{Name: "Alice", Type: graphstore.TypePerson, Dossier: map[string]any{"interests": []any{"chess"}}},
	})
	if err != nil || len(nodes) != 1 {
		t.Fatalf("first batch: nodes=%v err=%v", nodes, err)
	}
	firstID := nodes[0].ID
	if firstID != graphstore.StableID("Alice") {
		t.Errorf("id = %q, want stable id", firstID)
	}

	nodes, err = store.BatchUpsertEntities(ctx, testUser, []graphstore.Entity{
		{Name: "Alice", Type: graphstore.TypePerson, Dossier: map[string]any{"interests": []any{"hiking"}}},
	})
	if err != nil || len(nodes) != 1 {
		t.Fatalf("second batch: nodes=%v err=%v", nodes, err)
	}
	if nodes[0].ID != firstID {
		t.Errorf("re-extraction of same name produced a different id: %q vs %q", nodes[0].ID, firstID)
	}
	interests, _ := nodes[0].Attributes["interests"].([]any)
	if len(interests) != 2 {
		t.Errorf("dossier merge: interests = %v, want union of 2", interests)
	}
}

func TestUpsertEdge_InsertIgnore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeGoal, Name: "A"})
	b, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeProject, Name: "B"})

	for i := 0; i < 2; i++ {
		if err := store.UpsertEdge(ctx, testUser, a.ID, b.ID, graphstore.RelHasProject, nil); err != nil {
			t.Fatalf("UpsertEdge iteration %d: %v", i, err)
		}
	}

	sub, err := store.GetSubEntities(ctx, testUser, a.ID, "")
	if err != nil {
		t.Fatalf("GetSubEntities: %v", err)
	}
	if len(sub) != 1 {
		t.Errorf("len(sub) = %d, want 1 (duplicate edge should be ignored)", len(sub))
	}
}

func TestStagingLifecycle_AddCommitClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	goal := graphstore.Node{ID: "goal-1", Type: graphstore.TypeGoal, Name: "Learn Go"}
	project := graphstore.Node{ID: "project-1", Type: graphstore.TypeProject, Name: "Build a CLI"}
	edge := graphstore.Edge{Source: goal.ID, Target: project.ID, Relation: graphstore.RelHasProject}

	if err := store.AddToStaging(ctx, testUser, []graphstore.Node{goal, project}, []graphstore.Edge{edge}, "notes.md"); err != nil {
		t.Fatalf("AddToStaging: %v", err)
	}

	staged, err := store.GetStaging(ctx, testUser)
	if err != nil {
		t.Fatalf("GetStaging: %v", err)
	}
	if len(staged.Nodes) != 2 || len(staged.Links) != 1 {
		t.Fatalf("staged = %d nodes, %d links; want 2, 1", len(staged.Nodes), len(staged.Links))
	}

	if err := store.CommitStaging(ctx, testUser, nil); err != nil {
		t.Fatalf("CommitStaging: %v", err)
	}

	staged, err = store.GetStaging(ctx, testUser)
	if err != nil {
		t.Fatalf("GetStaging after commit: %v", err)
	}
	if len(staged.Nodes) != 0 {
		t.Errorf("staging not cleared after commit: %d nodes remain", len(staged.Nodes))
	}

	confirmed, err := store.GetNodesByType(ctx, testUser, graphstore.TypeGoal)
	if err != nil {
		t.Fatalf("GetNodesByType: %v", err)
	}
	if len(confirmed) != 1 || confirmed[0].Status != graphstore.StatusConfirmed {
		t.Fatalf("goal not promoted to confirmed: %+v", confirmed)
	}
}

func TestCommitStaging_PartialSubsetKeepsCrossEdgesStaged(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := graphstore.Node{ID: "a", Type: graphstore.TypeGoal, Name: "A"}
	b := graphstore.Node{ID: "b", Type: graphstore.TypeProject, Name: "B"}
	edge := graphstore.Edge{Source: "a", Target: "b", Relation: graphstore.RelHasProject}

	if err := store.AddToStaging(ctx, testUser, []graphstore.Node{a, b}, []graphstore.Edge{edge}, "f.md"); err != nil {
		t.Fatalf("AddToStaging: %v", err)
	}

	if err := store.CommitStaging(ctx, testUser, []string{"a"}); err != nil {
		t.Fatalf("CommitStaging: %v", err)
	}

	staged, err := store.GetStaging(ctx, testUser)
	if err != nil {
		t.Fatalf("GetStaging: %v", err)
	}
	if len(staged.Nodes) != 1 || staged.Nodes[0].ID != "b" {
		t.Fatalf("expected node b to remain staged, got %+v", staged.Nodes)
	}
	if len(staged.Links) != 1 {
		t.Errorf("edge crossing staged/confirmed boundary should remain staged, got %d links", len(staged.Links))
	}
}

func TestSelfHeal_MergesDuplicateSelfNodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	canonical := graphstore.SelfID(testUser)
	if _, err := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeSelf, Content: "canonical self"}); err != nil {
		t.Fatalf("seed canonical self: %v", err)
	}

	// UpsertNode itself canonicalizes any Self-typed id, so a stray duplicate
	// (as would appear from a race before canonicalization landed) has to be
	// inserted directly.
	rawPool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("raw pool: %v", err)
	}
	defer rawPool.Close()
	const insertDup = `
		INSERT INTO nodes (id, user_id, type, name, content, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, '{}', now())`
	if _, err := rawPool.Exec(ctx, insertDup, "stray-self-id", testUser, graphstore.TypeSelf, "dup", "duplicate self insight"); err != nil {
		t.Fatalf("seed dup: %v", err)
	}
	if err := store.UpsertEdge(ctx, testUser, "stray-self-id", canonical, graphstore.RelRelatesTo, nil); err != nil {
		t.Fatalf("seed dup edge: %v", err)
	}

	if err := store.SelfHeal(ctx, testUser); err != nil {
		t.Fatalf("SelfHeal: %v", err)
	}

	selves, err := store.GetNodesByType(ctx, testUser, graphstore.TypeSelf)
	if err != nil {
		t.Fatalf("GetNodesByType: %v", err)
	}
	if len(selves) != 1 {
		t.Fatalf("len(selves) = %d, want 1 after merge", len(selves))
	}
	if !strings.Contains(selves[0].Content, "canonical self") || !strings.Contains(selves[0].Content, "duplicate self insight") {
		t.Fatalf("merged content = %q, want both canonical and duplicate content concatenated", selves[0].Content)
	}

	if err := store.SelfHeal(ctx, testUser); err != nil {
		t.Fatalf("SelfHeal second call (idempotency): %v", err)
	}
}

func TestClearAll_RemovesExperiencesButClearGraphOnlyDoesNot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddExperience(ctx, testUser, "exp-1", "trigger", "insight", "strategy"); err != nil {
		t.Fatalf("AddExperience: %v", err)
	}
	if _, err := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeGoal, Name: "G"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	if err := store.ClearGraphOnly(ctx, testUser); err != nil {
		t.Fatalf("ClearGraphOnly: %v", err)
	}
	exps, err := store.GetAllExperiences(ctx, testUser)
	if err != nil {
		t.Fatalf("GetAllExperiences: %v", err)
	}
	if len(exps) != 1 {
		t.Errorf("ClearGraphOnly should preserve experiences, found %d", len(exps))
	}

	if err := store.ClearAll(ctx, testUser); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	exps, err = store.GetAllExperiences(ctx, testUser)
	if err != nil {
		t.Fatalf("GetAllExperiences: %v", err)
	}
	if len(exps) != 0 {
		t.Errorf("ClearAll should remove experiences, found %d", len(exps))
	}
}

func TestGetGraphData_GlobalSortsByEnergyImpactThenCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeTask, Name: "low", EnergyImpact: -2})
	high, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeGoal, Name: "high", EnergyImpact: 5})
	mid, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeProject, Name: "mid", EnergyImpact: 1})

	data, err := store.GetGraphData(ctx, testUser, graphstore.ViewGlobal)
	if err != nil {
		t.Fatalf("GetGraphData: %v", err)
	}
	if len(data.Nodes) != 3 {
		t.Fatalf("len(nodes) = %d, want 3", len(data.Nodes))
	}
	got := []string{data.Nodes[0].ID, data.Nodes[1].ID, data.Nodes[2].ID}
	want := []string{high.ID, mid.ID, low.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("global view order = %v, want energy_impact DESC order %v", got, want)
		}
	}
}

func TestGetGraphData_StrategicFiltersAndRanksByType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	self, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeSelf, Content: "me"})
	goal, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeGoal, Name: "G"})
	vision, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeVision, Content: "v"})
	if _, err := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypePerson, Name: "excluded"}); err != nil {
		t.Fatalf("UpsertNode person: %v", err)
	}

	data, err := store.GetGraphData(ctx, testUser, graphstore.ViewStrategic)
	if err != nil {
		t.Fatalf("GetGraphData: %v", err)
	}
	if len(data.Nodes) != 3 {
		t.Fatalf("len(nodes) = %d, want 3 (Person excluded from strategic view)", len(data.Nodes))
	}
	got := []string{data.Nodes[0].ID, data.Nodes[1].ID, data.Nodes[2].ID}
	want := []string{self.ID, vision.ID, goal.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("strategic view order = %v, want type-rank order %v", got, want)
		}
	}
}

func TestGetGraphData_PeopleViewSortsSelfFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	person, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypePerson, Name: "Alice", EnergyImpact: 5})
	self, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeSelf, Content: "me", EnergyImpact: 0})

	data, err := store.GetGraphData(ctx, testUser, graphstore.ViewPeople)
	if err != nil {
		t.Fatalf("GetGraphData: %v", err)
	}
	if len(data.Nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(data.Nodes))
	}
	if data.Nodes[0].ID != self.ID || data.Nodes[1].ID != person.ID {
		t.Fatalf("expected Self first regardless of energy_impact, got %+v", data.Nodes)
	}
}

func TestGetGraphData_GhostNodesFillMissingNeighbors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	goal, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypeGoal, Name: "Goal"})
	person, _ := store.UpsertNode(ctx, testUser, graphstore.Node{Type: graphstore.TypePerson, Name: "Supporter"})
	if err := store.UpsertEdge(ctx, testUser, person.ID, goal.ID, graphstore.RelSupports, nil); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	// The strategic view's primary set excludes Person, but the edge into
	// it should still pull the Person node in as a ghost.
	data, err := store.GetGraphData(ctx, testUser, graphstore.ViewStrategic)
	if err != nil {
		t.Fatalf("GetGraphData: %v", err)
	}
	if len(data.Links) != 1 {
		t.Fatalf("len(links) = %d, want 1", len(data.Links))
	}

	found := false
	for _, n := range data.Nodes {
		if n.ID == person.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ghost-filled Person node %q in result, got %+v", person.ID, data.Nodes)
	}
}
