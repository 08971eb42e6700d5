// Package graphstoremock provides an in-memory test double for
// [graphstore.Store]. It records every method call for assertion in tests
// and exposes exported fields that control what it returns. Safe for
// concurrent use via an internal [sync.Mutex].
package graphstoremock

import (
	"context"
	"sync"
	"time"

	"github.com/zenzeng/endgameos/internal/graphstore"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is a configurable test double for [graphstore.Store]. All exported
// *Err fields default to nil (success); all exported *Result fields default
// to nil (empty slice/zero value returned).
type Store struct {
	mu sync.Mutex

	calls []Call

	UpsertNodeResult graphstore.Node
	UpsertNodeErr    error

	UpsertEdgeErr error

	BatchUpsertEntitiesResult []graphstore.Node
	BatchUpsertEntitiesErr    error

	AddLogErr error

	GetGraphDataResult graphstore.GraphData
	GetGraphDataErr    error

	GetStatsResult graphstore.Stats
	GetStatsErr    error

	GetNodesByTypeResult []graphstore.Node
	GetNodesByTypeErr    error

	GetSubEntitiesResult []graphstore.Node
	GetSubEntitiesErr    error

	GetStrategicContextResult string
	GetStrategicContextErr    error

	AddToStagingErr error

	GetStagingResult graphstore.GraphData
	GetStagingErr    error

	CommitStagingErr error

	MergeStagingErr error

	UpdateStagingNodeErr error

	DeleteStagingNodeErr error

	ClearStagingErr error

	AddExperienceErr error

	GetAllExperiencesResult []graphstore.Experience
	GetAllExperiencesErr    error

	ClearAllErr error

	ClearGraphOnlyErr error

	SelfHealErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Store) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

func (m *Store) UpsertNode(_ context.Context, userID string, node graphstore.Node) (graphstore.Node, error) {
	m.record("UpsertNode", userID, node)
	return m.UpsertNodeResult, m.UpsertNodeErr
}

func (m *Store) UpsertEdge(_ context.Context, userID, source, target string, relation graphstore.Relation, properties map[string]any) error {
	m.record("UpsertEdge", userID, source, target, relation, properties)
	return m.UpsertEdgeErr
}

func (m *Store) BatchUpsertEntities(_ context.Context, userID string, entities []graphstore.Entity) ([]graphstore.Node, error) {
	m.record("BatchUpsertEntities", userID, entities)
	if m.BatchUpsertEntitiesResult == nil {
		return []graphstore.Node{}, m.BatchUpsertEntitiesErr
	}
	out := make([]graphstore.Node, len(m.BatchUpsertEntitiesResult))
	copy(out, m.BatchUpsertEntitiesResult)
	return out, m.BatchUpsertEntitiesErr
}

func (m *Store) AddLog(_ context.Context, userID, logID, content string, timestamp time.Time, logType string) error {
	m.record("AddLog", userID, logID, content, timestamp, logType)
	return m.AddLogErr
}

func (m *Store) GetGraphData(_ context.Context, userID string, view graphstore.ViewType) (graphstore.GraphData, error) {
	m.record("GetGraphData", userID, view)
	return m.GetGraphDataResult, m.GetGraphDataErr
}

func (m *Store) GetStats(_ context.Context, userID string) (graphstore.Stats, error) {
	m.record("GetStats", userID)
	return m.GetStatsResult, m.GetStatsErr
}

func (m *Store) GetNodesByType(_ context.Context, userID string, t graphstore.NodeType) ([]graphstore.Node, error) {
	m.record("GetNodesByType", userID, t)
	if m.GetNodesByTypeResult == nil {
		return []graphstore.Node{}, m.GetNodesByTypeErr
	}
	out := make([]graphstore.Node, len(m.GetNodesByTypeResult))
	copy(out, m.GetNodesByTypeResult)
	return out, m.GetNodesByTypeErr
}

func (m *Store) GetSubEntities(_ context.Context, userID, parentID string, relation graphstore.Relation) ([]graphstore.Node, error) {
	m.record("GetSubEntities", userID, parentID, relation)
	if m.GetSubEntitiesResult == nil {
		return []graphstore.Node{}, m.GetSubEntitiesErr
	}
	out := make([]graphstore.Node, len(m.GetSubEntitiesResult))
	copy(out, m.GetSubEntitiesResult)
	return out, m.GetSubEntitiesErr
}

func (m *Store) GetStrategicContext(_ context.Context, userID string) (string, error) {
	m.record("GetStrategicContext", userID)
	return m.GetStrategicContextResult, m.GetStrategicContextErr
}

func (m *Store) AddToStaging(_ context.Context, userID string, nodes []graphstore.Node, edges []graphstore.Edge, sourceFile string) error {
	m.record("AddToStaging", userID, nodes, edges, sourceFile)
	return m.AddToStagingErr
}

func (m *Store) GetStaging(_ context.Context, userID string) (graphstore.GraphData, error) {
	m.record("GetStaging", userID)
	return m.GetStagingResult, m.GetStagingErr
}

func (m *Store) CommitStaging(_ context.Context, userID string, nodeIDs []string) error {
	m.record("CommitStaging", userID, nodeIDs)
	return m.CommitStagingErr
}

func (m *Store) MergeStaging(_ context.Context, userID, sourceID, targetID string) error {
	m.record("MergeStaging", userID, sourceID, targetID)
	return m.MergeStagingErr
}

func (m *Store) UpdateStagingNode(_ context.Context, userID, nodeID string, node graphstore.Node) error {
	m.record("UpdateStagingNode", userID, nodeID, node)
	return m.UpdateStagingNodeErr
}

func (m *Store) DeleteStagingNode(_ context.Context, userID, nodeID string) error {
	m.record("DeleteStagingNode", userID, nodeID)
	return m.DeleteStagingNodeErr
}

func (m *Store) ClearStaging(_ context.Context, userID string) error {
	m.record("ClearStaging", userID)
	return m.ClearStagingErr
}

func (m *Store) AddExperience(_ context.Context, userID, id, trigger, insight, strategy string) error {
	m.record("AddExperience", userID, id, trigger, insight, strategy)
	return m.AddExperienceErr
}

func (m *Store) GetAllExperiences(_ context.Context, userID string) ([]graphstore.Experience, error) {
	m.record("GetAllExperiences", userID)
	if m.GetAllExperiencesResult == nil {
		return []graphstore.Experience{}, m.GetAllExperiencesErr
	}
	out := make([]graphstore.Experience, len(m.GetAllExperiencesResult))
	copy(out, m.GetAllExperiencesResult)
	return out, m.GetAllExperiencesErr
}

func (m *Store) ClearAll(_ context.Context, userID string) error {
	m.record("ClearAll", userID)
	return m.ClearAllErr
}

func (m *Store) ClearGraphOnly(_ context.Context, userID string) error {
	m.record("ClearGraphOnly", userID)
	return m.ClearGraphOnlyErr
}

func (m *Store) SelfHeal(_ context.Context, userID string) error {
	m.record("SelfHeal", userID)
	return m.SelfHealErr
}

func (m *Store) Close() {
	m.record("Close")
}

// Ensure Store satisfies the interface at compile time.
var _ graphstore.Store = (*Store)(nil)
