// Package vectorstoremock provides an in-memory test double for
// [vectorstore.Store]. It records every method call for assertion in tests
// and exposes exported fields that control what it returns. Safe for
// concurrent use via an internal [sync.Mutex].
package vectorstoremock

import (
	"context"
	"sync"

	"github.com/zenzeng/endgameos/internal/vectorstore"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is a configurable test double for [vectorstore.Store].
type Store struct {
	mu sync.Mutex

	calls []Call

	AddDocumentsErr error

	AddConceptErr error

	AddExperienceVectorErr error

	SearchDocumentsResult []vectorstore.DocumentResult
	SearchDocumentsErr    error

	SearchExperiencesResult []string
	SearchExperiencesErr    error

	FindSimilarConceptResult vectorstore.ConceptMatch
	FindSimilarConceptOK     bool
	FindSimilarConceptErr    error

	GetStatsResult vectorstore.Stats
	GetStatsErr    error

	ClearAllErr error
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

func (m *Store) AddDocuments(_ context.Context, documents []string, metadatas []map[string]any, ids []string, embeddings [][]float32) error {
	m.record("AddDocuments", documents, metadatas, ids, embeddings)
	return m.AddDocumentsErr
}

func (m *Store) AddConcept(_ context.Context, id, name string, embedding []float32) error {
	m.record("AddConcept", id, name, embedding)
	return m.AddConceptErr
}

func (m *Store) AddExperienceVector(_ context.Context, id, text string, embedding []float32) error {
	m.record("AddExperienceVector", id, text, embedding)
	return m.AddExperienceVectorErr
}

func (m *Store) SearchDocuments(_ context.Context, embedding []float32, userID string, n int) ([]vectorstore.DocumentResult, error) {
	m.record("SearchDocuments", embedding, userID, n)
	if m.SearchDocumentsResult == nil {
		return []vectorstore.DocumentResult{}, m.SearchDocumentsErr
	}
	out := make([]vectorstore.DocumentResult, len(m.SearchDocumentsResult))
	copy(out, m.SearchDocumentsResult)
	return out, m.SearchDocumentsErr
}

func (m *Store) SearchExperiences(_ context.Context, embedding []float32, n int) ([]string, error) {
	m.record("SearchExperiences", embedding, n)
	if m.SearchExperiencesResult == nil {
		return []string{}, m.SearchExperiencesErr
	}
	out := make([]string, len(m.SearchExperiencesResult))
	copy(out, m.SearchExperiencesResult)
	return out, m.SearchExperiencesErr
}

func (m *Store) FindSimilarConcept(_ context.Context, embedding []float32, threshold float32) (vectorstore.ConceptMatch, bool, error) {
	m.record("FindSimilarConcept", embedding, threshold)
	return m.FindSimilarConceptResult, m.FindSimilarConceptOK, m.FindSimilarConceptErr
}

func (m *Store) GetStats(_ context.Context) (vectorstore.Stats, error) {
	m.record("GetStats")
	return m.GetStatsResult, m.GetStatsErr
}

func (m *Store) ClearAll(_ context.Context) error {
	m.record("ClearAll")
	return m.ClearAllErr
}

func (m *Store) Close() {
	m.record("Close")
}

// Ensure Store satisfies the interface at compile time.
var _ vectorstore.Store = (*Store)(nil)
