package vectorstore

import "context"

// Store is the Vector Store's full contract. All embeddings are
// caller-provided; the store never calls out to the Perception Layer itself.
type Store interface {
	// AddDocuments indexes documents with caller-provided embeddings.
	// len(documents) == len(metadatas) == len(ids) == len(embeddings) is
	// required.
	AddDocuments(ctx context.Context, documents []string, metadatas []map[string]any, ids []string, embeddings [][]float32) error

	// AddConcept indexes a single concept embedding, used for entity
	// alignment during extraction.
	AddConcept(ctx context.Context, id, name string, embedding []float32) error

	// AddExperienceVector indexes a single distilled experience embedding.
	AddExperienceVector(ctx context.Context, id, text string, embedding []float32) error

	// SearchDocuments returns the n nearest documents to embedding. When
	// userID is non-empty, results are filtered to that user's metadata.
	SearchDocuments(ctx context.Context, embedding []float32, userID string, n int) ([]DocumentResult, error)

	// SearchExperiences returns the text of the n nearest experiences.
	SearchExperiences(ctx context.Context, embedding []float32, n int) ([]string, error)

	// FindSimilarConcept returns the single best concept match if its cosine
	// similarity is at least threshold, or ok=false otherwise.
	FindSimilarConcept(ctx context.Context, embedding []float32, threshold float32) (match ConceptMatch, ok bool, err error)

	// GetStats returns the size of all three collections.
	GetStats(ctx context.Context) (Stats, error)

	// ClearAll destroys and recreates all three collections.
	ClearAll(ctx context.Context) error

	// Close releases underlying resources.
	Close()
}
