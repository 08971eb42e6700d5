// Package perception is the thin, stateless wrapper around the LLM and
// embedding provider abstractions: sentence embedding, structured memory
// extraction, merge arbitration, summarization, and cosine similarity. It
// holds no graph or vector state of its own — every method is a single
// round trip to a backend plus deterministic post-processing.
package perception

// ExtractedEntity is one entity surfaced by [Layer.ExtractStructuredMemory].
type ExtractedEntity struct {
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Content        string         `json:"content"`
	Status         string         `json:"status,omitempty"`
	EnergyImpact   int            `json:"energy_impact,omitempty"`
	AlignmentScore float64        `json:"alignment_score,omitempty"`
	Dossier        map[string]any `json:"dossier,omitempty"`
}

// ExtractedRelation is one relation surfaced by [Layer.ExtractStructuredMemory].
type ExtractedRelation struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// ExtractionResult is the output of [Layer.ExtractStructuredMemory].
type ExtractionResult struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

// BulkNode is one node surfaced by [Layer.ExtractStructuredMemoryLargeModel].
// Unlike ExtractedEntity, ids are caller-scoped rather than resolved by name.
type BulkNode struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// BulkEdge is one edge surfaced by [Layer.ExtractStructuredMemoryLargeModel].
type BulkEdge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

// BulkExtractionResult is the output of [Layer.ExtractStructuredMemoryLargeModel].
type BulkExtractionResult struct {
	Nodes []BulkNode `json:"nodes"`
	Edges []BulkEdge `json:"edges"`
}

// ArbitrationResult is the output of [Layer.ArbitrateMerge].
type ArbitrationResult struct {
	ShouldMerge bool   `json:"should_merge"`
	MasterName  string `json:"master_name,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// NodeSummary is one deduplicated (name, type) pair submitted to
// [Layer.ConsolidateNodes] for semantic clustering.
type NodeSummary struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// StandardNode is one merged, standard-named node surfaced by
// [Layer.ConsolidateNodes].
type StandardNode struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ConsolidationResult is the output of [Layer.ConsolidateNodes]: a mapping
// from every original name seen across chunks to its standard name, plus
// the deduplicated standard node list itself.
type ConsolidationResult struct {
	Mapping       map[string]string `json:"mapping"`
	StandardNodes []StandardNode    `json:"standard_nodes"`
}

// AlignmentResult is the output of [Layer.ScoreAlignment]: how closely a
// piece of text tracks the user's stated vision.
type AlignmentResult struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}
