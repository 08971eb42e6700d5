package graphstore

import (
	"context"
	"time"
)

// Entity is the caller-facing shape used by batch extraction upsert: the
// dossier-merge path computes the stable id and status policy internally, so
// callers pass just the extracted fields.
type Entity struct {
	Name           string
	Type           NodeType
	Content        string
	Status         NodeStatus
	EnergyImpact   int
	AlignmentScore float64
	Dossier        map[string]any
	SourceFile     string
}

// RawEdge is a caller-supplied edge reference by node name or id, used
// during batch staging load before ids have been resolved.
type RawEdge struct {
	Source   string
	Target   string
	Relation Relation
}

// Store is the Graph Store's full contract: durable, user-partitioned
// storage of nodes, edges, the staging mirror, and experiences, plus the
// view-typed projection used by retrieval and any UI.
type Store interface {
	// UpsertNode is idempotent by ID. If node.Type is Vision or Self, the
	// caller-provided ID is overridden to the canonical form; for any other
	// type an empty ID is derived from Name via StableID. Content is
	// preserved on conflict unless the incoming value is non-empty;
	// Attributes/Status/EnergyImpact/AlignmentScore are overwritten.
	UpsertNode(ctx context.Context, userID string, node Node) (Node, error)

	// UpsertEdge is insert-ignore; the relation is stored verbatim.
	UpsertEdge(ctx context.Context, userID, source, target string, relation Relation, properties map[string]any) error

	// BatchUpsertEntities computes a stable id per entity, merges dossier
	// attributes (list union on shared keys), and writes nodes back.
	// Per-entity failures are logged and skipped; the call does not abort.
	BatchUpsertEntities(ctx context.Context, userID string, entities []Entity) ([]Node, error)

	// AddLog creates a Log node with timestamp recorded in attributes.
	AddLog(ctx context.Context, userID, logID, content string, timestamp time.Time, logType string) error

	// GetGraphData returns the {nodes, links} projection for one view type.
	GetGraphData(ctx context.Context, userID string, view ViewType) (GraphData, error)

	// GetStats returns node/edge counts for a user.
	GetStats(ctx context.Context, userID string) (Stats, error)

	// GetNodesByType returns all nodes of the given type owned by userID.
	GetNodesByType(ctx context.Context, userID string, t NodeType) ([]Node, error)

	// GetSubEntities returns nodes reachable from parentID by an optional
	// relation filter (empty relation matches any).
	GetSubEntities(ctx context.Context, userID, parentID string, relation Relation) ([]Node, error)

	// GetStrategicContext returns a text serialization of all Vision/Goal/
	// Project nodes, for use as an LLM prompt fragment.
	GetStrategicContext(ctx context.Context, userID string) (string, error)

	// AddToStaging writes nodes and edges to the staging mirror tagged with
	// sourceFile. Staging is additive; duplicates are ignored by primary key.
	AddToStaging(ctx context.Context, userID string, nodes []Node, edges []Edge, sourceFile string) error

	// GetStaging returns the current staging mirror contents for a user.
	GetStaging(ctx context.Context, userID string) (GraphData, error)

	// CommitStaging promotes staged nodes (all, if nodeIDs is nil) to the
	// canonical tables. When a subset is given, only edges with both
	// endpoints in the subset are promoted. Promoted rows are removed from
	// staging.
	CommitStaging(ctx context.Context, userID string, nodeIDs []string) error

	// MergeStaging rewrites staged edges from sourceID to targetID and
	// deletes sourceID from staging.
	MergeStaging(ctx context.Context, userID, sourceID, targetID string) error

	// UpdateStagingNode applies a partial update to a staged node.
	UpdateStagingNode(ctx context.Context, userID, nodeID string, node Node) error

	// DeleteStagingNode removes a single staged node (and its staged edges).
	DeleteStagingNode(ctx context.Context, userID, nodeID string) error

	// ClearStaging empties the staging mirror for a user.
	ClearStaging(ctx context.Context, userID string) error

	// AddExperience persists a distilled strategy record.
	AddExperience(ctx context.Context, userID, id, trigger, insight, strategy string) error

	// GetAllExperiences returns every Experience recorded for a user.
	GetAllExperiences(ctx context.Context, userID string) ([]Experience, error)

	// ClearAll deletes all graph and experience rows for a user.
	ClearAll(ctx context.Context, userID string) error

	// ClearGraphOnly deletes canonical nodes/edges but preserves experiences.
	ClearGraphOnly(ctx context.Context, userID string) error

	// SelfHeal merges duplicate Self/Vision nodes into their canonical ids,
	// in both the canonical and staging tables. Idempotent; safe to call
	// repeatedly (e.g. on every store open, or from the admin tool).
	SelfHeal(ctx context.Context, userID string) error

	// Close releases the underlying connection pool.
	Close()
}
