package common

import "time"

// NodeKind identifies the concrete kind of a graph node. The kind takes part
// in entity key derivation, so it is immutable once a node is created.
type NodeKind string

const (
	KindPerson   NodeKind = "person"
	KindConcept  NodeKind = "concept"
	KindEntity   NodeKind = "entity"
	KindEvent    NodeKind = "event"
	KindSource   NodeKind = "source"
	KindArtifact NodeKind = "artifact"
)

// EntityKinds are the kinds the extraction capability may produce and the
// resolver searches across. Source and Artifact nodes are created by the
// pipeline itself, never by extraction.
var EntityKinds = []NodeKind{KindPerson, KindConcept, KindEntity, KindEvent}

// Valid reports whether k is one of the closed set of node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindPerson, KindConcept, KindEntity, KindEvent, KindSource, KindArtifact:
		return true
	}
	return false
}

// NodeState is the lifecycle state driven by salience bookkeeping.
// Decay (active -> archived) runs outside the ingestion pipeline.
type NodeState string

const (
	StateCandidate NodeState = "candidate"
	StateActive    NodeState = "active"
	StateCore      NodeState = "core"
	StateArchived  NodeState = "archived"
)

// Note is a provenance-tagged annotation on a node or relationship.
// Notes are append-only: the pipeline never rewrites or deletes one.
// A nil ExpiresAt means the note is permanent.
type Note struct {
	ID              int64      `json:"id,omitempty"`
	Content         string     `json:"content"`
	AddedBy         string     `json:"added_by"`
	SourceEntityKey string     `json:"source_entity_key,omitempty"`
	DateAdded       time.Time  `json:"date_added"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// Node is a node in a user's memory graph. An entity key is derived
// deterministically from the normalized name, the kind and the owning user,
// so re-ingesting the same mention resolves to the same node.
//
// UserID and EntityKey are immutable after creation. Attributes carry
// kind-specific structured fields (e.g. a person's situation/history/
// personality) and are merge-updated with coalesce semantics: a present
// value replaces, an absent one preserves.
type Node struct {
	ID            int64          `json:"id,omitempty"`
	PublicID      string         `json:"public_id"`
	EntityKey     string         `json:"entity_key"`
	UserID        string         `json:"user_id"`
	Kind          NodeKind       `json:"kind"`
	Name          string         `json:"name"`
	CanonicalName string         `json:"canonical_name"`
	Description   string         `json:"description"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Notes         []Note         `json:"notes,omitempty"`

	Salience           float64    `json:"salience"`
	State              NodeState  `json:"state"`
	AccessCount        int        `json:"access_count"`
	RecallFrequency    float64    `json:"recall_frequency"`
	LastRecallInterval float64    `json:"last_recall_interval"`
	DecayGradient      float64    `json:"decay_gradient"`
	LastAccessedAt     *time.Time `json:"last_accessed_at,omitempty"`

	LastUpdateSource string  `json:"last_update_source,omitempty"`
	Confidence       float64 `json:"confidence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RelationshipCategory is derived from the ordered pair of endpoint kinds.
// The six categories form a closed set; see graph.DeriveCategory.
type RelationshipCategory string

const (
	CategoryRelatesTo      RelationshipCategory = "relates_to"      // person -> person
	CategoryEngagesWith    RelationshipCategory = "engages_with"    // person -> concept
	CategoryInteractsWith  RelationshipCategory = "interacts_with"  // person -> entity
	CategoryConnectsTo     RelationshipCategory = "connects_to"     // concept -> concept
	CategoryAppliesTo      RelationshipCategory = "applies_to"      // concept -> entity
	CategoryAssociatedWith RelationshipCategory = "associated_with" // entity -> entity
)

// Relationship is a first-class edge between two nodes of the same user.
// Category is derived from the endpoint kinds, never chosen freely.
// Attitude and Proximity are 1-5 scores whose meaning is category-specific.
//
// Validity is bi-temporal: ValidFrom/ValidTo track when the relationship was
// true in the world, RecordedAt tracks when this system learned it.
// Contradicting a prior fact closes the old edge (ValidTo = now) and records
// a new one; history is never mutated.
type Relationship struct {
	ID       int64  `json:"id,omitempty"`
	PublicID string `json:"public_id"`
	UserID   string `json:"user_id"`

	FromID int64 `json:"from_id"`
	ToID   int64 `json:"to_id"`

	Category         RelationshipCategory `json:"category"`
	RelationshipType string               `json:"relationship_type"`
	Attitude         int                  `json:"attitude"`
	Proximity        int                  `json:"proximity"`
	Description      string               `json:"description"`
	Notes            []Note               `json:"notes,omitempty"`
	Confidence       float64              `json:"confidence"`

	Salience           float64    `json:"salience"`
	State              NodeState  `json:"state"`
	AccessCount        int        `json:"access_count"`
	RecallFrequency    float64    `json:"recall_frequency"`
	LastRecallInterval float64    `json:"last_recall_interval"`
	DecayGradient      float64    `json:"decay_gradient"`
	LastAccessedAt     *time.Time `json:"last_accessed_at,omitempty"`

	ValidFrom  time.Time  `json:"valid_from"`
	ValidTo    *time.Time `json:"valid_to,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the relationship is currently valid.
func (r *Relationship) Active() bool {
	return r.ValidTo == nil
}

// SourceStatus is the processing state machine of an ingested source.
type SourceStatus string

const (
	SourceInProgress SourceStatus = "in_progress"
	SourceExtracted  SourceStatus = "extracted"
	SourceCompleted  SourceStatus = "completed"
	SourceFailed     SourceStatus = "failed"
)

// Source is the episodic root record of one ingested document. ExternalID is
// the caller-supplied identifier used for idempotent lookup: re-ingesting the
// same external id finds the existing source instead of duplicating it.
// Every source also owns a graph node of KindSource addressed by EntityKey.
type Source struct {
	ID                int64        `json:"id,omitempty"`
	PublicID          string       `json:"public_id"`
	UserID            string       `json:"user_id"`
	ExternalID        string       `json:"external_id"`
	EntityKey         string       `json:"entity_key"`
	Name              string       `json:"name"`
	RawContent        string       `json:"raw_content"`
	NormalizedContent []string     `json:"normalized_content"`
	Summary           string       `json:"summary"`
	Participants      []string     `json:"participants,omitempty"`
	Status            SourceStatus `json:"processing_status"`
	EntityCount       int          `json:"entity_count"`
	ErrorMessage      string       `json:"error_message,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Candidate is one entity proposal returned by the extraction capability.
type Candidate struct {
	Name        string    `json:"name"`
	Kind        NodeKind  `json:"kind"`
	Description string    `json:"description"`
	Context     string    `json:"context,omitempty"`
	Subpoints   []string  `json:"subpoints,omitempty"`
	Confidence  float64   `json:"confidence"`
	Embedding   []float32 `json:"-"`
}
