package store

import (
	"context"
	"errors"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEntityKey is returned by CreateNode when the (user_id,
// entity_key) pair already exists. Callers treat it as a signal to re-resolve
// against the winning row, not as a fatal error.
var ErrDuplicateEntityKey = errors.New("entity key already exists")

// NodeFieldUpdate carries a partial node update. Nil pointers preserve the
// stored value, non-nil pointers replace it. Attributes are merged key-wise
// into the stored map, never replaced wholesale.
type NodeFieldUpdate struct {
	Name             *string
	CanonicalName    *string
	Description      *string
	Attributes       map[string]any
	Confidence       *float64
	State            *common.NodeState
	LastUpdateSource *string
}

// RelationshipFieldUpdate carries a partial relationship update with the same
// pointer semantics as NodeFieldUpdate.
type RelationshipFieldUpdate struct {
	RelationshipType *string
	Attitude         *int
	Proximity        *int
	Description      *string
	Confidence       *float64
}

// FuzzyHit is a node returned by the edit-distance matcher tier, with its raw
// levenshtein distance to the query name.
type FuzzyHit struct {
	Node     *common.Node
	Distance int
}

// EmbeddingHit is a node returned by the vector matcher tier, with its cosine
// similarity to the query embedding.
type EmbeddingHit struct {
	Node       *common.Node
	Similarity float64
}

// MemoryStorage is the persistence boundary of the memory graph. All lookups
// are scoped to one user's subgraph; nothing here crosses user boundaries.
type MemoryStorage interface {
	// Node writes. CreateNode is strict: a duplicate (user_id, entity_key)
	// fails with ErrDuplicateEntityKey instead of upserting. Update and
	// append calls regenerate the node embedding when name, description or
	// notes change.
	CreateNode(ctx context.Context, node *common.Node) (int64, error)
	UpdateNodeFields(ctx context.Context, userID, entityKey string, update NodeFieldUpdate) (*common.Node, error)
	AppendNodeNotes(ctx context.Context, userID, entityKey string, notes []common.Note) error
	TouchNode(ctx context.Context, userID, entityKey string) error

	// Node reads.
	GetNodeByID(ctx context.Context, id int64) (*common.Node, error)
	GetNodeByEntityKey(ctx context.Context, userID, entityKey string) (*common.Node, error)

	// Matcher primitives, read-only.
	GetNodesByExactName(ctx context.Context, userID string, kind common.NodeKind, name string) ([]*common.Node, error)
	GetNodesByFuzzyName(ctx context.Context, userID string, kind common.NodeKind, name string, maxDistance, limit int) ([]FuzzyHit, error)
	GetNodesByEmbedding(ctx context.Context, userID string, kind common.NodeKind, embedding []float32, threshold float64, limit int) ([]EmbeddingHit, error)

	// Relationships. Active means valid_to IS NULL; closing an edge sets
	// valid_to and leaves history untouched.
	GetActiveRelationship(ctx context.Context, userID string, fromID, toID int64, category common.RelationshipCategory) (*common.Relationship, error)
	InsertRelationship(ctx context.Context, rel *common.Relationship, embedding []float32) (int64, error)
	UpdateRelationship(ctx context.Context, id int64, update RelationshipFieldUpdate, embedding []float32) error
	CloseRelationship(ctx context.Context, id int64, validTo time.Time) error
	AppendRelationshipNotes(ctx context.Context, id int64, notes []common.Note) error
	CountNodeRelationships(ctx context.Context, userID string, nodeID int64) (int, error)

	// Sources.
	GetSourceByExternalID(ctx context.Context, userID, externalID string) (*common.Source, error)
	CreateSource(ctx context.Context, src *common.Source) (int64, error)
	UpdateSourceStatus(ctx context.Context, id int64, status common.SourceStatus, entityCount int, errorMessage string) error
	ListSources(ctx context.Context, userID string, limit, offset int) ([]*common.Source, error)

	// Mentions provenance edges, idempotent by (source, target) pair.
	LinkMention(ctx context.Context, sourceNodeID, targetNodeID int64, createdAt time.Time) error
	GetMentionedNodes(ctx context.Context, sourceNodeID int64) ([]*common.Node, error)
}
