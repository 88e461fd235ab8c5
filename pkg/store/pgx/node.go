package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pgvector/pgvector-go"
)

const nodeColumns = `
	id, public_id, entity_key, user_id, kind, name, canonical_name,
	description, attributes, notes, salience, state, access_count,
	recall_frequency, last_recall_interval, decay_gradient, last_accessed_at,
	last_update_source, confidence, created_at, updated_at`

const createNodeSQL = `
	INSERT INTO nodes (
		public_id, entity_key, user_id, kind, name, canonical_name,
		description, attributes, notes, embedding, salience, state,
		last_update_source, confidence
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING id`

const getNodeByIDSQL = `
	SELECT ` + nodeColumns + `
	FROM nodes
	WHERE id = $1`

const getNodeByEntityKeySQL = `
	SELECT ` + nodeColumns + `
	FROM nodes
	WHERE user_id = $1 AND entity_key = $2`

const updateNodeFieldsSQL = `
	UPDATE nodes SET
		name = COALESCE($3, name),
		canonical_name = COALESCE($4, canonical_name),
		description = COALESCE($5, description),
		attributes = attributes || $6::jsonb,
		confidence = COALESCE($7, confidence),
		state = COALESCE($8, state),
		last_update_source = COALESCE($9, last_update_source),
		updated_at = now()
	WHERE user_id = $1 AND entity_key = $2
	RETURNING ` + nodeColumns

const appendNodeNotesSQL = `
	UPDATE nodes SET
		notes = notes || $3::jsonb,
		updated_at = now()
	WHERE user_id = $1 AND entity_key = $2
	RETURNING id, name, description, notes`

const setNodeEmbeddingSQL = `
	UPDATE nodes SET embedding = $2 WHERE id = $1`

const touchNodeSQL = `
	UPDATE nodes SET
		access_count = access_count + 1,
		salience = LEAST(1.0, salience + (1.0 - salience) * 0.1),
		last_recall_interval = CASE
			WHEN last_accessed_at IS NULL THEN 0
			ELSE EXTRACT(EPOCH FROM (now() - last_accessed_at))
		END,
		recall_frequency = recall_frequency * 0.9 + 0.1,
		state = CASE
			WHEN state = 'candidate' AND access_count + 1 >= 3 THEN 'active'
			WHEN state = 'active' AND access_count + 1 >= 10 THEN 'core'
			ELSE state
		END,
		last_accessed_at = now(),
		updated_at = now()
	WHERE user_id = $1 AND entity_key = $2`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*common.Node, error) {
	var n common.Node
	err := row.Scan(
		&n.ID, &n.PublicID, &n.EntityKey, &n.UserID, &n.Kind, &n.Name,
		&n.CanonicalName, &n.Description, &n.Attributes, &n.Notes,
		&n.Salience, &n.State, &n.AccessCount, &n.RecallFrequency,
		&n.LastRecallInterval, &n.DecayGradient, &n.LastAccessedAt,
		&n.LastUpdateSource, &n.Confidence, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNodeRows(rows pgxv5.Rows) ([]*common.Node, error) {
	defer rows.Close()
	var out []*common.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CreateNode inserts a new node under strict create semantics: a duplicate
// (user_id, entity_key) fails with store.ErrDuplicateEntityKey so the caller
// can re-resolve against the row that won the race.
func (s *MemoryDBStorage) CreateNode(ctx context.Context, node *common.Node) (int64, error) {
	if node.UserID == "" || node.EntityKey == "" {
		return -1, fmt.Errorf("node requires user_id and entity_key")
	}
	if !node.Kind.Valid() {
		return -1, fmt.Errorf("invalid node kind %q", node.Kind)
	}

	embedding, err := s.aiClient.GenerateEmbedding(ctx, nodeEmbeddingInput(node.Name, node.Description, node.Notes))
	if err != nil {
		return -1, fmt.Errorf("failed to embed node: %w", err)
	}

	if node.PublicID == "" {
		publicID, err := gonanoid.New()
		if err != nil {
			return -1, err
		}
		node.PublicID = publicID
	}
	if node.CanonicalName == "" {
		node.CanonicalName = node.Name
	}
	if node.State == "" {
		node.State = common.StateCandidate
	}
	if node.Salience == 0 {
		node.Salience = 0.5
	}
	if node.Confidence == 0 {
		node.Confidence = 0.5
	}
	if node.Attributes == nil {
		node.Attributes = map[string]any{}
	}

	notesJSON, err := json.Marshal(node.Notes)
	if err != nil {
		return -1, err
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	var id int64
	err = s.conn.QueryRow(ctx, createNodeSQL,
		node.PublicID, node.EntityKey, node.UserID, node.Kind, node.Name,
		node.CanonicalName, node.Description, node.Attributes, notesJSON,
		pgvector.NewVector(embedding), node.Salience, node.State,
		node.LastUpdateSource, node.Confidence,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return -1, fmt.Errorf("node %s/%s: %w", node.UserID, node.EntityKey, store.ErrDuplicateEntityKey)
		}
		return -1, err
	}
	node.ID = id
	return id, nil
}

func (s *MemoryDBStorage) GetNodeByID(ctx context.Context, id int64) (*common.Node, error) {
	n, err := scanNode(s.conn.QueryRow(ctx, getNodeByIDSQL, id))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return n, err
}

func (s *MemoryDBStorage) GetNodeByEntityKey(ctx context.Context, userID, entityKey string) (*common.Node, error) {
	n, err := scanNode(s.conn.QueryRow(ctx, getNodeByEntityKeySQL, userID, entityKey))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return n, err
}

// UpdateNodeFields applies a partial update with coalesce semantics: nil
// pointers preserve the stored value, attributes are merged key-wise. The
// node embedding is regenerated when name or description changed.
func (s *MemoryDBStorage) UpdateNodeFields(
	ctx context.Context,
	userID, entityKey string,
	update store.NodeFieldUpdate,
) (*common.Node, error) {
	attrs := update.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	n, err := scanNode(s.conn.QueryRow(ctx, updateNodeFieldsSQL,
		userID, entityKey,
		update.Name, update.CanonicalName, update.Description,
		attrs, update.Confidence, update.State, update.LastUpdateSource,
	))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if update.Name != nil || update.Description != nil {
		if err := s.refreshNodeEmbedding(ctx, n.ID, n.Name, n.Description, n.Notes); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AppendNodeNotes appends notes to the node's append-only note list and
// regenerates the node embedding from the new full text.
func (s *MemoryDBStorage) AppendNodeNotes(
	ctx context.Context,
	userID, entityKey string,
	notes []common.Note,
) error {
	if len(notes) == 0 {
		return nil
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return err
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	var (
		id          int64
		name        string
		description string
		allNotes    []common.Note
	)
	err = s.conn.QueryRow(ctx, appendNodeNotesSQL,
		userID, entityKey, notesJSON,
	).Scan(&id, &name, &description, &allNotes)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	return s.refreshNodeEmbedding(ctx, id, name, description, allNotes)
}

// TouchNode records an access: increments counters, boosts salience toward
// 1.0 and promotes candidate nodes to active and active nodes to core once
// they cross the access thresholds.
func (s *MemoryDBStorage) TouchNode(ctx context.Context, userID, entityKey string) error {
	tag, err := s.conn.Exec(ctx, touchNodeSQL, userID, entityKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MemoryDBStorage) refreshNodeEmbedding(
	ctx context.Context,
	id int64,
	name, description string,
	notes []common.Note,
) error {
	embedding, err := s.aiClient.GenerateEmbedding(ctx, nodeEmbeddingInput(name, description, notes))
	if err != nil {
		return fmt.Errorf("failed to refresh node embedding: %w", err)
	}
	_, err = s.conn.Exec(ctx, setNodeEmbeddingSQL, id, pgvector.NewVector(embedding))
	return err
}
