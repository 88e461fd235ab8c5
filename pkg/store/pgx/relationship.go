package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pgvector/pgvector-go"
)

const relationshipColumns = `
	id, public_id, user_id, from_node_id, to_node_id, category,
	relationship_type, attitude, proximity, description, notes, confidence,
	salience, state, access_count, recall_frequency, last_recall_interval,
	decay_gradient, last_accessed_at, valid_from, valid_to, recorded_at,
	created_at, updated_at`

const getActiveRelationshipSQL = `
	SELECT ` + relationshipColumns + `
	FROM relationships
	WHERE user_id = $1 AND from_node_id = $2 AND to_node_id = $3
		AND category = $4 AND valid_to IS NULL`

const insertRelationshipSQL = `
	INSERT INTO relationships (
		public_id, user_id, from_node_id, to_node_id, category,
		relationship_type, attitude, proximity, description, notes,
		relation_embedding, confidence, salience, state,
		valid_from, recorded_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING id`

const updateRelationshipSQL = `
	UPDATE relationships SET
		relationship_type = COALESCE($2, relationship_type),
		attitude = COALESCE($3, attitude),
		proximity = COALESCE($4, proximity),
		description = COALESCE($5, description),
		confidence = COALESCE($6, confidence),
		updated_at = now()
	WHERE id = $1`

const setRelationEmbeddingSQL = `
	UPDATE relationships SET relation_embedding = $2 WHERE id = $1`

const closeRelationshipSQL = `
	UPDATE relationships SET valid_to = $2, updated_at = now()
	WHERE id = $1 AND valid_to IS NULL`

const appendRelationshipNotesSQL = `
	UPDATE relationships SET
		notes = notes || $2::jsonb,
		updated_at = now()
	WHERE id = $1
	RETURNING notes`

const setNotesEmbeddingSQL = `
	UPDATE relationships SET notes_embedding = $2 WHERE id = $1`

const countNodeRelationshipsSQL = `
	SELECT count(*)
	FROM relationships
	WHERE user_id = $1 AND (from_node_id = $2 OR to_node_id = $2)
		AND valid_to IS NULL`

func scanRelationship(row rowScanner) (*common.Relationship, error) {
	var r common.Relationship
	err := row.Scan(
		&r.ID, &r.PublicID, &r.UserID, &r.FromID, &r.ToID, &r.Category,
		&r.RelationshipType, &r.Attitude, &r.Proximity, &r.Description,
		&r.Notes, &r.Confidence, &r.Salience, &r.State, &r.AccessCount,
		&r.RecallFrequency, &r.LastRecallInterval, &r.DecayGradient,
		&r.LastAccessedAt, &r.ValidFrom, &r.ValidTo, &r.RecordedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetActiveRelationship returns the currently valid edge between the two
// nodes in the given category, or store.ErrNotFound when no active edge
// exists. The partial unique index guarantees at most one.
func (s *MemoryDBStorage) GetActiveRelationship(
	ctx context.Context,
	userID string,
	fromID, toID int64,
	category common.RelationshipCategory,
) (*common.Relationship, error) {
	r, err := scanRelationship(s.conn.QueryRow(ctx, getActiveRelationshipSQL, userID, fromID, toID, category))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

// InsertRelationship inserts a new edge with the given relation embedding.
// ValidFrom and RecordedAt default to now when unset.
func (s *MemoryDBStorage) InsertRelationship(
	ctx context.Context,
	rel *common.Relationship,
	embedding []float32,
) (int64, error) {
	if rel.UserID == "" {
		return -1, fmt.Errorf("relationship requires user_id")
	}

	if rel.PublicID == "" {
		publicID, err := gonanoid.New()
		if err != nil {
			return -1, err
		}
		rel.PublicID = publicID
	}
	if rel.ValidFrom.IsZero() {
		rel.ValidFrom = time.Now()
	}
	if rel.RecordedAt.IsZero() {
		rel.RecordedAt = time.Now()
	}
	if rel.Confidence == 0 {
		rel.Confidence = 0.8
	}
	if rel.Salience == 0 {
		rel.Salience = 0.5
	}
	if rel.State == "" {
		rel.State = common.StateCandidate
	}

	notesJSON, err := json.Marshal(rel.Notes)
	if err != nil {
		return -1, err
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	var id int64
	err = s.conn.QueryRow(ctx, insertRelationshipSQL,
		rel.PublicID, rel.UserID, rel.FromID, rel.ToID, rel.Category,
		rel.RelationshipType, rel.Attitude, rel.Proximity, rel.Description,
		notesJSON, pgvector.NewVector(embedding), rel.Confidence,
		rel.Salience, rel.State, rel.ValidFrom, rel.RecordedAt,
	).Scan(&id)
	if err != nil {
		return -1, err
	}
	rel.ID = id
	return id, nil
}

// UpdateRelationship applies a partial property merge to an existing edge.
// A non-nil embedding replaces the stored relation embedding; nil leaves it
// untouched.
func (s *MemoryDBStorage) UpdateRelationship(
	ctx context.Context,
	id int64,
	update store.RelationshipFieldUpdate,
	embedding []float32,
) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tag, err := s.conn.Exec(ctx, updateRelationshipSQL,
		id, update.RelationshipType, update.Attitude, update.Proximity,
		update.Description, update.Confidence,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	if embedding != nil {
		if _, err := s.conn.Exec(ctx, setRelationEmbeddingSQL, id, pgvector.NewVector(embedding)); err != nil {
			return err
		}
	}
	return nil
}

// CloseRelationship ends an edge's validity at validTo. The row itself stays
// for point-in-time queries; only edges still open can be closed.
func (s *MemoryDBStorage) CloseRelationship(ctx context.Context, id int64, validTo time.Time) error {
	tag, err := s.conn.Exec(ctx, closeRelationshipSQL, id, validTo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendRelationshipNotes appends to the edge's append-only note list and
// regenerates the notes embedding from the full note text.
func (s *MemoryDBStorage) AppendRelationshipNotes(
	ctx context.Context,
	id int64,
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

	var allNotes []common.Note
	err = s.conn.QueryRow(ctx, appendRelationshipNotesSQL, id, notesJSON).Scan(&allNotes)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	contents := make([]byte, 0, 256)
	for i, n := range allNotes {
		if i > 0 {
			contents = append(contents, '\n')
		}
		contents = append(contents, n.Content...)
	}
	embedding, err := s.aiClient.GenerateEmbedding(ctx, contents)
	if err != nil {
		return fmt.Errorf("failed to refresh notes embedding: %w", err)
	}
	_, err = s.conn.Exec(ctx, setNotesEmbeddingSQL, id, pgvector.NewVector(embedding))
	return err
}

// CountNodeRelationships counts the active edges touching a node in either
// direction.
func (s *MemoryDBStorage) CountNodeRelationships(ctx context.Context, userID string, nodeID int64) (int, error) {
	var count int
	err := s.conn.QueryRow(ctx, countNodeRelationshipsSQL, userID, nodeID).Scan(&count)
	return count, err
}
