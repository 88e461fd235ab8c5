package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const sourceColumns = `
	id, public_id, user_id, external_id, entity_key, name, raw_content,
	normalized_content, summary, participants, processing_status,
	entity_count, error_message, created_at, updated_at`

const getSourceByExternalIDSQL = `
	SELECT ` + sourceColumns + `
	FROM sources
	WHERE user_id = $1 AND external_id = $2`

const createSourceSQL = `
	INSERT INTO sources (
		public_id, user_id, external_id, entity_key, name, raw_content,
		normalized_content, summary, participants, processing_status,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	RETURNING id`

const updateSourceStatusSQL = `
	UPDATE sources SET
		processing_status = $2,
		entity_count = $3,
		error_message = $4,
		updated_at = now()
	WHERE id = $1`

const listSourcesSQL = `
	SELECT ` + sourceColumns + `
	FROM sources
	WHERE user_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2 OFFSET $3`

func scanSource(row rowScanner) (*common.Source, error) {
	var src common.Source
	err := row.Scan(
		&src.ID, &src.PublicID, &src.UserID, &src.ExternalID, &src.EntityKey,
		&src.Name, &src.RawContent, &src.NormalizedContent, &src.Summary,
		&src.Participants, &src.Status, &src.EntityCount, &src.ErrorMessage,
		&src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// GetSourceByExternalID is the idempotent lookup used before creating a
// source: re-ingesting the same external id finds this row.
func (s *MemoryDBStorage) GetSourceByExternalID(ctx context.Context, userID, externalID string) (*common.Source, error) {
	src, err := scanSource(s.conn.QueryRow(ctx, getSourceByExternalIDSQL, userID, externalID))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return src, err
}

// CreateSource inserts a new source row. CreatedAt is taken from the struct
// when set so repeated runs with the same input reproduce their timestamps;
// a duplicate (user_id, external_id) fails with ErrDuplicateEntityKey so
// racing ingesters fall back to the lookup.
func (s *MemoryDBStorage) CreateSource(ctx context.Context, src *common.Source) (int64, error) {
	if src.UserID == "" || src.ExternalID == "" {
		return -1, fmt.Errorf("source requires user_id and external_id")
	}
	if src.PublicID == "" {
		publicID, err := gonanoid.New()
		if err != nil {
			return -1, err
		}
		src.PublicID = publicID
	}
	if src.Status == "" {
		src.Status = common.SourceInProgress
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}

	var id int64
	err := s.conn.QueryRow(ctx, createSourceSQL,
		src.PublicID, src.UserID, src.ExternalID, src.EntityKey, src.Name,
		src.RawContent, src.NormalizedContent, src.Summary, src.Participants,
		src.Status, src.CreatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return -1, fmt.Errorf("source %s/%s: %w", src.UserID, src.ExternalID, store.ErrDuplicateEntityKey)
		}
		return -1, err
	}
	src.ID = id
	return id, nil
}

// UpdateSourceStatus advances the source's processing state machine.
func (s *MemoryDBStorage) UpdateSourceStatus(
	ctx context.Context,
	id int64,
	status common.SourceStatus,
	entityCount int,
	errorMessage string,
) error {
	tag, err := s.conn.Exec(ctx, updateSourceStatusSQL, id, status, entityCount, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListSources returns a user's sources newest first.
func (s *MemoryDBStorage) ListSources(ctx context.Context, userID string, limit, offset int) ([]*common.Source, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(ctx, listSourcesSQL, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*common.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
