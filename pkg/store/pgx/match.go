package pgx

import (
	"context"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"

	"github.com/pgvector/pgvector-go"
)

const exactMatchSQL = `
	SELECT ` + nodeColumns + `
	FROM nodes
	WHERE user_id = $1 AND kind = $2 AND lower(canonical_name) = lower($3)`

// levenshtein() is capped at 255 characters per argument, hence the left().
const fuzzyMatchSQL = `
	SELECT ` + nodeColumns + `,
		levenshtein(left(lower(canonical_name), 255), left(lower($3), 255)) AS distance
	FROM nodes
	WHERE user_id = $1 AND kind = $2
		AND levenshtein(left(lower(canonical_name), 255), left(lower($3), 255)) <= $4
	ORDER BY distance ASC, id ASC
	LIMIT $5`

const embeddingMatchSQL = `
	SELECT ` + nodeColumns + `,
		1 - (embedding <=> $3) AS similarity
	FROM nodes
	WHERE user_id = $1 AND kind = $2
		AND embedding IS NOT NULL
		AND 1 - (embedding <=> $3) >= $4
	ORDER BY similarity DESC, id ASC
	LIMIT $5`

// GetNodesByExactName returns nodes whose canonical name equals the query
// name case-insensitively, scoped to one user and kind.
func (s *MemoryDBStorage) GetNodesByExactName(
	ctx context.Context,
	userID string,
	kind common.NodeKind,
	name string,
) ([]*common.Node, error) {
	rows, err := s.conn.Query(ctx, exactMatchSQL, userID, kind, name)
	if err != nil {
		return nil, err
	}
	return scanNodeRows(rows)
}

// GetNodesByFuzzyName returns nodes within maxDistance edits of the query
// name, ordered by distance ascending.
func (s *MemoryDBStorage) GetNodesByFuzzyName(
	ctx context.Context,
	userID string,
	kind common.NodeKind,
	name string,
	maxDistance, limit int,
) ([]store.FuzzyHit, error) {
	rows, err := s.conn.Query(ctx, fuzzyMatchSQL, userID, kind, name, maxDistance, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.FuzzyHit
	for rows.Next() {
		var (
			n        common.Node
			distance int
		)
		err := rows.Scan(
			&n.ID, &n.PublicID, &n.EntityKey, &n.UserID, &n.Kind, &n.Name,
			&n.CanonicalName, &n.Description, &n.Attributes, &n.Notes,
			&n.Salience, &n.State, &n.AccessCount, &n.RecallFrequency,
			&n.LastRecallInterval, &n.DecayGradient, &n.LastAccessedAt,
			&n.LastUpdateSource, &n.Confidence, &n.CreatedAt, &n.UpdatedAt,
			&distance,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, store.FuzzyHit{Node: &n, Distance: distance})
	}
	return out, rows.Err()
}

// GetNodesByEmbedding returns nodes whose stored embedding has cosine
// similarity of at least threshold to the query embedding, ordered by
// similarity descending.
func (s *MemoryDBStorage) GetNodesByEmbedding(
	ctx context.Context,
	userID string,
	kind common.NodeKind,
	embedding []float32,
	threshold float64,
	limit int,
) ([]store.EmbeddingHit, error) {
	rows, err := s.conn.Query(ctx, embeddingMatchSQL,
		userID, kind, pgvector.NewVector(embedding), threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.EmbeddingHit
	for rows.Next() {
		var (
			n          common.Node
			similarity float64
		)
		err := rows.Scan(
			&n.ID, &n.PublicID, &n.EntityKey, &n.UserID, &n.Kind, &n.Name,
			&n.CanonicalName, &n.Description, &n.Attributes, &n.Notes,
			&n.Salience, &n.State, &n.AccessCount, &n.RecallFrequency,
			&n.LastRecallInterval, &n.DecayGradient, &n.LastAccessedAt,
			&n.LastUpdateSource, &n.Confidence, &n.CreatedAt, &n.UpdatedAt,
			&similarity,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, store.EmbeddingHit{Node: &n, Similarity: similarity})
	}
	return out, rows.Err()
}
