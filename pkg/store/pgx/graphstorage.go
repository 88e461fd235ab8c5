package pgx

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/ai"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// MemoryDBStorage implements store.MemoryStorage on PostgreSQL with pgvector
// for similarity search and fuzzystrmatch for edit-distance search. The AI
// client regenerates embeddings when a node's name, description or notes
// change; writes that touch embeddings are serialized with a mutex.
type MemoryDBStorage struct {
	conn     pgxIConn
	aiClient ai.MemoryAIClient
	dbLock   sync.Mutex
}

// NewMemoryDBStorageWithConnection creates a MemoryDBStorage using an
// existing database connection or pool.
func NewMemoryDBStorageWithConnection(
	conn pgxIConn,
	aiClient ai.MemoryAIClient,
) *MemoryDBStorage {
	return &MemoryDBStorage{
		conn:     conn,
		aiClient: aiClient,
		dbLock:   sync.Mutex{},
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// nodeEmbeddingInput builds the text a node's embedding is derived from:
// name, description and every note's content, in that order.
func nodeEmbeddingInput(name, description string, notes []common.Note) []byte {
	parts := make([]string, 0, 2+len(notes))
	parts = append(parts, name, description)
	for _, n := range notes {
		parts = append(parts, n.Content)
	}
	return []byte(strings.Join(parts, "\n"))
}
