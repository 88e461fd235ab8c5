package pgx

import (
	"context"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
)

const linkMentionSQL = `
	INSERT INTO mentions (source_node_id, target_node_id, created_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (source_node_id, target_node_id) DO NOTHING`

const getMentionedNodesSQL = `
	SELECT ` + nodeColumns + `
	FROM nodes
	JOIN mentions ON mentions.target_node_id = nodes.id
	WHERE mentions.source_node_id = $1
	ORDER BY mentions.created_at ASC, nodes.id ASC`

// LinkMention records a provenance edge from a source node to a mentioned
// node. Repeated calls with the same pair are no-ops; the stored created_at
// keeps the timestamp of the first ingestion.
func (s *MemoryDBStorage) LinkMention(ctx context.Context, sourceNodeID, targetNodeID int64, createdAt time.Time) error {
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.conn.Exec(ctx, linkMentionSQL, sourceNodeID, targetNodeID, createdAt)
	return err
}

// GetMentionedNodes returns the nodes a source mentions, oldest link first.
func (s *MemoryDBStorage) GetMentionedNodes(ctx context.Context, sourceNodeID int64) ([]*common.Node, error) {
	rows, err := s.conn.Query(ctx, getMentionedNodesSQL, sourceNodeID)
	if err != nil {
		return nil, err
	}
	return scanNodeRows(rows)
}
