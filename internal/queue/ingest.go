package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/internal/storage"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/ai"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/graph"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/leaselock"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/logger"
	memstore "github.com/CaptainCrouton89/Saturn-sub003/pkg/store/pgx"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IngestMessage is the wire format published to the ingest queue. Large
// memo bodies are offloaded to object storage and referenced by PayloadKey
// instead of being carried inline.
type IngestMessage struct {
	UserID       string    `json:"user_id"`
	ExternalID   string    `json:"external_id"`
	Name         string    `json:"name,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	OccurredAt   time.Time `json:"occurred_at,omitzero"`

	RawText    string `json:"raw_text,omitempty"`
	PayloadKey string `json:"payload_key,omitempty"`
}

// ProcessIngestMessage runs one memo through the ingestion pipeline. A
// per-user lease serializes ingestion so concurrent memos for the same user
// cannot race each other on entity resolution.
func ProcessIngestMessage(
	ctx context.Context,
	s3Client *s3.Client,
	aiClient ai.MemoryAIClient,
	conn *pgxpool.Pool,
	data string,
) error {
	var msg IngestMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return fmt.Errorf("failed to unmarshal ingest message: %w", err)
	}
	if msg.UserID == "" || msg.ExternalID == "" {
		return fmt.Errorf("ingest message missing user_id or external_id")
	}

	rawText := msg.RawText
	if msg.PayloadKey != "" {
		payload, err := storage.GetPayload(ctx, s3Client, msg.PayloadKey)
		if err != nil {
			return fmt.Errorf("failed to fetch memo payload %s: %w", msg.PayloadKey, err)
		}
		rawText = string(payload)
	}

	memClient, err := graph.NewMemoryClient(graph.NewMemoryClientParams{
		Storage:  memstore.NewMemoryDBStorageWithConnection(conn, aiClient),
		AIClient: aiClient,
	})
	if err != nil {
		return err
	}

	locks := leaselock.New(conn)
	lockKey := "ingest:" + msg.UserID

	return locks.WithLease(ctx, lockKey, leaselock.Options{
		TTL:          10 * time.Minute,
		Wait:         true,
		WaitInterval: 500 * time.Millisecond,
		WaitJitter:   250 * time.Millisecond,
		TokenPrefix:  "worker_",
	}, func(ctx context.Context) error {
		result, err := memClient.IngestSource(ctx, graph.IngestParams{
			UserID:       msg.UserID,
			ExternalID:   msg.ExternalID,
			Name:         msg.Name,
			RawText:      rawText,
			Participants: msg.Participants,
			OccurredAt:   msg.OccurredAt,
		})
		if err != nil {
			var abort *graph.AbortingError
			if errors.As(err, &abort) {
				// Aborts are deterministic, retrying the same memo
				// cannot succeed. Log and drop instead of requeueing.
				logger.Error(
					"Ingestion aborted",
					"user_id", msg.UserID,
					"external_id", msg.ExternalID,
					"phase", abort.Phase,
					"err", err,
				)
				return nil
			}
			return err
		}

		if msg.PayloadKey != "" {
			if err := storage.DeletePayload(ctx, s3Client, msg.PayloadKey); err != nil {
				logger.Warn("Failed to delete memo payload", "key", msg.PayloadKey, "err", err)
			}
		}

		for _, phaseErr := range result.Errors {
			logger.Warn(
				"Ingestion phase degraded",
				"external_id", msg.ExternalID,
				"phase", phaseErr.Phase,
				"message", phaseErr.Message,
			)
		}
		return nil
	})
}
