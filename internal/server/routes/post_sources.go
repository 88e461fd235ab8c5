package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/internal/queue"
	"github.com/CaptainCrouton89/Saturn-sub003/internal/server/middleware"
	"github.com/CaptainCrouton89/Saturn-sub003/internal/storage"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Memo bodies above this size are parked in object storage and referenced
// from the queue message by key.
const inlinePayloadLimit = 32 * 1024

// CreateSourceHandler accepts a memo and queues it for ingestion.
func CreateSourceHandler(c echo.Context) error {
	type createSourceBody struct {
		ExternalID   string    `json:"external_id" validate:"required"`
		Name         string    `json:"name"`
		RawText      string    `json:"raw_text" validate:"required"`
		Participants []string  `json:"participants"`
		OccurredAt   time.Time `json:"occurred_at"`
	}

	type createSourceResponse struct {
		Message    string `json:"message"`
		ExternalID string `json:"external_id,omitempty"`
	}

	data := new(createSourceBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createSourceResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createSourceResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, createSourceResponse{
			Message: "Unauthorized",
		})
	}

	msg := queue.IngestMessage{
		UserID:       user.UserID,
		ExternalID:   data.ExternalID,
		Name:         data.Name,
		Participants: data.Participants,
		OccurredAt:   data.OccurredAt,
		RawText:      data.RawText,
	}

	ctx := c.Request().Context()
	if len(data.RawText) > inlinePayloadLimit {
		pId, err := gonanoid.New()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, createSourceResponse{
				Message: "Internal server error",
			})
		}
		s3Client := c.(*middleware.AppContext).App.S3
		key, err := storage.PutPayload(ctx, s3Client, user.UserID, pId, []byte(data.RawText))
		if err != nil {
			logger.Error("Failed to store memo payload", "err", err)
			return c.JSON(http.StatusInternalServerError, createSourceResponse{
				Message: "Internal server error",
			})
		}
		msg.RawText = ""
		msg.PayloadKey = key
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createSourceResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.IngestQueue, body); err != nil {
		logger.Error("Failed to publish to ingest_queue", "err", err)
		return c.JSON(http.StatusInternalServerError, createSourceResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, createSourceResponse{
		Message:    "Source queued for ingestion",
		ExternalID: data.ExternalID,
	})
}
