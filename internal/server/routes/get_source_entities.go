package routes

import (
	"errors"
	"net/http"

	"github.com/CaptainCrouton89/Saturn-sub003/internal/server/middleware"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/graph"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/logger"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"
	memstore "github.com/CaptainCrouton89/Saturn-sub003/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// GetSourceEntitiesHandler returns the graph nodes mentioned by a source,
// oldest link first.
func GetSourceEntitiesHandler(c echo.Context) error {
	type getSourceEntitiesResponse struct {
		Message  string         `json:"message"`
		Entities []*common.Node `json:"entities,omitempty"`
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, getSourceEntitiesResponse{
			Message: "Unauthorized",
		})
	}

	externalID := c.Param("external_id")
	if externalID == "" {
		return c.JSON(http.StatusBadRequest, getSourceEntitiesResponse{
			Message: "Missing external_id",
		})
	}

	app := c.(*middleware.AppContext).App
	st := memstore.NewMemoryDBStorageWithConnection(app.DBConn, app.AiClient)
	ctx := c.Request().Context()

	sourceKey := graph.DeriveEntityKey(externalID, common.KindSource, user.UserID)
	sourceNode, err := st.GetNodeByEntityKey(ctx, user.UserID, sourceKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getSourceEntitiesResponse{
				Message: "Source not found",
			})
		}
		logger.Error("Failed to get source node", "err", err)
		return c.JSON(http.StatusInternalServerError, getSourceEntitiesResponse{
			Message: "Internal server error",
		})
	}

	entities, err := st.GetMentionedNodes(ctx, sourceNode.ID)
	if err != nil {
		logger.Error("Failed to get mentioned nodes", "err", err)
		return c.JSON(http.StatusInternalServerError, getSourceEntitiesResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getSourceEntitiesResponse{
		Message:  "Entities retrieved successfully",
		Entities: entities,
	})
}
