package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/CaptainCrouton89/Saturn-sub003/internal/server/middleware"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/logger"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"
	memstore "github.com/CaptainCrouton89/Saturn-sub003/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// GetSourcesHandler lists the caller's ingested sources, newest first.
func GetSourcesHandler(c echo.Context) error {
	type getSourcesResponse struct {
		Message string           `json:"message"`
		Sources []*common.Source `json:"sources,omitempty"`
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, getSourcesResponse{
			Message: "Unauthorized",
		})
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			return c.JSON(http.StatusBadRequest, getSourcesResponse{
				Message: "Invalid limit",
			})
		}
		limit = parsed
	}
	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, getSourcesResponse{
				Message: "Invalid offset",
			})
		}
		offset = parsed
	}

	app := c.(*middleware.AppContext).App
	st := memstore.NewMemoryDBStorageWithConnection(app.DBConn, app.AiClient)

	sources, err := st.ListSources(c.Request().Context(), user.UserID, limit, offset)
	if err != nil {
		logger.Error("Failed to list sources", "err", err)
		return c.JSON(http.StatusInternalServerError, getSourcesResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getSourcesResponse{
		Message: "Sources retrieved successfully",
		Sources: sources,
	})
}

// GetSourceHandler returns one source with its processing status and
// diagnostics.
func GetSourceHandler(c echo.Context) error {
	type getSourceResponse struct {
		Message string         `json:"message"`
		Source  *common.Source `json:"source,omitempty"`
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, getSourceResponse{
			Message: "Unauthorized",
		})
	}

	externalID := c.Param("external_id")
	if externalID == "" {
		return c.JSON(http.StatusBadRequest, getSourceResponse{
			Message: "Missing external_id",
		})
	}

	app := c.(*middleware.AppContext).App
	st := memstore.NewMemoryDBStorageWithConnection(app.DBConn, app.AiClient)

	source, err := st.GetSourceByExternalID(c.Request().Context(), user.UserID, externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getSourceResponse{
				Message: "Source not found",
			})
		}
		logger.Error("Failed to get source", "err", err)
		return c.JSON(http.StatusInternalServerError, getSourceResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getSourceResponse{
		Message: "Source retrieved successfully",
		Source:  source,
	})
}
