package server

import (
	"github.com/CaptainCrouton89/Saturn-sub003/internal/server/middleware"
	"github.com/CaptainCrouton89/Saturn-sub003/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Source routes
	apiRoutes.POST("/sources", routes.CreateSourceHandler)
	apiRoutes.GET("/sources", routes.GetSourcesHandler)
	apiRoutes.GET("/sources/:external_id", routes.GetSourceHandler)
	apiRoutes.GET("/sources/:external_id/entities", routes.GetSourceEntitiesHandler)
}
