package server

import (
	"github.com/OFFIS-RIT/leech/internal/server/middleware"
	"github.com/OFFIS-RIT/leech/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Pipeline entry routes
	apiRoutes.POST("/extractions", routes.SubmitExtractionHandler, middleware.RequirePermission(middleware.PermissionSubmitExtraction))
	apiRoutes.POST("/sources/:id_source/records", routes.IngestSourceHandler, middleware.RequirePermission(middleware.PermissionIngestSource))
	apiRoutes.POST("/sources/:id_source/records/:record_id", routes.IngestRecordHandler, middleware.RequirePermission(middleware.PermissionIngestSource))

	// Vault routes
	apiRoutes.GET("/sensitive/:token", routes.GetSensitiveHandler, middleware.RequirePermission(middleware.PermissionReadSensitive))
}
