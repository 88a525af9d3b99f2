package router

import (
	"os"

	"github.com/gin-gonic/gin"

	"storygen/backend/pkg/validator"
)

// AddOpenAPIValidation validates story, export and co-creator requests
// against the schema at schemaPath and serves the schema itself on
// /api/docs/openapi.yaml. It only guards routes registered after it, so it
// must run before SetupRoutes. A missing or invalid schema is logged and
// validation stays off.
func (r *Router) AddOpenAPIValidation(schemaPath string) bool {
	if _, err := os.Stat(schemaPath); err != nil {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return false
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.LogError(err, "Failed to initialize OpenAPI validator", "path", schemaPath)
		return false
	}

	r.Engine.Use(v.Middleware())
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Header("Content-Type", "application/yaml")
		c.File(schemaPath)
	})

	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath, "operations", v.Operations())
	return true
}
