package router

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"storygen/backend/internal/api"
	"storygen/backend/pkg/config"
	"storygen/backend/pkg/di"
	"storygen/backend/pkg/errors"
	"storygen/backend/pkg/logger"
	"storygen/backend/pkg/middleware"
)

// Track server start time for uptime calculations
var startTime = time.Now()

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Request ids must exist before the logger middleware copies them
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.ContextPropagationMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimitMiddleware(cfg.Security.MaxBodySize))

	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:    rate.Limit(cfg.Security.RateLimit),
		Burst:    cfg.Security.RateLimitBurst,
		CostFunc: requestCost,
	})
	engine.Use(rateLimiter.Middleware())
	container.OnClose(rateLimiter.Close)

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// routeRegistrar is implemented by every handler group in internal/api
type routeRegistrar interface {
	RegisterRoutes(r gin.IRoutes)
}

// SetupRoutes registers all application routes. Story and export routes are
// served both under /api/v1 and at the root for existing front-ends.
func (r *Router) SetupRoutes() {
	c := r.Container
	handlers := []routeRegistrar{
		api.NewStoryHandler(c.Story),
		api.NewExportHandler(c.Documents, c.Video),
		api.NewCoCreatorHandler(c.CoCreator),
		api.NewCharacterHandler(c.Memory),
	}

	v1 := r.Engine.Group("/api/v1")
	for _, h := range handlers {
		h.RegisterRoutes(v1)
		h.RegisterRoutes(r.Engine)
	}

	healthHandler := gin.WrapF(c.Health.HTTPHandler())
	r.Engine.GET("/health", healthHandler)
	v1.GET("/health", healthHandler)
	r.Engine.GET("/status", r.statusHandler())

	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if dir := r.Config.Export.OutputDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.Logger.LogError(err, "Failed to create output directory", "dir", dir)
		} else {
			r.Engine.Static("/outputs", dir)
		}
	}
}

// statusHandler reports process-level information without running checks
func (r *Router) statusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"env":    r.Config.Server.Env,
			"uptime": time.Since(startTime).Round(time.Second).String(),
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

// requestCost prices routes by the upstream work they trigger. Rendering
// and video export call a model once per scene.
func requestCost(c *gin.Context) int {
	route := strings.TrimPrefix(c.FullPath(), "/api/v1")
	switch route {
	case "/story/render", "/export/video":
		return 5
	case "/story/start", "/story/branch", "/cocreator/clarify", "/cocreator/upgrade", "/export/pdf":
		return 2
	}
	return 1
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimSpace(o)] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowAll && origin == "":
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowAll || set[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Origin, Cache-Control, X-Request-ID, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Trace-ID, X-RateLimit-Limit")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func bodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
