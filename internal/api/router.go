package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/parser"
	"github.com/prasenjit/go-mockserver/internal/proxy"
	"github.com/prasenjit/go-mockserver/internal/stats"
	"github.com/prasenjit/go-mockserver/internal/storage"
	"github.com/prasenjit/go-mockserver/internal/tracing"
)

// Dependencies are the services the router exposes
type Dependencies struct {
	Store        storage.Storage
	Loader       *parser.Loader
	Stats        *stats.Collector
	Tracing      *tracing.Service
	Proxy        *proxy.Engine
	QueryTimeout time.Duration
	Logger       zerolog.Logger
}

// Router handles HTTP routing
type Router struct {
	engine  *gin.Engine
	deps    Dependencies
	handler *Handler
}

// NewRouter creates a new router
func NewRouter(deps Dependencies) *Router {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:  gin.New(),
		deps:    deps,
		handler: NewHandler(deps),
	}

	r.engine.Use(gin.Recovery())
	r.engine.Use(corsMiddleware())
	r.engine.Use(requestLogger(deps.Logger))

	r.setupRoutes()

	return r
}

// setupRoutes configures all routes
func (r *Router) setupRoutes() {
	r.engine.Any("/mock/:project/*path", r.deps.Proxy.Handle)

	api := r.engine.Group("/_api")
	{
		// Projects
		api.GET("/projects", r.handler.ListProjects)
		api.POST("/projects", r.handler.CreateProject)
		api.GET("/projects/:name", r.handler.GetProject)
		api.PUT("/projects/:name", r.handler.UpdateProject)
		api.DELETE("/projects/:name", r.handler.DeleteProject)
		api.GET("/projects/:name/operations", r.handler.ListOperations)
		api.GET("/projects/:name/preview", r.handler.PreviewOperation)
		api.GET("/projects/:name/tables", r.handler.ListTables)

		// Processors and expectations
		api.GET("/processors", r.handler.ListProcessors)
		api.POST("/processors", r.handler.CreateProcessor)
		api.GET("/processors/:id", r.handler.GetProcessor)
		api.PUT("/processors/:id", r.handler.UpdateProcessor)
		api.DELETE("/processors/:id", r.handler.DeleteProcessor)
		api.PUT("/expect-mode", r.handler.SetExpectMode)

		// SQL mappings
		api.GET("/mappings", r.handler.GetMappings)
		api.PUT("/mappings", r.handler.SaveMapping)
		api.DELETE("/mappings", r.handler.DeleteMapping)

		// Statistics
		api.GET("/stats", r.handler.GetGlobalStats)
		api.GET("/stats/projects/:name", r.handler.GetProjectStats)
		api.POST("/stats/reset", r.handler.ResetStats)

		// Tracing
		api.GET("/traces", r.handler.ListTraces)
		api.GET("/traces/:id", r.handler.GetTrace)
		api.DELETE("/traces", r.handler.ClearTraces)

		api.GET("/health", r.handler.HealthCheck)
	}

	// gin matches the static segment before :id
	wsHandler := tracing.NewWebSocketHandler(r.deps.Tracing, r.deps.Logger)
	r.engine.GET("/_api/traces/stream", gin.WrapH(wsHandler))
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Mock-Status, X-Mock-Example")
		c.Header("Access-Control-Expose-Headers", "X-Mock-Stage")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger writes one debug line per request
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}
