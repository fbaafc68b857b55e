package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/recall-backend/internal/http/handlers"
	"github.com/yungbote/recall-backend/internal/http/middleware"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	AuthMiddleware *middleware.AuthMiddleware

	AuthHandler    *handlers.AuthHandler
	IngestHandler  *handlers.IngestHandler
	ContentHandler *handlers.ContentHandler
	EntityHandler  *handlers.EntityHandler
	SearchHandler  *handlers.SearchHandler
	GraphHandler   *handlers.GraphHandler
	JobHandler     *handlers.JobHandler
	TagHandler     *handlers.TagHandler
	HealthHandler  *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(middleware.RequestLogger(cfg.Log))
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(otelgin.Middleware("recall"))

	// Public
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", func(c *gin.Context) {
			cfg.Metrics.WriteHTTP(c.Writer, c.Request)
		})
	}
	if cfg.AuthHandler != nil {
		r.POST("/auth/token", cfg.AuthHandler.MintToken)
	}

	protected := r.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Ingestion
		if cfg.IngestHandler != nil {
			protected.POST("/ingest", cfg.IngestHandler.IngestURL)
			protected.POST("/content", cfg.IngestHandler.UploadDocument)
		}

		// Content
		if cfg.ContentHandler != nil {
			protected.GET("/content", cfg.ContentHandler.List)
			protected.GET("/content/:id", cfg.ContentHandler.Get)
			protected.GET("/content/:id/content", cfg.ContentHandler.Download)
			protected.PATCH("/content/:id", cfg.ContentHandler.Patch)
			protected.DELETE("/content/:id", cfg.ContentHandler.Delete)
			protected.POST("/content/:id/reprocess", cfg.ContentHandler.Reprocess)
		}

		// Entities
		if cfg.EntityHandler != nil {
			protected.GET("/entities", cfg.EntityHandler.List)
			protected.GET("/entities/topics", cfg.EntityHandler.Topics)
			protected.GET("/entities/duplicates", cfg.EntityHandler.Duplicates)
			protected.GET("/entities/:id", cfg.EntityHandler.Get)
			protected.GET("/entities/:id/content", cfg.EntityHandler.Content)
			protected.PATCH("/entities/:id", cfg.EntityHandler.Patch)
			protected.DELETE("/entities/:id", cfg.EntityHandler.Delete)
		}

		// Retrieval
		if cfg.SearchHandler != nil {
			protected.POST("/search", cfg.SearchHandler.Search)
			protected.POST("/search/agentic", cfg.SearchHandler.Agentic)
		}

		// Graph views
		if cfg.GraphHandler != nil {
			protected.GET("/graph", cfg.GraphHandler.Overview)
			protected.GET("/graph/neighborhood/:id", cfg.GraphHandler.Neighborhood)
		}

		// Jobs
		if cfg.JobHandler != nil {
			protected.GET("/jobs", cfg.JobHandler.List)
			protected.GET("/jobs/drift", cfg.JobHandler.Drift)
			protected.GET("/jobs/:id", cfg.JobHandler.Get)
			protected.POST("/jobs/:id/cancel", cfg.JobHandler.Cancel)
		}

		// Tags
		if cfg.TagHandler != nil {
			protected.GET("/tags", cfg.TagHandler.List)
		}
	}

	return r
}
