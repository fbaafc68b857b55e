package app

import (
	"github.com/yungbote/recall-backend/internal/http"
	httpH "github.com/yungbote/recall-backend/internal/http/handlers"
	httpMW "github.com/yungbote/recall-backend/internal/http/middleware"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health  *httpH.HealthHandler
	Auth    *httpH.AuthHandler
	Ingest  *httpH.IngestHandler
	Content *httpH.ContentHandler
	Entity  *httpH.EntityHandler
	Search  *httpH.SearchHandler
	Graph   *httpH.GraphHandler
	Job     *httpH.JobHandler
	Tag     *httpH.TagHandler
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireHandlers(log *logger.Logger, services Services, r Repos, c Clients) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:  httpH.NewHealthHandler(),
		Auth:    httpH.NewAuthHandler(services.Auth),
		Ingest:  httpH.NewIngestHandler(log, services.Ingest),
		Content: httpH.NewContentHandler(log, r.Contents, services.Ingest, c.Bucket),
		Entity:  httpH.NewEntityHandler(log, r.Entities, r.Edges, r.Contents, c.Graph),
		Search:  httpH.NewSearchHandler(log, services.Retriever),
		Graph:   httpH.NewGraphHandler(log, r.Contents, r.Links, r.Entities, r.Edges, c.Graph),
		Job:     httpH.NewJobHandler(log, services.Jobs),
		Tag:     httpH.NewTagHandler(log, r.Contents),
	}
}

func wireServer(log *logger.Logger, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		AuthMiddleware: middleware.Auth,
		AuthHandler:    handlers.Auth,
		IngestHandler:  handlers.Ingest,
		ContentHandler: handlers.Content,
		EntityHandler:  handlers.Entity,
		SearchHandler:  handlers.Search,
		GraphHandler:   handlers.Graph,
		JobHandler:     handlers.Job,
		TagHandler:     handlers.Tag,
		HealthHandler:  handlers.Health,
	})
}
