package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/auth"
	"github.com/yungbote/recall-backend/internal/enrich"
	"github.com/yungbote/recall-backend/internal/entity"
	"github.com/yungbote/recall-backend/internal/fetch"
	"github.com/yungbote/recall-backend/internal/ingest"
	"github.com/yungbote/recall-backend/internal/ingest/extract"
	"github.com/yungbote/recall-backend/internal/ingest/urlkey"
	"github.com/yungbote/recall-backend/internal/ingest/webx"
	"github.com/yungbote/recall-backend/internal/jobs"
	"github.com/yungbote/recall-backend/internal/jobs/pipeline/cover_render"
	"github.com/yungbote/recall-backend/internal/jobs/pipeline/unified_enrich"
	"github.com/yungbote/recall-backend/internal/jobs/runtime"
	"github.com/yungbote/recall-backend/internal/jobs/worker"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/retrieve"
	"github.com/yungbote/recall-backend/internal/webhook"
)

type Services struct {
	Auth      auth.Service
	Jobs      jobs.Service
	Ingest    ingest.Service
	Retriever retrieve.Retriever

	Enricher enrich.Enricher
	Detector entity.Detector
	Matcher  entity.Matcher
	Resolver entity.Resolver

	Extractor  *extract.Extractor
	Worker     *worker.Worker
	Dispatcher *webhook.Dispatcher
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")

	authSvc, err := auth.NewService(db, log, r.Callers, cfg.JWTSecretKey, cfg.TokenTTL)
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}

	youtube, err := fetch.NewYouTubeClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init youtube client: %w", err)
	}
	github, err := fetch.NewGitHubClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init github client: %w", err)
	}
	arxiv, err := fetch.NewArxivClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init arxiv client: %w", err)
	}
	scholar, err := fetch.NewSemanticScholarClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init semantic scholar client: %w", err)
	}
	web, err := webx.NewExtractor(log)
	if err != nil {
		return Services{}, fmt.Errorf("init web extractor: %w", err)
	}
	extractor := extract.NewFromEnv(log)
	sponsor := urlkey.NewSponsorFilter()

	matcher, err := entity.NewMatcher(log, r.Entities)
	if err != nil {
		return Services{}, fmt.Errorf("init entity matcher: %w", err)
	}
	enricher, err := enrich.NewEnricher(log, c.Generator, r.TagAliases)
	if err != nil {
		return Services{}, fmt.Errorf("init enricher: %w", err)
	}
	detector, err := entity.NewDetector(log, sponsor, github, arxiv, scholar)
	if err != nil {
		return Services{}, fmt.Errorf("init entity detector: %w", err)
	}
	resolver, err := entity.NewResolver(log, r.Entities, r.Edges, matcher, c.Graph)
	if err != nil {
		return Services{}, fmt.Errorf("init entity resolver: %w", err)
	}

	reranker, err := retrieve.NewLLMReranker(log, c.Generator)
	if err != nil {
		return Services{}, fmt.Errorf("init reranker: %w", err)
	}
	retriever, err := retrieve.NewRetriever(log, c.Generator, c.Embedder, reranker, c.Vectors, r.Chunks, r.Contents)
	if err != nil {
		return Services{}, fmt.Errorf("init retriever: %w", err)
	}

	jobSvc, err := jobs.NewService(db, log, r.Jobs, r.Contents, c.Events)
	if err != nil {
		return Services{}, fmt.Errorf("init job service: %w", err)
	}

	ingestor, err := ingest.NewService(log, r.Contents, r.Chunks, r.Links, r.Edges,
		jobSvc, c.Bucket, youtube, web, extractor, c.Vectors, c.Graph)
	if err != nil {
		return Services{}, fmt.Errorf("init ingest service: %w", err)
	}

	registry := runtime.NewRegistry()
	if err := registry.Register(unified_enrich.New(db, log, r.Contents, r.Chunks, r.Links, r.Entities,
		jobSvc, enricher, detector, matcher, resolver, c.Embedder, c.Vectors, c.Bucket)); err != nil {
		return Services{}, fmt.Errorf("register unified_enrich: %w", err)
	}
	if err := registry.Register(cover_render.New(db, log, r.Contents, c.Bucket)); err != nil {
		return Services{}, fmt.Errorf("register cover_render: %w", err)
	}
	jobWorker := worker.New(db, log, r.Jobs, registry, c.Events)

	dispatcher, err := webhook.NewDispatcher(db, log, c.Events, r.Contents, r.Callers)
	if err != nil {
		return Services{}, fmt.Errorf("init webhook dispatcher: %w", err)
	}

	return Services{
		Auth:       authSvc,
		Jobs:       jobSvc,
		Ingest:     ingestor,
		Retriever:  retriever,
		Enricher:   enricher,
		Detector:   detector,
		Matcher:    matcher,
		Resolver:   resolver,
		Extractor:  extractor,
		Worker:     jobWorker,
		Dispatcher: dispatcher,
	}, nil
}
