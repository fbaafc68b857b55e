package unified_enrich

import (
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
	"github.com/yungbote/recall-backend/internal/enrich"
	"github.com/yungbote/recall-backend/internal/entity"
	"github.com/yungbote/recall-backend/internal/jobs"
	"github.com/yungbote/recall-backend/internal/llm"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/gcp"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/pinecone"
)

/*
Pipeline is the unified_enrich job handler: one claimed pipeline_job row in,
a fully enriched content record out.

Stages run sequentially — tag_fetch, llm_call, parse, entity_resolve,
persist — with a cancellation check at every boundary. A stage failure fails
the job with that stage's code; nothing later runs. Edge mirroring and the
cover_render follow-up are best effort and never change the job outcome.
*/
type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	contents repos.ContentRepo
	chunks   repos.ContentChunkRepo
	links    repos.ContentLinkRepo
	entities repos.EntityRepo
	jobs     jobs.Service
	enricher enrich.Enricher
	detector entity.Detector
	matcher  entity.Matcher
	resolver entity.Resolver
	embedder llm.Embedder
	vectors  pinecone.VectorStore
	bucket   gcp.BucketService

	vectorNS   string
	chunkMax   int
	embedBatch int
	vocabCap   int
	topicCap   int
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	contents repos.ContentRepo,
	chunks repos.ContentChunkRepo,
	links repos.ContentLinkRepo,
	entities repos.EntityRepo,
	jobSvc jobs.Service,
	enricher enrich.Enricher,
	detector entity.Detector,
	matcher entity.Matcher,
	resolver entity.Resolver,
	embedder llm.Embedder,
	vectors pinecone.VectorStore,
	bucket gcp.BucketService,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", domainjobs.TypeUnifiedEnrich),
		contents:   contents,
		chunks:     chunks,
		links:      links,
		entities:   entities,
		jobs:       jobSvc,
		enricher:   enricher,
		detector:   detector,
		matcher:    matcher,
		resolver:   resolver,
		embedder:   embedder,
		vectors:    vectors,
		bucket:     bucket,
		vectorNS:   envutil.Str("VECTOR_NAMESPACE", "chunks"),
		chunkMax:   envutil.Int("CHUNK_MAX_TOKENS", 800),
		embedBatch: envutil.Int("EMBED_BATCH_SIZE", 64),
		vocabCap:   envutil.Int("ENRICH_VOCAB_CAP", 50),
		topicCap:   envutil.Int("ENRICH_TOPIC_CAP", 20),
	}
}

func (p *Pipeline) Type() string { return domainjobs.TypeUnifiedEnrich }
