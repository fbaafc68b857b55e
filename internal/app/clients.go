package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yungbote/recall-backend/internal/data/graph"
	"github.com/yungbote/recall-backend/internal/llm"
	"github.com/yungbote/recall-backend/internal/platform/gcp"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/neo4jdb"
	"github.com/yungbote/recall-backend/internal/platform/openai"
	"github.com/yungbote/recall-backend/internal/platform/pinecone"
	"github.com/yungbote/recall-backend/internal/realtime/bus"
)

type Clients struct {
	Bucket   gcp.BucketService
	Pinecone pinecone.Client
	Vectors  pinecone.VectorStore
	OpenAI   openai.Client

	// Generator chains the primary model with optional fallbacks; Embedder is
	// the raw client.
	Generator llm.Generator
	Embedder  llm.Embedder

	Graph  *neo4jdb.Client
	Events bus.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	bucket, err := resolveBucketService(log, cfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}

	pc, vectors, err := resolveVectorStore(log, cfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init vector store: %w", err)
	}

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	gen := llm.NewFallbackGenerator(log).Add("openai", openaiClient)
	if fallbackModel := strings.TrimSpace(os.Getenv("OPENAI_FALLBACK_MODEL")); fallbackModel != "" {
		gen.Add("openai:"+fallbackModel, openai.WithModel(openaiClient, fallbackModel))
	}

	graphClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init neo4j client: %w", err)
	}
	if graphClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		graph.EnsureSchema(ctx, graphClient, log)
		cancel()
	}

	events, err := bus.New(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init job event bus: %w", err)
	}

	return Clients{
		Bucket:    bucket,
		Pinecone:  pc,
		Vectors:   vectors,
		OpenAI:    openaiClient,
		Generator: gen,
		Embedder:  openaiClient,
		Graph:     graphClient,
		Events:    events,
	}, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Events != nil {
		_ = c.Events.Close()
	}
	if c.Graph != nil {
		_ = c.Graph.Close(ctx)
	}
}
