package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedCaller(tb testing.TB, ctx context.Context, tx *gorm.DB, keyID string) *types.Caller {
	tb.Helper()
	c := &types.Caller{
		ID:     uuid.New(),
		Name:   "test caller",
		KeyID:  keyID,
		Secret: "shhh",
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed caller: %v", err)
	}
	return c
}

func SeedContent(tb testing.TB, ctx context.Context, tx *gorm.DB, resourceKey string) *types.Content {
	tb.Helper()
	meta := map[string]any{content.MetaResourceKey: resourceKey}
	raw, err := json.Marshal(meta)
	if err != nil {
		tb.Fatalf("marshal content metadata: %v", err)
	}
	c := &types.Content{
		ID:               uuid.New(),
		ContentType:      content.TypeWeb,
		Title:            "seeded page",
		Tags:             datatypes.JSON([]byte(`[]`)),
		Metadata:         datatypes.JSON(raw),
		ProcessingStatus: content.StatusNone,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed content: %v", err)
	}
	return c
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, contentID uuid.UUID, index int, text string) *types.ContentChunk {
	tb.Helper()
	if text == "" {
		text = fmt.Sprintf("chunk %d", index)
	}
	c := &types.ContentChunk{
		ID:         uuid.New(),
		ContentID:  contentID,
		ChunkIndex: index,
		Text:       text,
		Embedding:  datatypes.JSON([]byte(`[]`)),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

func SeedEmbeddedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, contentID uuid.UUID, index int, text string, emb []float32) *types.ContentChunk {
	tb.Helper()
	raw, err := json.Marshal(emb)
	if err != nil {
		tb.Fatalf("marshal chunk embedding: %v", err)
	}
	c := &types.ContentChunk{
		ID:         uuid.New(),
		ContentID:  contentID,
		ChunkIndex: index,
		Text:       text,
		Embedding:  datatypes.JSON(raw),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed embedded chunk: %v", err)
	}
	return c
}

func SeedEntity(tb testing.TB, ctx context.Context, tx *gorm.DB, entityType, name, normalized string) *types.Entity {
	tb.Helper()
	e := &types.Entity{
		ID:             uuid.New(),
		EntityType:     entityType,
		Name:           name,
		NormalizedName: normalized,
		Hierarchy:      datatypes.JSON([]byte(`[]`)),
		Metadata:       datatypes.JSON([]byte(`{}`)),
		Source:         "manual",
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed entity: %v", err)
	}
	return e
}

func SeedEdge(tb testing.TB, ctx context.Context, tx *gorm.DB, contentID, entityID uuid.UUID, edgeType string) *types.ContentEntityEdge {
	tb.Helper()
	e := &types.ContentEntityEdge{
		ID:         uuid.New(),
		ContentID:  contentID,
		EntityID:   entityID,
		EdgeType:   edgeType,
		Confidence: 0.5,
		Source:     "manual",
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed edge: %v", err)
	}
	return e
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, resourceKey, status string) *types.PipelineJob {
	tb.Helper()
	j := &types.PipelineJob{
		ID:              uuid.New(),
		ResourceKey:     resourceKey,
		JobType:         "unified_enrich",
		Status:          status,
		Stage:           status,
		PipelineVersion: "3",
		DataTier:        "full",
		Metadata:        datatypes.JSON([]byte(`{}`)),
		Result:          datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}
