package entities

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/recall-backend/internal/data/repos/testutil"
	types "github.com/yungbote/recall-backend/internal/domain"
	domainentities "github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
)

func TestContentEntityEdgeRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewContentEntityEdgeRepo(db, testutil.Logger(t))

	contentA := testutil.SeedContent(t, ctx, tx, "url:"+uuid.NewString())
	contentB := testutil.SeedContent(t, ctx, tx, "url:"+uuid.NewString())
	suffix := uuid.NewString()[:8]
	entity := testutil.SeedEntity(t, ctx, tx, domainentities.TypeTopic, "Rust "+suffix, "rust"+suffix)

	first := &types.ContentEntityEdge{
		ID:         uuid.New(),
		ContentID:  contentA.ID,
		EntityID:   entity.ID,
		EdgeType:   domainentities.EdgeMentions,
		Confidence: 0.4,
		Source:     "keyword_match",
	}
	other := &types.ContentEntityEdge{
		ID:         uuid.New(),
		ContentID:  contentB.ID,
		EntityID:   entity.ID,
		EdgeType:   domainentities.EdgeDiscusses,
		Confidence: 0.9,
		Source:     "enricher",
	}
	if err := repo.Upsert(dbc, []*types.ContentEntityEdge{first, other}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Re-upserting the same pair refreshes in place instead of duplicating
	refreshed := &types.ContentEntityEdge{
		ID:         uuid.New(),
		ContentID:  contentA.ID,
		EntityID:   entity.ID,
		EdgeType:   domainentities.EdgeUses,
		Confidence: 0.8,
		Source:     "enricher",
	}
	if err := repo.Upsert(dbc, []*types.ContentEntityEdge{refreshed}); err != nil {
		t.Fatalf("Upsert refresh: %v", err)
	}

	rows, err := repo.GetByContentIDs(dbc, []uuid.UUID{contentA.ID})
	if err != nil {
		t.Fatalf("GetByContentIDs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("GetByContentIDs: expected 1 edge, got %d", len(rows))
	}
	if rows[0].EdgeType != domainentities.EdgeUses || rows[0].Confidence != 0.8 {
		t.Fatalf("Upsert refresh: edge not updated: %+v", rows[0])
	}

	byEntity, err := repo.GetByEntityIDs(dbc, []uuid.UUID{entity.ID})
	if err != nil || len(byEntity) != 2 {
		t.Fatalf("GetByEntityIDs: err=%v len=%d", err, len(byEntity))
	}

	counts, err := repo.CountByEntityIDs(dbc, []uuid.UUID{entity.ID})
	if err != nil {
		t.Fatalf("CountByEntityIDs: %v", err)
	}
	if counts[entity.ID] != 2 {
		t.Fatalf("CountByEntityIDs: expected 2, got %d", counts[entity.ID])
	}

	if err := repo.DeleteByContentIDs(dbc, []uuid.UUID{contentA.ID}); err != nil {
		t.Fatalf("DeleteByContentIDs: %v", err)
	}
	byEntity, err = repo.GetByEntityIDs(dbc, []uuid.UUID{entity.ID})
	if err != nil || len(byEntity) != 1 {
		t.Fatalf("GetByEntityIDs after delete: err=%v len=%d", err, len(byEntity))
	}

	if err := repo.DeleteByEntityIDs(dbc, []uuid.UUID{entity.ID}); err != nil {
		t.Fatalf("DeleteByEntityIDs: %v", err)
	}
	byEntity, err = repo.GetByEntityIDs(dbc, []uuid.UUID{entity.ID})
	if err != nil || len(byEntity) != 0 {
		t.Fatalf("GetByEntityIDs after entity delete: err=%v len=%d", err, len(byEntity))
	}
}
