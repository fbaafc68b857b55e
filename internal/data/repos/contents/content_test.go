package contents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/recall-backend/internal/data/repos/testutil"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"gorm.io/datatypes"
)

func TestContentRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewContentRepo(db, testutil.Logger(t))

	keyA := "yt:" + uuid.NewString()
	keyB := "url:" + uuid.NewString()

	metaA, _ := json.Marshal(map[string]any{content.MetaResourceKey: keyA})
	metaB, _ := json.Marshal(map[string]any{content.MetaResourceKey: keyB})

	a := &types.Content{
		ID:               uuid.New(),
		ContentType:      content.TypeYouTube,
		Title:            "Understanding Transformers",
		Author:           "3Blue1Brown",
		Tags:             datatypes.JSON([]byte(`["machine-learning","deep-learning"]`)),
		Metadata:         datatypes.JSON(metaA),
		ProcessingStatus: content.StatusCompleted,
		Tier:             content.TierS,
		PipelineVersion:  "2",
	}
	b := &types.Content{
		ID:               uuid.New(),
		ContentType:      content.TypeWeb,
		Title:            "A Gentle Intro to Rust",
		Tags:             datatypes.JSON([]byte(`["rust"]`)),
		Metadata:         datatypes.JSON(metaB),
		ProcessingStatus: content.StatusPending,
	}

	created, err := repo.Create(dbc, []*types.Content{a, b})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("Create: expected 2, got %d", len(created))
	}

	if rows, err := repo.GetByIDs(dbc, []uuid.UUID{a.ID, b.ID}); err != nil || len(rows) != 2 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}

	got, err := repo.GetByResourceKey(dbc, keyA)
	if err != nil {
		t.Fatalf("GetByResourceKey: %v", err)
	}
	if got == nil || got.ID != a.ID {
		t.Fatalf("GetByResourceKey: expected %v got %v", a.ID, got)
	}

	if got, err := repo.GetByResourceKey(dbc, "yt:nope"); err != nil || got != nil {
		t.Fatalf("GetByResourceKey(miss): err=%v got=%v", err, got)
	}

	many, err := repo.GetByResourceKeys(dbc, []string{keyA, keyB})
	if err != nil || len(many) != 2 {
		t.Fatalf("GetByResourceKeys: err=%v len=%d", err, len(many))
	}

	// List filters
	rows, total, err := repo.List(dbc, ContentFilter{Types: []string{content.TypeYouTube}})
	if err != nil {
		t.Fatalf("List by type: %v", err)
	}
	if total < 1 || !containsContent(rows, a.ID) {
		t.Fatalf("List by type: expected %v in result set (total=%d)", a.ID, total)
	}

	rows, _, err = repo.List(dbc, ContentFilter{Tag: "rust"})
	if err != nil {
		t.Fatalf("List by tag: %v", err)
	}
	if !containsContent(rows, b.ID) || containsContent(rows, a.ID) {
		t.Fatalf("List by tag: expected only %v", b.ID)
	}

	rows, _, err = repo.List(dbc, ContentFilter{Search: "transformers"})
	if err != nil {
		t.Fatalf("List by search: %v", err)
	}
	if !containsContent(rows, a.ID) {
		t.Fatalf("List by search: expected %v", a.ID)
	}

	rows, _, err = repo.List(dbc, ContentFilter{Statuses: []string{content.StatusPending}})
	if err != nil {
		t.Fatalf("List by status: %v", err)
	}
	if !containsContent(rows, b.ID) {
		t.Fatalf("List by status: expected %v", b.ID)
	}

	// UpdateFields
	if err := repo.UpdateFields(dbc, b.ID, map[string]interface{}{"processing_status": content.StatusProcessing}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if got, err := repo.GetByID(dbc, b.ID); err != nil || got == nil || got.ProcessingStatus != content.StatusProcessing {
		t.Fatalf("UpdateFields readback: err=%v got=%v", err, got)
	}

	// Stale sweep: completed rows whose pipeline version differs
	stale, err := repo.ListByPipelineVersionNot(dbc, "3", 10)
	if err != nil {
		t.Fatalf("ListByPipelineVersionNot: %v", err)
	}
	if !containsContent(stale, a.ID) {
		t.Fatalf("ListByPipelineVersionNot: expected %v", a.ID)
	}
	current, err := repo.ListByPipelineVersionNot(dbc, "2", 10)
	if err != nil {
		t.Fatalf("ListByPipelineVersionNot(current): %v", err)
	}
	if containsContent(current, a.ID) {
		t.Fatalf("ListByPipelineVersionNot(current): did not expect %v", a.ID)
	}

	counts, err := repo.CountByStatus(dbc)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[content.StatusCompleted] < 1 {
		t.Fatalf("CountByStatus: expected completed >= 1, got %v", counts)
	}

	// SoftDelete hides the row from resource-key lookups so the key can be reused
	if err := repo.SoftDelete(dbc, a.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if got, err := repo.GetByResourceKey(dbc, keyA); err != nil || got != nil {
		t.Fatalf("GetByResourceKey after delete: err=%v got=%v", err, got)
	}
	recreated := &types.Content{
		ID:               uuid.New(),
		ContentType:      content.TypeYouTube,
		Title:            "Understanding Transformers (again)",
		Tags:             datatypes.JSON([]byte(`[]`)),
		Metadata:         datatypes.JSON(metaA),
		ProcessingStatus: content.StatusPending,
	}
	if _, err := repo.Create(dbc, []*types.Content{recreated}); err != nil {
		t.Fatalf("Create after delete (same key): %v", err)
	}
	if got, err := repo.GetByResourceKey(dbc, keyA); err != nil || got == nil || got.ID != recreated.ID {
		t.Fatalf("GetByResourceKey after recreate: err=%v got=%v", err, got)
	}
}

func TestContentRepoDistinctTags(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewContentRepo(db, testutil.Logger(t))

	mk := func(tags string) *types.Content {
		meta, _ := json.Marshal(map[string]any{content.MetaResourceKey: "url:" + uuid.NewString()})
		return &types.Content{
			ID:          uuid.New(),
			ContentType: content.TypeWeb,
			Title:       "tagged",
			Tags:        datatypes.JSON([]byte(tags)),
			Metadata:    datatypes.JSON(meta),
		}
	}
	rows := []*types.Content{
		mk(`["golang","concurrency"]`),
		mk(`["golang","testing"]`),
		mk(`["golang"]`),
		mk(`[]`),
	}
	doomed := mk(`["abandoned"]`)
	rows = append(rows, doomed)
	if _, err := repo.Create(dbc, rows); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.SoftDelete(dbc, doomed.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	tags, err := repo.DistinctTags(dbc, 100)
	if err != nil {
		t.Fatalf("DistinctTags: %v", err)
	}
	pos := map[string]int{}
	for i, tag := range tags {
		if tag == "abandoned" {
			t.Fatalf("soft-deleted content must not contribute tags: %v", tags)
		}
		pos[tag] = i
	}
	golang, ok := pos["golang"]
	if !ok {
		t.Fatalf("expected golang in the vocabulary, got %v", tags)
	}
	for _, rare := range []string{"concurrency", "testing"} {
		if i, ok := pos[rare]; !ok || golang > i {
			t.Fatalf("expected golang (3 uses) before %s (1 use), got %v", rare, tags)
		}
	}

	limited, err := repo.DistinctTags(dbc, 1)
	if err != nil {
		t.Fatalf("DistinctTags(limit): %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected the limit to apply, got %v", limited)
	}
}

func containsContent(rows []*types.Content, id uuid.UUID) bool {
	for _, row := range rows {
		if row.ID == id {
			return true
		}
	}
	return false
}
