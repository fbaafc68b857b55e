package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/recall-backend/internal/data/repos/testutil"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
)

func TestCallerRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewCallerRepo(db, testutil.Logger(t))

	keyA := "key-" + uuid.NewString()[:8]
	keyB := "key-" + uuid.NewString()[:8]

	a := &types.Caller{
		ID:     uuid.New(),
		Name:   "cli",
		KeyID:  keyA,
		Secret: "secret-a",
	}
	b := &types.Caller{
		ID:         uuid.New(),
		Name:       "notes-app",
		KeyID:      keyB,
		Secret:     "secret-b",
		WebhookURL: "https://example.com/hooks/recall",
	}
	if _, err := repo.Create(dbc, []*types.Caller{a, b}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if rows, err := repo.GetByIDs(dbc, []uuid.UUID{a.ID, b.ID}); err != nil || len(rows) != 2 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}
	if got, err := repo.GetByID(dbc, a.ID); err != nil || got == nil || got.KeyID != keyA {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}

	got, err := repo.GetByKeyID(dbc, keyB)
	if err != nil {
		t.Fatalf("GetByKeyID: %v", err)
	}
	if got == nil || got.ID != b.ID || got.WebhookURL != "https://example.com/hooks/recall" {
		t.Fatalf("GetByKeyID: got %+v", got)
	}
	if got, err := repo.GetByKeyID(dbc, "missing"); err != nil || got != nil {
		t.Fatalf("GetByKeyID miss: err=%v got=%v", err, got)
	}

	if err := repo.UpdateFields(dbc, b.ID, map[string]interface{}{
		"webhook_url":    "https://example.com/hooks/v2",
		"webhook_secret": "whsec",
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err = repo.GetByKeyID(dbc, keyB)
	if err != nil || got == nil || got.WebhookURL != "https://example.com/hooks/v2" || got.WebhookSecret != "whsec" {
		t.Fatalf("UpdateFields readback: err=%v got=%+v", err, got)
	}

	rows, err := repo.List(dbc)
	if err != nil || len(rows) != 2 {
		t.Fatalf("List: err=%v len=%d", err, len(rows))
	}

	// Soft delete hides the caller from key lookup.
	if err := repo.SoftDelete(dbc, a.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if got, err := repo.GetByKeyID(dbc, keyA); err != nil || got != nil {
		t.Fatalf("GetByKeyID after delete: err=%v got=%v", err, got)
	}
}
