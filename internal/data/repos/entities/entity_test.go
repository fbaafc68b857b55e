package entities

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/recall-backend/internal/data/repos/testutil"
	types "github.com/yungbote/recall-backend/internal/domain"
	domainentities "github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"gorm.io/datatypes"
)

func TestEntityRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewEntityRepo(db, testutil.Logger(t))

	suffix := uuid.NewString()[:8]
	topic := &types.Entity{
		ID:             uuid.New(),
		EntityType:     domainentities.TypeTopic,
		Name:           "Machine Learning " + suffix,
		NormalizedName: "machinelearning" + suffix,
		Hierarchy:      datatypes.JSON([]byte(`["technology"]`)),
		Metadata:       datatypes.JSON([]byte(`{}`)),
		Source:         domainentities.SourceAIExtracted,
	}
	repoEnt := &types.Entity{
		ID:             uuid.New(),
		EntityType:     domainentities.TypeRepo,
		Name:           "karpathy/nanoGPT-" + suffix,
		NormalizedName: "karpathy/nanogpt-" + suffix,
		Hierarchy:      datatypes.JSON([]byte(`[]`)),
		Metadata:       datatypes.JSON([]byte(`{"url":"https://github.com/karpathy/nanoGPT"}`)),
		Source:         domainentities.SourceURLDetected,
	}

	if _, err := repo.Create(dbc, []*types.Entity{topic, repoEnt}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if rows, err := repo.GetByIDs(dbc, []uuid.UUID{topic.ID, repoEnt.ID}); err != nil || len(rows) != 2 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}

	got, err := repo.GetByTypeAndNormalizedName(dbc, domainentities.TypeTopic, topic.NormalizedName)
	if err != nil {
		t.Fatalf("GetByTypeAndNormalizedName: %v", err)
	}
	if got == nil || got.ID != topic.ID {
		t.Fatalf("GetByTypeAndNormalizedName: expected %v got %v", topic.ID, got)
	}

	// Same normalized name under a different type is a different entity
	if got, err := repo.GetByTypeAndNormalizedName(dbc, domainentities.TypeTool, topic.NormalizedName); err != nil || got != nil {
		t.Fatalf("GetByTypeAndNormalizedName cross-type: err=%v got=%v", err, got)
	}

	byNames, err := repo.GetByNormalizedNames(dbc, []string{topic.NormalizedName, repoEnt.NormalizedName})
	if err != nil || len(byNames) != 2 {
		t.Fatalf("GetByNormalizedNames: err=%v len=%d", err, len(byNames))
	}

	rows, total, err := repo.List(dbc, EntityFilter{Types: []string{domainentities.TypeRepo}, Search: "nanogpt-" + suffix})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != repoEnt.ID {
		t.Fatalf("List: expected only %v, got total=%d", repoEnt.ID, total)
	}

	if err := repo.UpdateFields(dbc, topic.ID, map[string]interface{}{"description": "the study of learning machines"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if got, err := repo.GetByID(dbc, topic.ID); err != nil || got == nil || got.Description == "" {
		t.Fatalf("UpdateFields readback: err=%v got=%v", err, got)
	}

	if err := repo.SoftDelete(dbc, repoEnt.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if got, err := repo.GetByTypeAndNormalizedName(dbc, domainentities.TypeRepo, repoEnt.NormalizedName); err != nil || got != nil {
		t.Fatalf("GetByTypeAndNormalizedName after delete: err=%v got=%v", err, got)
	}
}
