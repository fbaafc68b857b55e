package cover_render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/recall-backend/internal/jobs/runtime"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
)

const (
	stageRender = "render"
	stageUpload = "upload"
)

func coverKey(contentID uuid.UUID) string {
	return fmt.Sprintf("covers/%s/cover.png", contentID)
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx, Tx: p.db}

	contentID, ok := jc.PayloadUUID("content_id")
	if !ok || contentID == uuid.Nil {
		jc.Fail("validate", "MISSING_CONTENT_ID", fmt.Errorf("job metadata has no content_id"))
		return nil
	}
	row, err := p.contents.GetByID(dbc, contentID)
	if err != nil {
		jc.Fail("validate", "CONTENT_LOOKUP_FAILED", err)
		return nil
	}
	if row == nil {
		jc.Fail("validate", "CONTENT_NOT_FOUND", fmt.Errorf("content %s not found", contentID))
		return nil
	}

	if jc.Cancelled() {
		return nil
	}
	jc.Progress(stageRender, 20, "Rendering cover card")
	started := time.Now()
	card, err := p.render(row)
	if err != nil {
		p.observe(stageRender, "error", started)
		p.log.Warn("cover render failed", "content_id", contentID, "error", err)
		jc.Succeed(p.skipped(contentID, "render_failed"))
		return nil
	}
	p.observe(stageRender, "ok", started)

	if jc.Cancelled() {
		return nil
	}
	jc.Progress(stageUpload, 70, "Uploading cover card")
	started = time.Now()
	key := coverKey(contentID)
	if p.bucket == nil {
		p.log.Warn("no bucket configured, skipping cover upload", "content_id", contentID)
		jc.Succeed(p.skipped(contentID, "no_bucket"))
		return nil
	}
	if err := p.bucket.Replace(jc.Ctx, key, bytes.NewReader(card)); err != nil {
		p.observe(stageUpload, "error", started)
		p.log.Warn("cover upload failed", "content_id", contentID, "key", key, "error", err)
		jc.Succeed(p.skipped(contentID, "upload_failed"))
		return nil
	}
	p.observe(stageUpload, "ok", started)

	if err := p.patchCoverPath(dbc, row, key); err != nil {
		// The object exists but the record does not point at it. Cosmetic, so
		// the job still counts as done.
		p.log.Warn("cover path update failed", "content_id", contentID, "key", key, "error", err)
		jc.Succeed(p.skipped(contentID, "metadata_update_failed"))
		return nil
	}

	jc.Succeed(map[string]any{
		"content_id": contentID.String(),
		"generated":  true,
		"cover_path": key,
		"bytes":      len(card),
	})
	return nil
}

// patchCoverPath merges cover_path into the content metadata without
// disturbing the keys the ingest and enrich paths maintain.
func (p *Pipeline) patchCoverPath(dbc dbctx.Context, row *types.Content, key string) error {
	meta := map[string]any{}
	if len(row.Metadata) > 0 {
		_ = json.Unmarshal(row.Metadata, &meta)
	}
	meta[content.MetaCoverPath] = key
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return p.contents.UpdateFields(dbc, row.ID, map[string]interface{}{
		"metadata":   datatypes.JSON(raw),
		"updated_at": time.Now().UTC(),
	})
}

func (p *Pipeline) skipped(contentID uuid.UUID, reason string) map[string]any {
	return map[string]any{
		"content_id": contentID.String(),
		"generated":  false,
		"reason":     reason,
	}
}

func (p *Pipeline) observe(stage, status string, started time.Time) {
	if m := observability.Current(); m != nil {
		m.ObservePipelineStage(domainjobs.TypeCoverRender, stage, status, time.Since(started))
	}
}
