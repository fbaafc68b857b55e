package unified_enrich

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/recall-backend/internal/data/repos"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/domain/entities"
	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
	"github.com/yungbote/recall-backend/internal/enrich"
	"github.com/yungbote/recall-backend/internal/entity"
	"github.com/yungbote/recall-backend/internal/jobs"
	jobrt "github.com/yungbote/recall-backend/internal/jobs/runtime"
	"github.com/yungbote/recall-backend/internal/normalization"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
)

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

	text := jc.PayloadString("text")
	if text == "" {
		// Compact data tier: the payload carries no text, the blob store does.
		text, err = p.downloadText(dbc, row.FilePath)
		if err != nil {
			jc.Fail("validate", "PAYLOAD_FETCH_FAILED", err)
			return nil
		}
	}
	if text == "" {
		jc.Fail("validate", "EMPTY_TEXT", fmt.Errorf("content %s has no text payload", contentID))
		return nil
	}

	priorStatus := row.ProcessingStatus
	if err := p.contents.UpdateFields(dbc, contentID, map[string]interface{}{
		"processing_status": content.StatusProcessing,
	}); err != nil {
		jc.Fail("validate", "CONTENT_UPDATE_FAILED", err)
		return nil
	}

	// tag_fetch
	if jc.Cancelled() {
		p.restoreStatus(dbc, contentID, priorStatus)
		return nil
	}
	jc.Progress(enrich.StageTagFetch, 5, "Collecting vocabulary and pre-detecting entities")
	stageStart := time.Now()

	vocab, err := p.contents.DistinctTags(dbc, p.vocabCap)
	if err != nil {
		p.failStage(jc, dbc, contentID, enrich.NewStageError(enrich.StageTagFetch, enrich.CodeTagFetchError, err), stageStart)
		return nil
	}
	topics, err := p.topicNames(dbc)
	if err != nil {
		p.failStage(jc, dbc, contentID, enrich.NewStageError(enrich.StageTagFetch, enrich.CodeTagFetchError, err), stageStart)
		return nil
	}
	detections := p.detect(dbc, jc, row, text)
	p.observeStage(enrich.StageTagFetch, "success", stageStart)

	// llm_call + parse (both inside Enrich; errors carry the true stage)
	if jc.Cancelled() {
		p.restoreStatus(dbc, contentID, priorStatus)
		return nil
	}
	jc.Progress(enrich.StageLLMCall, 30, "Running unified enrichment")
	stageStart = time.Now()
	res, err := p.enricher.Enrich(dbc, enrich.Input{
		ContentType:    row.ContentType,
		Title:          row.Title,
		Text:           text,
		ExistingTags:   vocab,
		ExistingTopics: topics,
		PreDetected:    preDetected(detections),
	})
	if err != nil {
		se := enrich.AsStageError(err, enrich.StageLLMCall, enrich.CodeLLMCallError)
		p.failStage(jc, dbc, contentID, se, stageStart)
		return nil
	}
	p.observeStage(enrich.StageLLMCall, "success", stageStart)
	jc.Progress(enrich.StageParse, 55, "Enrichment parsed")

	// entity_resolve
	if jc.Cancelled() {
		p.restoreStatus(dbc, contentID, priorStatus)
		return nil
	}
	jc.Progress(enrich.StageEntityResolve, 70, "Resolving entities")
	stageStart = time.Now()
	resolution, err := p.resolver.Resolve(dbc, contentID, detections, res)
	if err != nil {
		p.failStage(jc, dbc, contentID, enrich.NewStageError(enrich.StageEntityResolve, enrich.CodeEntityResolveError, err), stageStart)
		return nil
	}
	if resolution == nil {
		resolution = &entity.Resolution{}
	}
	p.observeStage(enrich.StageEntityResolve, "success", stageStart)

	// persist
	if jc.Cancelled() {
		p.restoreStatus(dbc, contentID, priorStatus)
		return nil
	}
	jc.Progress(enrich.StagePersist, 85, "Persisting enrichment outputs")
	stageStart = time.Now()
	counts, err := p.persist(dbc, jc, row, text, res)
	if err != nil {
		p.failStage(jc, dbc, contentID, enrich.NewStageError(enrich.StagePersist, enrich.CodePersistError, err), stageStart)
		return nil
	}
	p.observeStage(enrich.StagePersist, "success", stageStart)

	p.enqueueCoverRender(dbc, row)

	jc.Succeed(map[string]any{
		"content_id":       contentID.String(),
		"tier":             res.Tier,
		"quality_score":    res.QualityScore,
		"tags":             len(res.AllTags()),
		"topics":           len(res.Topics),
		"chunks":           counts.chunks,
		"links":            counts.links,
		"entities":         len(resolution.Entities),
		"entities_created": resolution.Created,
		"edges":            len(resolution.Edges),
	})
	p.log.Info("unified enrichment completed",
		"job_id", jc.Job.ID,
		"content_id", contentID,
		"tier", res.Tier,
		"chunks", counts.chunks,
		"entities", len(resolution.Entities),
		"edges", len(resolution.Edges),
	)
	return nil
}

// detect merges URL detections from the body (plus any source URLs carried in
// the description) with keyword matches against the known-entity index. URL
// hits win on name collisions.
func (p *Pipeline) detect(dbc dbctx.Context, jc *jobrt.Context, row *types.Content, text string) []entity.Detection {
	var extraURLs []string
	if row.Description != "" {
		extraURLs = entity.ExtractURLs(row.Description)
	}
	detections := p.detector.Detect(jc.Ctx, text, extraURLs)

	seen := make(map[string]bool, len(detections))
	for _, d := range detections {
		seen[normalization.Name(d.Name)] = true
	}
	matched, err := p.matcher.Match(dbc, text)
	if err != nil {
		p.log.Warn("keyword match failed, URL detections only", "content_id", row.ID, "error", err)
		return detections
	}
	for _, m := range matched {
		if seen[normalization.Name(m.Name)] {
			continue
		}
		seen[normalization.Name(m.Name)] = true
		detections = append(detections, m)
	}
	return detections
}

func (p *Pipeline) topicNames(dbc dbctx.Context) ([]string, error) {
	rows, _, err := p.entities.List(dbc, repos.EntityFilter{
		Types: []string{entities.TypeTopic},
		Limit: p.topicCap,
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, e := range rows {
		if e != nil && e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

func preDetected(detections []entity.Detection) []enrich.PreDetected {
	out := make([]enrich.PreDetected, 0, len(detections))
	for _, d := range detections {
		out = append(out, enrich.PreDetected{Name: d.Name, EntityType: d.EntityType})
	}
	return out
}

func (p *Pipeline) downloadText(dbc dbctx.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	if p.bucket == nil {
		return "", fmt.Errorf("no bucket service configured")
	}
	rc, err := p.bucket.Download(dbc.Ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// failStage fails the job with the stage's code and flips the content record
// to failed so non-force reprocessing stays possible.
func (p *Pipeline) failStage(jc *jobrt.Context, dbc dbctx.Context, contentID uuid.UUID, se *enrich.StageError, started time.Time) {
	p.observeStage(se.Stage, "error", started)
	if err := p.contents.UpdateFields(dbc, contentID, map[string]interface{}{
		"processing_status": content.StatusFailed,
	}); err != nil {
		p.log.Warn("content status update failed", "content_id", contentID, "error", err)
	}
	jc.Fail(se.Stage, se.Code, se.Err)
}

func (p *Pipeline) restoreStatus(dbc dbctx.Context, contentID uuid.UUID, status string) {
	if err := p.contents.UpdateFields(dbc, contentID, map[string]interface{}{
		"processing_status": status,
	}); err != nil {
		p.log.Warn("content status restore failed", "content_id", contentID, "error", err)
	}
}

func (p *Pipeline) observeStage(stage, status string, started time.Time) {
	if m := observability.Current(); m != nil {
		m.ObservePipelineStage(domainjobs.TypeUnifiedEnrich, stage, status, time.Since(started))
	}
}

// enqueueCoverRender submits the follow-up card render. Best effort: a
// failure here never degrades the enrichment result.
func (p *Pipeline) enqueueCoverRender(dbc dbctx.Context, row *types.Content) {
	if p.jobs == nil {
		return
	}
	_, err := p.jobs.Submit(dbc, jobs.Submission{
		ContentID:   row.ID,
		ResourceKey: "cover:" + row.ID.String(),
		ContentType: row.ContentType,
		Title:       row.Title,
		JobType:     domainjobs.TypeCoverRender,
	})
	if err != nil {
		p.log.Warn("cover render submit failed", "content_id", row.ID, "error", err)
	}
}
