package cover_render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/data/repos/testutil"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/recall-backend/internal/jobs/runtime"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/gcp"
)

type fakeBucket struct {
	mu          sync.Mutex
	objects     map[string][]byte
	failReplace bool
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (f *fakeBucket) Upload(_ context.Context, key string, r io.Reader) error {
	return f.put(key, r)
}

func (f *fakeBucket) Replace(_ context.Context, key string, r io.Reader) error {
	if f.failReplace {
		return fmt.Errorf("bucket unavailable")
	}
	return f.put(key, r)
}

func (f *fakeBucket) put(key string, r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *fakeBucket) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *fakeBucket) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) Attrs(_ context.Context, key string) (*gcp.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return &gcp.ObjectAttrs{Size: int64(len(raw)), ContentType: "image/png", Updated: time.Now()}, nil
}

func (f *fakeBucket) ListKeys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeBucket) DeletePrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			delete(f.objects, k)
		}
	}
	return nil
}

func (f *fakeBucket) PublicURL(key string) string { return "mem://" + key }

func (f *fakeBucket) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	return raw, ok
}

func seedCoverJob(t *testing.T, ctx context.Context, tx *gorm.DB, contentID uuid.UUID, meta map[string]any) *types.PipelineJob {
	t.Helper()
	raw, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal job metadata: %v", err)
	}
	j := &types.PipelineJob{
		ID:              uuid.New(),
		ResourceKey:     "cover:" + contentID.String(),
		ContentID:       &contentID,
		JobType:         domainjobs.TypeCoverRender,
		Status:          domainjobs.StatusProcessing,
		PipelineVersion: "3",
		DataTier:        domainjobs.DataTierCompact,
		Metadata:        datatypes.JSON(raw),
		Result:          datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		t.Fatalf("seed cover job: %v", err)
	}
	return j
}

func TestRenderIsDeterministicPerContent(t *testing.T) {
	p := New(nil, testutil.Logger(t), nil, nil)
	row := &types.Content{
		ID:          uuid.MustParse("6e7f0c3a-42b1-4a7e-9a50-2e6d9be3c001"),
		ContentType: content.TypeYouTube,
		Title:       "Why Write-Ahead Logs Survive Crashes: A Long Walk Through Database Recovery Internals",
		Tier:        "B",
	}

	first, err := p.render(row)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := p.render(row)
	if err != nil {
		t.Fatalf("render again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("same content produced different cards (%d vs %d bytes)", len(first), len(second))
	}

	img, err := png.Decode(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != coverWidth || b.Dy() != coverHeight {
		t.Fatalf("card is %dx%d, want %dx%d", b.Dx(), b.Dy(), coverWidth, coverHeight)
	}
}

func TestRenderHandlesEmptyTitleAndTier(t *testing.T) {
	p := New(nil, testutil.Logger(t), nil, nil)
	raw, err := p.render(&types.Content{ID: uuid.New(), ContentType: content.TypeWeb})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}

func TestRunRendersUploadsAndPatchesMetadata(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)

	contentRepo := repos.NewContentRepo(tx, log)
	jobRepo := repos.NewPipelineJobRepo(tx, log)
	bucket := newFakeBucket()
	p := New(tx, log, contentRepo, bucket)

	row := testutil.SeedContent(t, ctx, tx, "url:coverme")
	if err := tx.WithContext(ctx).Model(row).Updates(map[string]interface{}{
		"title": "Understanding B-Trees",
		"tier":  "A",
	}).Error; err != nil {
		t.Fatalf("set title/tier: %v", err)
	}

	job := seedCoverJob(t, ctx, tx, row.ID, map[string]any{"content_id": row.ID.String()})
	if err := p.Run(jobrt.NewContext(ctx, tx, job, jobRepo, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := jobRepo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if got.Status != domainjobs.StatusCompleted {
		t.Fatalf("job status = %q (stage=%q code=%q), want completed", got.Status, got.ErrorStage, got.ErrorCode)
	}
	var result map[string]any
	if err := json.Unmarshal(got.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	wantKey := "covers/" + row.ID.String() + "/cover.png"
	if result["generated"] != true || result["cover_path"] != wantKey {
		t.Fatalf("result = %v, want generated=true cover_path=%s", result, wantKey)
	}

	raw, ok := bucket.get(wantKey)
	if !ok {
		t.Fatalf("cover object missing at %s", wantKey)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("uploaded object is not a png: %v", err)
	}
	if img.Bounds().Dx() != coverWidth || img.Bounds().Dy() != coverHeight {
		t.Fatalf("uploaded card is %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	fresh, err := contentRepo.GetByID(dbc, row.ID)
	if err != nil {
		t.Fatalf("reload content: %v", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(fresh.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta[content.MetaCoverPath] != wantKey {
		t.Fatalf("metadata cover_path = %v, want %s", meta[content.MetaCoverPath], wantKey)
	}
	if meta[content.MetaResourceKey] != "url:coverme" {
		t.Fatalf("ingest metadata was clobbered: %v", meta)
	}
}

func TestRunUploadFailureStillSucceeds(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)

	contentRepo := repos.NewContentRepo(tx, log)
	jobRepo := repos.NewPipelineJobRepo(tx, log)
	bucket := newFakeBucket()
	bucket.failReplace = true
	p := New(tx, log, contentRepo, bucket)

	row := testutil.SeedContent(t, ctx, tx, "url:nobucket")
	job := seedCoverJob(t, ctx, tx, row.ID, map[string]any{"content_id": row.ID.String()})
	if err := p.Run(jobrt.NewContext(ctx, tx, job, jobRepo, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := jobRepo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if got.Status != domainjobs.StatusCompleted {
		t.Fatalf("cosmetic failure must not fail the job, got %q", got.Status)
	}
	var result map[string]any
	if err := json.Unmarshal(got.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result["generated"] != false || result["reason"] != "upload_failed" {
		t.Fatalf("result = %v, want generated=false reason=upload_failed", result)
	}

	fresh, err := contentRepo.GetByID(dbc, row.ID)
	if err != nil {
		t.Fatalf("reload content: %v", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(fresh.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if _, exists := meta[content.MetaCoverPath]; exists {
		t.Fatalf("cover_path must not be set after a failed upload: %v", meta)
	}
}

func TestRunMissingContentIDFailsValidation(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)

	contentRepo := repos.NewContentRepo(tx, log)
	jobRepo := repos.NewPipelineJobRepo(tx, log)
	p := New(tx, log, contentRepo, newFakeBucket())

	orphan := uuid.New()
	job := seedCoverJob(t, ctx, tx, orphan, map[string]any{})
	job.ContentID = nil
	if err := tx.WithContext(ctx).Model(job).Update("content_id", nil).Error; err != nil {
		t.Fatalf("clear content_id: %v", err)
	}

	if err := p.Run(jobrt.NewContext(ctx, tx, job, jobRepo, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := jobRepo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if got.Status != domainjobs.StatusFailed || got.ErrorCode != "MISSING_CONTENT_ID" {
		t.Fatalf("status=%q code=%q, want failed/MISSING_CONTENT_ID", got.Status, got.ErrorCode)
	}
}
