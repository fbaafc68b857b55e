package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/data/repos/testutil"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/fetch"
	"github.com/yungbote/recall-backend/internal/ingest/extract"
	"github.com/yungbote/recall-backend/internal/ingest/webx"
	"github.com/yungbote/recall-backend/internal/jobs"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/apierr"
	"github.com/yungbote/recall-backend/internal/platform/gcp"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (b *fakeBucket) Upload(_ context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.uploads++
	return nil
}

func (b *fakeBucket) Download(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBucket) Replace(ctx context.Context, key string, r io.Reader) error {
	return b.Upload(ctx, key, r)
}

func (b *fakeBucket) Attrs(_ context.Context, key string) (*gcp.ObjectAttrs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return &gcp.ObjectAttrs{Size: int64(len(data)), Updated: time.Now()}, nil
}

func (b *fakeBucket) ListKeys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (b *fakeBucket) DeletePrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			delete(b.objects, k)
		}
	}
	return nil
}

func (b *fakeBucket) PublicURL(key string) string { return "mem://" + key }

func (b *fakeBucket) get(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	return data, ok
}

func (b *fakeBucket) uploadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads
}

func (b *fakeBucket) keyCount(prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

type fakeYouTube struct {
	mu            sync.Mutex
	transcript    string
	transcriptErr error
	meta          *fetch.VideoMetadata
	metaErr       error
	videoCalls    int
}

func (f *fakeYouTube) Video(_ context.Context, videoID string) (*fetch.VideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls++
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	meta := *f.meta
	meta.VideoID = videoID
	return &meta, nil
}

func (f *fakeYouTube) Transcript(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transcriptErr != nil {
		return "", f.transcriptErr
	}
	return f.transcript, nil
}

func (f *fakeYouTube) setMeta(meta *fetch.VideoMetadata, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta = meta
	f.metaErr = err
}

type fakeWeb struct {
	page *webx.Page
	err  error
}

func (f *fakeWeb) Extract(_ context.Context, rawURL string) (*webx.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := *f.page
	page.URL = rawURL
	return &page, nil
}

type ingestFixture struct {
	svc      Service
	bucket   *fakeBucket
	youtube  *fakeYouTube
	web      *fakeWeb
	jobs     jobs.Service
	contents repos.ContentRepo
	chunks   repos.ContentChunkRepo
	links    repos.ContentLinkRepo
	edges    repos.ContentEntityEdgeRepo
	jobRepo  repos.PipelineJobRepo
}

func newIngestFixture(t *testing.T, tx *gorm.DB) *ingestFixture {
	t.Helper()
	log := testutil.Logger(t)

	contentRepo := repos.NewContentRepo(tx, log)
	chunkRepo := repos.NewContentChunkRepo(tx, log)
	linkRepo := repos.NewContentLinkRepo(tx, log)
	edgeRepo := repos.NewContentEntityEdgeRepo(tx, log)
	jobRepo := repos.NewPipelineJobRepo(tx, log)

	jobSvc, err := jobs.NewService(tx, log, jobRepo, contentRepo, nil)
	if err != nil {
		t.Fatalf("jobs.NewService: %v", err)
	}

	bucket := newFakeBucket()
	yt := &fakeYouTube{
		transcript: "[00:00] hello there\n[00:05] welcome to the channel\n[00:09] today we build a parser",
		meta: &fetch.VideoMetadata{
			Title:           "Building a Parser from Scratch",
			ChannelID:       "UC123",
			ChannelTitle:    "Compiler Corner",
			Description:     "Sources: https://github.com/golang/go and https://go.dev/ref/spec",
			PublishedAt:     time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			DurationSeconds: 1845,
			ViewCount:       120000,
			LikeCount:       5400,
			Tags:            []string{"compilers", "go"},
			Thumbnails:      map[string]string{"high": "https://i.ytimg.com/vi/x/hq.jpg"},
			Language:        "en",
		},
	}
	web := &fakeWeb{
		page: &webx.Page{
			Title:       "Understanding B-Trees",
			Markdown:    "# Understanding B-Trees\n\nA B-Tree keeps keys sorted across pages.",
			ContentType: "text/html",
			FetchedAt:   time.Now(),
		},
	}

	svc, err := NewService(log, contentRepo, chunkRepo, linkRepo, edgeRepo, jobSvc, bucket,
		yt, web, extract.New(log, nil, nil, nil, nil), nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &ingestFixture{
		svc:      svc,
		bucket:   bucket,
		youtube:  yt,
		web:      web,
		jobs:     jobSvc,
		contents: contentRepo,
		chunks:   chunkRepo,
		links:    linkRepo,
		edges:    edgeRepo,
		jobRepo:  jobRepo,
	}
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var typed *apierr.Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected apierr.Error, got %T: %v", err, err)
	}
	return typed.Status
}

func TestIngestYouTubeCreatesRecordAndJob(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	res, err := fx.svc.IngestURL(dbc, "key-1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("IngestURL: %v", err)
	}
	if res.JobID == nil {
		t.Fatalf("expected a job for fresh content")
	}
	if res.ContentType != content.TypeYouTube || res.Title != "Building a Parser from Scratch" {
		t.Fatalf("unexpected result: %+v", res)
	}

	row, err := fx.contents.GetByResourceKey(dbc, "yt:dQw4w9WgXcQ")
	if err != nil || row == nil {
		t.Fatalf("GetByResourceKey: row=%v err=%v", row, err)
	}
	if row.Author != "Compiler Corner" || row.ProcessingStatus != content.StatusPending {
		t.Fatalf("unexpected row: author=%q status=%q", row.Author, row.ProcessingStatus)
	}
	if row.FilePath != "youtube/dQw4w9WgXcQ/transcript.txt" {
		t.Fatalf("unexpected file path %q", row.FilePath)
	}

	if _, ok := fx.bucket.get("youtube/dQw4w9WgXcQ/transcript.txt"); !ok {
		t.Fatalf("transcript blob missing")
	}
	docBytes, ok := fx.bucket.get("youtube/dQw4w9WgXcQ/metadata.json")
	if !ok {
		t.Fatalf("metadata blob missing")
	}
	var doc videoMetadataDoc
	if err := json.Unmarshal(docBytes, &doc); err != nil {
		t.Fatalf("metadata doc decode: %v", err)
	}
	if doc.VideoID != "dQw4w9WgXcQ" || doc.ChannelTitle != "Compiler Corner" {
		t.Fatalf("unexpected doc identity: %+v", doc)
	}
	if doc.SegmentCount != 3 || doc.TranscriptLength == 0 {
		t.Fatalf("unexpected transcript accounting: segments=%d length=%d", doc.SegmentCount, doc.TranscriptLength)
	}
	if len(doc.DescriptionURLs) != 2 {
		t.Fatalf("expected 2 description urls, got %v", doc.DescriptionURLs)
	}
	if doc.Duration != "30:45" {
		t.Fatalf("unexpected duration format %q", doc.Duration)
	}

	job, err := fx.jobRepo.GetByID(dbc, *res.JobID)
	if err != nil || job == nil {
		t.Fatalf("job lookup: job=%v err=%v", job, err)
	}
	if job.ResourceKey != "yt:dQw4w9WgXcQ" {
		t.Fatalf("unexpected job resource key %q", job.ResourceKey)
	}
	var payload map[string]any
	if err := json.Unmarshal(job.Metadata, &payload); err != nil {
		t.Fatalf("job metadata decode: %v", err)
	}
	if s, _ := payload["text"].(string); !strings.Contains(s, "welcome to the channel") {
		t.Fatalf("job metadata should inline the transcript, got %q", s)
	}
}

func TestIngestYouTubeDedups(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	first, err := fx.svc.IngestURL(dbc, "key-1", "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("first IngestURL: %v", err)
	}
	uploadsAfterFirst := fx.bucket.uploadCount()

	second, err := fx.svc.IngestURL(dbc, "key-1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=30s")
	if err != nil {
		t.Fatalf("second IngestURL: %v", err)
	}
	if second.ContentID != first.ContentID {
		t.Fatalf("expected dedup to the same content: %s vs %s", first.ContentID, second.ContentID)
	}
	if second.JobID != nil {
		t.Fatalf("dedup hit must not submit a job")
	}
	if fx.bucket.uploadCount() != uploadsAfterFirst {
		t.Fatalf("dedup hit must not upload blobs")
	}
}

func TestIngestYouTubePlaceholderThenBackfill(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	fx.youtube.setMeta(nil, &fetch.Error{Provider: "youtube", Code: fetch.ErrorRateLimited, Message: "quota"})

	res, err := fx.svc.IngestURL(dbc, "key-1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("IngestURL with metadata outage: %v", err)
	}
	if res.Title != "YouTube: dQw4w9WgXcQ" {
		t.Fatalf("expected placeholder title, got %q", res.Title)
	}
	if res.JobID == nil {
		t.Fatalf("placeholder ingest still submits a job")
	}

	fx.youtube.setMeta(&fetch.VideoMetadata{
		Title:           "Recovered Title",
		ChannelID:       "UC999",
		ChannelTitle:    "Recovered Channel",
		Description:     "after the outage",
		DurationSeconds: 90,
	}, nil)

	again, err := fx.svc.IngestURL(dbc, "key-1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("backfill IngestURL: %v", err)
	}
	if again.ContentID != res.ContentID {
		t.Fatalf("backfill must reuse the record")
	}
	if again.JobID != nil {
		t.Fatalf("backfill must not submit a new job")
	}
	if again.Title != "Recovered Title" {
		t.Fatalf("response should carry the backfilled title, got %q", again.Title)
	}

	row, err := fx.contents.GetByID(dbc, res.ContentID)
	if err != nil || row == nil {
		t.Fatalf("GetByID: row=%v err=%v", row, err)
	}
	if row.Title != "Recovered Title" || row.Author != "Recovered Channel" {
		t.Fatalf("record not patched: title=%q author=%q", row.Title, row.Author)
	}
	if metaString(row, content.MetaChannelTitle) != "Recovered Channel" {
		t.Fatalf("metadata channel_title not patched: %s", row.Metadata)
	}
	if metaString(row, content.MetaResourceKey) != "yt:dQw4w9WgXcQ" {
		t.Fatalf("resource key must survive the backfill merge: %s", row.Metadata)
	}

	docBytes, ok := fx.bucket.get("youtube/dQw4w9WgXcQ/metadata.json")
	if !ok {
		t.Fatalf("metadata blob missing after backfill")
	}
	var doc videoMetadataDoc
	if err := json.Unmarshal(docBytes, &doc); err != nil {
		t.Fatalf("metadata doc decode: %v", err)
	}
	if doc.Title != "Recovered Title" || doc.SegmentCount != 3 {
		t.Fatalf("blob doc not rewritten: title=%q segments=%d", doc.Title, doc.SegmentCount)
	}

	rows, total, err := fx.jobRepo.List(dbc, repos.JobFilter{})
	if err != nil {
		t.Fatalf("job list: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected exactly one job across placeholder+backfill, got %d", total)
	}
}

func TestIngestYouTubeTranscriptFailureIsFatal(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	fx.youtube.transcriptErr = &fetch.Error{Provider: "youtube_transcript", Code: fetch.ErrorNotFound, Message: "no captions"}

	_, err := fx.svc.IngestURL(dbc, "key-1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err == nil {
		t.Fatalf("expected transcript failure to be fatal")
	}
	if status := apiStatus(t, err); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}

	row, err := fx.contents.GetByResourceKey(dbc, "yt:dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("GetByResourceKey: %v", err)
	}
	if row != nil {
		t.Fatalf("no half-open record should exist, got %s", row.ID)
	}
	if fx.bucket.uploadCount() != 0 {
		t.Fatalf("no blobs should be written on fatal fetch")
	}
}

func TestIngestWebCreatesRecordAndJob(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	res, err := fx.svc.IngestURL(dbc, "key-1", "https://example.com/btrees?utm_source=news")
	if err != nil {
		t.Fatalf("IngestURL: %v", err)
	}
	if res.ContentType != content.TypeWeb || res.Title != "Understanding B-Trees" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.JobID == nil {
		t.Fatalf("expected a job")
	}

	row, err := fx.contents.GetByID(dbc, res.ContentID)
	if err != nil || row == nil {
		t.Fatalf("GetByID: row=%v err=%v", row, err)
	}
	if !strings.HasPrefix(row.FilePath, "web/") || !strings.HasSuffix(row.FilePath, "/content.md") {
		t.Fatalf("unexpected blob key %q", row.FilePath)
	}
	if _, ok := fx.bucket.get(row.FilePath); !ok {
		t.Fatalf("markdown blob missing at %s", row.FilePath)
	}
	canonical := metaString(row, content.MetaCanonicalURL)
	if strings.Contains(canonical, "utm_source") {
		t.Fatalf("canonical url should drop tracking params: %q", canonical)
	}

	// Same page through a tracking-decorated URL dedups to the same record.
	second, err := fx.svc.IngestURL(dbc, "key-1", "https://example.com/btrees?utm_campaign=retarget")
	if err != nil {
		t.Fatalf("second IngestURL: %v", err)
	}
	if second.ContentID != res.ContentID || second.JobID != nil {
		t.Fatalf("expected canonical dedup: %+v", second)
	}
}

func TestIngestWebExtractFailureIsFatal(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	fx.web.err = &webx.Error{Code: webx.ErrorBlockedURL, Message: "private address"}
	_, err := fx.svc.IngestURL(dbc, "key-1", "https://10.0.0.8/internal")
	if err == nil {
		t.Fatalf("expected extract failure to be fatal")
	}
	if status := apiStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for blocked url, got %d", status)
	}

	fx.web.err = &webx.Error{Code: webx.ErrorFetchFailed, StatusCode: 503, Message: "upstream down"}
	_, err = fx.svc.IngestURL(dbc, "key-1", "https://example.com/down")
	if status := apiStatus(t, err); status != http.StatusBadGateway {
		t.Fatalf("expected 502 for fetch failure, got %d", status)
	}
}

func TestUploadDocumentCreatesAndDedups(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	up := Upload{
		Filename: "notes.md",
		MimeType: "text/markdown",
		Data:     []byte("# Raft Notes\n\nLeaders replicate the log."),
	}
	res, err := fx.svc.UploadDocument(dbc, "key-1", up)
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if res.ContentType != content.TypeMarkdown || res.Title != "notes" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.JobID == nil {
		t.Fatalf("expected a job")
	}

	row, err := fx.contents.GetByID(dbc, res.ContentID)
	if err != nil || row == nil {
		t.Fatalf("GetByID: row=%v err=%v", row, err)
	}
	wantKey := fmt.Sprintf("markdown/%s/notes.md", res.ContentID)
	if row.FilePath != wantKey {
		t.Fatalf("unexpected blob key %q", row.FilePath)
	}
	if _, ok := fx.bucket.get(wantKey); !ok {
		t.Fatalf("original upload missing at %s", wantKey)
	}

	dup, err := fx.svc.UploadDocument(dbc, "key-1", up)
	if err != nil {
		t.Fatalf("duplicate UploadDocument: %v", err)
	}
	if dup.ContentID != res.ContentID || dup.JobID != nil {
		t.Fatalf("expected byte-identical upload to dedup: %+v", dup)
	}
}

func TestUploadDocumentRejectsUnusableInput(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	if _, err := fx.svc.UploadDocument(dbc, "key-1", Upload{Filename: "", Data: []byte("x")}); err == nil {
		t.Fatalf("expected missing filename to fail")
	}
	if _, err := fx.svc.UploadDocument(dbc, "key-1", Upload{Filename: "a.md", Data: nil}); err == nil {
		t.Fatalf("expected empty payload to fail")
	}

	// PDF extraction requires a Document AI client; the fixture has none.
	_, err := fx.svc.UploadDocument(dbc, "key-1", Upload{
		Filename: "paper.pdf",
		MimeType: "application/pdf",
		Data:     []byte("%PDF-1.5"),
	})
	if err == nil {
		t.Fatalf("expected extraction failure without a document client")
	}
	if status := apiStatus(t, err); status != http.StatusBadGateway {
		t.Fatalf("expected 502 for unavailable extraction, got %d", status)
	}
	rows, total, err := fx.contents.List(dbc, repos.ContentFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 || len(rows) != 0 {
		t.Fatalf("failed uploads must not create records, found %d", total)
	}
}

func TestReprocessVersionGate(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	res, err := fx.svc.UploadDocument(dbc, "key-1", Upload{
		Filename: "notes.md",
		MimeType: "text/markdown",
		Data:     []byte("# CRDTs\n\nState-based CRDTs merge by join."),
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	// Settle the upload's job so reprocess decisions are about the content row.
	if _, err := fx.jobs.Cancel(dbc, *res.JobID); err != nil {
		t.Fatalf("cancel bootstrap job: %v", err)
	}

	current := fx.jobs.PipelineVersion()
	if err := fx.contents.UpdateFields(dbc, res.ContentID, map[string]interface{}{
		"processing_status": content.StatusCompleted,
		"pipeline_version":  current,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	_, err = fx.svc.Reprocess(dbc, res.ContentID, false)
	if err == nil {
		t.Fatalf("expected NOT_STALE for current completed content")
	}
	if status := apiStatus(t, err); status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}

	job, err := fx.svc.Reprocess(dbc, res.ContentID, true)
	if err != nil || job == nil {
		t.Fatalf("force reprocess: job=%v err=%v", job, err)
	}

	if _, err := fx.jobs.Cancel(dbc, job.ID); err != nil {
		t.Fatalf("cancel forced job: %v", err)
	}
	if err := fx.contents.UpdateFields(dbc, res.ContentID, map[string]interface{}{
		"pipeline_version": "1",
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	job, err = fx.svc.Reprocess(dbc, res.ContentID, false)
	if err != nil || job == nil {
		t.Fatalf("stale reprocess: job=%v err=%v", job, err)
	}

	if _, err := fx.svc.Reprocess(dbc, uuid.New(), false); err == nil {
		t.Fatalf("expected 404 for unknown content")
	}
}

func TestDeleteCascade(t *testing.T) {
	tx := testutil.Tx(t, testutil.DB(t))
	fx := newIngestFixture(t, tx)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	res, err := fx.svc.UploadDocument(dbc, "key-1", Upload{
		Filename: "guide.md",
		MimeType: "text/markdown",
		Data:     []byte("# Kafka Guide\n\nPartitions order messages."),
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	id := res.ContentID
	ctx := context.Background()

	other := testutil.SeedContent(t, ctx, tx, "url:"+uuid.NewString())
	testutil.SeedChunk(t, ctx, tx, id, 0, "Partitions order messages.")
	testutil.SeedChunk(t, ctx, tx, id, 1, "Consumers track offsets.")
	kafka := testutil.SeedEntity(t, ctx, tx, entities.TypeTool, "Kafka", "kafka")
	testutil.SeedEdge(t, ctx, tx, id, kafka.ID, entities.EdgeDiscusses)

	if _, err := fx.links.Create(dbc, []*types.ContentLink{
		{SourceContentID: id, LinkText: "other page", LinkType: content.LinkTypeMarkdown},
		{SourceContentID: other.ID, TargetContentID: &id, LinkText: "kafka guide", LinkType: content.LinkTypeWiki},
	}); err != nil {
		t.Fatalf("create links: %v", err)
	}

	if err := fx.svc.Delete(dbc, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if row, err := fx.contents.GetByID(dbc, id); err != nil || row != nil {
		t.Fatalf("content should be gone: row=%v err=%v", row, err)
	}
	if chunks, err := fx.chunks.GetByContentIDs(dbc, []uuid.UUID{id}); err != nil || len(chunks) != 0 {
		t.Fatalf("chunks should be gone: n=%d err=%v", len(chunks), err)
	}
	if edges, err := fx.edges.GetByContentIDs(dbc, []uuid.UUID{id}); err != nil || len(edges) != 0 {
		t.Fatalf("edges should be gone: n=%d err=%v", len(edges), err)
	}
	if links, err := fx.links.GetBySourceContentIDs(dbc, []uuid.UUID{id}); err != nil || len(links) != 0 {
		t.Fatalf("outbound links should be gone: n=%d err=%v", len(links), err)
	}
	inbound, err := fx.links.GetBySourceContentIDs(dbc, []uuid.UUID{other.ID})
	if err != nil || len(inbound) != 1 {
		t.Fatalf("inbound link row should survive: n=%d err=%v", len(inbound), err)
	}
	if inbound[0].TargetContentID != nil {
		t.Fatalf("inbound link target should be cleared")
	}
	if n := fx.bucket.keyCount(fmt.Sprintf("markdown/%s/", id)); n != 0 {
		t.Fatalf("blob prefix should be emptied, %d objects left", n)
	}

	err = fx.svc.Delete(dbc, id)
	if err == nil {
		t.Fatalf("expected 404 on double delete")
	}
	if status := apiStatus(t, err); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}
