package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/recall-backend/internal/data/graph"
	"github.com/yungbote/recall-backend/internal/data/repos"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/fetch"
	"github.com/yungbote/recall-backend/internal/ingest/extract"
	"github.com/yungbote/recall-backend/internal/ingest/urlkey"
	"github.com/yungbote/recall-backend/internal/ingest/webx"
	"github.com/yungbote/recall-backend/internal/jobs"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/apierr"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/gcp"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/neo4jdb"
	"github.com/yungbote/recall-backend/internal/platform/pinecone"
)

// Result is what a successful ingest returns to the API layer. JobID is nil
// when the record already existed or the unified pipeline is disabled.
type Result struct {
	ContentID   uuid.UUID  `json:"content_id"`
	ContentType string     `json:"content_type"`
	Title       string     `json:"title"`
	JobID       *uuid.UUID `json:"job_id,omitempty"`
}

// Upload carries one multipart file from POST /content.
type Upload struct {
	Filename string
	MimeType string
	Title    string
	Data     []byte
}

// Service turns URLs and uploaded files into content records plus enrichment
// jobs, and owns the full delete cascade.
type Service interface {
	IngestURL(dbc dbctx.Context, callerKeyID, rawURL string) (*Result, error)
	UploadDocument(dbc dbctx.Context, callerKeyID string, up Upload) (*Result, error)
	Reprocess(dbc dbctx.Context, contentID uuid.UUID, force bool) (*types.PipelineJob, error)
	Delete(dbc dbctx.Context, contentID uuid.UUID) error
}

type service struct {
	log       *logger.Logger
	contents  repos.ContentRepo
	chunks    repos.ContentChunkRepo
	links     repos.ContentLinkRepo
	edges     repos.ContentEntityEdgeRepo
	jobs      jobs.Service
	bucket    gcp.BucketService
	youtube   fetch.YouTubeClient
	web       webx.Extractor
	extractor *extract.Extractor
	vectors   pinecone.VectorStore
	graph     *neo4jdb.Client
	vectorNS  string
}

func NewService(
	baseLog *logger.Logger,
	contents repos.ContentRepo,
	chunks repos.ContentChunkRepo,
	links repos.ContentLinkRepo,
	edges repos.ContentEntityEdgeRepo,
	jobSvc jobs.Service,
	bucket gcp.BucketService,
	youtube fetch.YouTubeClient,
	web webx.Extractor,
	extractor *extract.Extractor,
	vectors pinecone.VectorStore,
	graphClient *neo4jdb.Client,
) (Service, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	if contents == nil || chunks == nil || links == nil || edges == nil {
		return nil, fmt.Errorf("content repos required")
	}
	if jobSvc == nil {
		return nil, fmt.Errorf("job service required")
	}
	if bucket == nil {
		return nil, fmt.Errorf("bucket service required")
	}
	if youtube == nil || web == nil {
		return nil, fmt.Errorf("fetch clients required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor required")
	}
	return &service{
		log:       baseLog.With("service", "IngestService"),
		contents:  contents,
		chunks:    chunks,
		links:     links,
		edges:     edges,
		jobs:      jobSvc,
		bucket:    bucket,
		youtube:   youtube,
		web:       web,
		extractor: extractor,
		vectors:   vectors,
		graph:     graphClient,
		vectorNS:  envutil.Str("VECTOR_NAMESPACE", "chunks"),
	}, nil
}

func (s *service) IngestURL(dbc dbctx.Context, callerKeyID, rawURL string) (*Result, error) {
	classified, err := urlkey.Classify(rawURL)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "INVALID_URL", err)
	}
	resourceKey, err := urlkey.ResourceKey(classified)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "INVALID_URL", err)
	}

	existing, err := s.contents.GetByResourceKey(dbc, resourceKey)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "CONTENT_LOOKUP_FAILED", err)
	}
	if existing != nil {
		if classified.Kind == urlkey.KindYouTube && youtubeMetadataIncomplete(existing) {
			s.backfillYouTube(dbc, existing, classified.ID)
			observability.Current().IncIngest(string(classified.Kind), "backfilled")
		} else {
			observability.Current().IncIngest(string(classified.Kind), "deduped")
		}
		return &Result{ContentID: existing.ID, ContentType: existing.ContentType, Title: existing.Title}, nil
	}

	var res *Result
	if classified.Kind == urlkey.KindYouTube {
		res, err = s.ingestYouTube(dbc, callerKeyID, classified.ID, rawURL, resourceKey)
	} else {
		res, err = s.ingestWeb(dbc, callerKeyID, classified, rawURL, resourceKey)
	}
	if err != nil {
		observability.Current().IncIngest(string(classified.Kind), "error")
		return nil, err
	}
	observability.Current().IncIngest(string(classified.Kind), "created")
	return res, nil
}

func (s *service) ingestYouTube(dbc dbctx.Context, callerKeyID, videoID, rawURL, resourceKey string) (*Result, error) {
	transcript, err := s.youtube.Transcript(dbc.Ctx, videoID)
	if err != nil {
		return nil, transcriptError(err)
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, apierr.New(http.StatusNotFound, "TRANSCRIPT_NOT_FOUND",
			fmt.Errorf("video %s has no caption track", videoID))
	}

	// Metadata failure degrades to a placeholder record that backfill repairs
	// on the next ingest of the same URL.
	meta, err := s.youtube.Video(dbc.Ctx, videoID)
	if err != nil {
		s.log.Warn("video metadata fetch failed; storing placeholder", "video_id", videoID, "error", err)
		meta = &fetch.VideoMetadata{VideoID: videoID, Title: placeholderTitle(videoID)}
	}
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = placeholderTitle(videoID)
	}

	contentID := uuid.New()
	transcriptKey := fmt.Sprintf("youtube/%s/transcript.txt", videoID)
	metadataKey := fmt.Sprintf("youtube/%s/metadata.json", videoID)
	transcriptBytes := []byte(transcript)

	if err := s.bucket.Upload(dbc.Ctx, transcriptKey, strings.NewReader(transcript)); err != nil {
		return nil, apierr.New(http.StatusBadGateway, "BLOB_UPLOAD_FAILED", err)
	}
	doc := buildVideoMetadataDoc(contentID, meta, transcript, int64(len(transcriptBytes)))
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "METADATA_ENCODE_FAILED", err)
	}
	if err := s.bucket.Upload(dbc.Ctx, metadataKey, bytes.NewReader(docBytes)); err != nil {
		return nil, apierr.New(http.StatusBadGateway, "BLOB_UPLOAD_FAILED", err)
	}

	row := &types.Content{
		ID:          contentID,
		ContentType: content.TypeYouTube,
		Title:       meta.Title,
		MimeType:    "text/plain",
		FileSize:    int64(len(transcriptBytes)),
		FilePath:    transcriptKey,
		Author:      meta.ChannelTitle,
		Tags:        jsonStrings(meta.Tags),
		Description: meta.Description,
		Metadata: jsonObject(map[string]any{
			content.MetaResourceKey:  resourceKey,
			content.MetaVideoID:      videoID,
			content.MetaChannelID:    meta.ChannelID,
			content.MetaChannelTitle: meta.ChannelTitle,
			content.MetaDurationSecs: meta.DurationSeconds,
			content.MetaSourceURL:    rawURL,
			content.MetaCallerKeyID:  callerKeyID,
		}),
		ProcessingStatus: content.StatusPending,
	}
	created, err := s.contents.Create(dbc, []*types.Content{row})
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "CONTENT_CREATE_FAILED", err)
	}
	row = created[0]
	s.mirrorContent(dbc, resourceKey, row)

	job, err := s.jobs.Submit(dbc, jobs.Submission{
		ContentID:   row.ID,
		ResourceKey: resourceKey,
		ContentType: row.ContentType,
		Title:       row.Title,
		Text:        transcript,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("youtube content ingested",
		"content_id", row.ID, "video_id", videoID, "transcript_bytes", len(transcriptBytes))
	return result(row, job), nil
}

func (s *service) ingestWeb(dbc dbctx.Context, callerKeyID string, classified urlkey.Classified, rawURL, resourceKey string) (*Result, error) {
	page, err := s.web.Extract(dbc.Ctx, rawURL)
	if err != nil {
		return nil, webExtractError(err)
	}

	canonical, err := urlkey.CanonicalWebURL(rawURL)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "INVALID_URL", err)
	}
	urlHash, err := urlkey.URLHash(rawURL)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "INVALID_URL", err)
	}

	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = canonical
	}

	contentID := uuid.New()
	blobKey := fmt.Sprintf("web/%s/content.md", urlHash)
	markdown := page.Markdown
	if err := s.bucket.Upload(dbc.Ctx, blobKey, strings.NewReader(markdown)); err != nil {
		return nil, apierr.New(http.StatusBadGateway, "BLOB_UPLOAD_FAILED", err)
	}

	row := &types.Content{
		ID:          contentID,
		ContentType: content.TypeWeb,
		Title:       title,
		MimeType:    "text/markdown",
		FileSize:    int64(len(markdown)),
		FilePath:    blobKey,
		Tags:        jsonStrings(nil),
		Metadata: jsonObject(map[string]any{
			content.MetaResourceKey:  resourceKey,
			content.MetaCanonicalURL: canonical,
			content.MetaSourceURL:    rawURL,
			content.MetaCallerKeyID:  callerKeyID,
		}),
		ProcessingStatus: content.StatusPending,
	}
	created, err := s.contents.Create(dbc, []*types.Content{row})
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "CONTENT_CREATE_FAILED", err)
	}
	row = created[0]
	s.mirrorContent(dbc, resourceKey, row)

	job, err := s.jobs.Submit(dbc, jobs.Submission{
		ContentID:   row.ID,
		ResourceKey: resourceKey,
		ContentType: row.ContentType,
		Title:       row.Title,
		Text:        markdown,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("web content ingested",
		"content_id", row.ID, "kind", string(classified.Kind), "url_hash", urlHash, "markdown_bytes", len(markdown))
	return result(row, job), nil
}

// backfillYouTube repairs a record ingested while the metadata API was down.
// Every failure here is non-fatal: the caller still gets the existing record.
func (s *service) backfillYouTube(dbc dbctx.Context, row *types.Content, videoID string) {
	if videoID == "" {
		videoID = metaString(row, content.MetaVideoID)
	}
	if videoID == "" {
		return
	}
	meta, err := s.youtube.Video(dbc.Ctx, videoID)
	if err != nil {
		s.log.Warn("metadata backfill fetch failed", "content_id", row.ID, "video_id", videoID, "error", err)
		return
	}
	if strings.TrimSpace(meta.Title) == "" {
		return
	}

	merged := decodeMetadata(row)
	merged[content.MetaChannelID] = meta.ChannelID
	merged[content.MetaChannelTitle] = meta.ChannelTitle
	merged[content.MetaDurationSecs] = meta.DurationSeconds
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		s.log.Warn("metadata backfill encode failed", "content_id", row.ID, "error", err)
		return
	}
	updates := map[string]interface{}{
		"title":       meta.Title,
		"author":      meta.ChannelTitle,
		"description": meta.Description,
		"tags":        jsonStrings(meta.Tags),
		"metadata":    datatypes.JSON(mergedJSON),
	}
	if err := s.contents.UpdateFields(dbc, row.ID, updates); err != nil {
		s.log.Warn("metadata backfill update failed", "content_id", row.ID, "error", err)
		return
	}
	row.Title = meta.Title
	row.Author = meta.ChannelTitle
	row.Description = meta.Description
	row.Metadata = datatypes.JSON(mergedJSON)

	// Rewrite the blob document from the refreshed metadata plus the stored
	// transcript so segment/length fields stay accurate.
	transcript := s.downloadText(dbc, fmt.Sprintf("youtube/%s/transcript.txt", videoID))
	doc := buildVideoMetadataDoc(row.ID, meta, transcript, int64(len(transcript)))
	doc.CreatedAt = row.CreatedAt
	docBytes, err := json.Marshal(doc)
	if err != nil {
		s.log.Warn("metadata backfill doc encode failed", "content_id", row.ID, "error", err)
		return
	}
	key := fmt.Sprintf("youtube/%s/metadata.json", videoID)
	if err := s.bucket.Replace(dbc.Ctx, key, bytes.NewReader(docBytes)); err != nil {
		s.log.Warn("metadata backfill blob rewrite failed", "content_id", row.ID, "key", key, "error", err)
		return
	}
	s.log.Info("youtube metadata backfilled", "content_id", row.ID, "video_id", videoID, "title", meta.Title)
}

func (s *service) UploadDocument(dbc dbctx.Context, callerKeyID string, up Upload) (*Result, error) {
	filename := filepath.Base(strings.TrimSpace(up.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, apierr.New(http.StatusBadRequest, "FILENAME_REQUIRED", fmt.Errorf("upload needs a filename"))
	}
	if len(up.Data) == 0 {
		return nil, apierr.New(http.StatusBadRequest, "EMPTY_FILE", fmt.Errorf("upload %s is empty", filename))
	}

	text, err := s.extractor.Extract(dbc.Ctx, up.Data, up.MimeType, filename)
	if err != nil {
		return nil, extractionError(err)
	}

	sum := sha256.Sum256(up.Data)
	resourceKey := "file:" + hex.EncodeToString(sum[:])
	existing, err := s.contents.GetByResourceKey(dbc, resourceKey)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "CONTENT_LOOKUP_FAILED", err)
	}
	if existing != nil {
		observability.Current().IncIngest("upload", "deduped")
		return &Result{ContentID: existing.ID, ContentType: existing.ContentType, Title: existing.Title}, nil
	}

	contentType := uploadContentType(up.MimeType, filename)
	contentID := uuid.New()
	blobKey := fmt.Sprintf("%s/%s/%s", contentType, contentID, filename)
	if err := s.bucket.Upload(dbc.Ctx, blobKey, bytes.NewReader(up.Data)); err != nil {
		observability.Current().IncIngest("upload", "error")
		return nil, apierr.New(http.StatusBadGateway, "BLOB_UPLOAD_FAILED", err)
	}

	title := strings.TrimSpace(up.Title)
	if title == "" {
		title = titleStem(filename)
	}
	row := &types.Content{
		ID:          contentID,
		ContentType: contentType,
		Title:       title,
		MimeType:    up.MimeType,
		FileSize:    int64(len(up.Data)),
		FilePath:    blobKey,
		Tags:        jsonStrings(nil),
		Metadata: jsonObject(map[string]any{
			content.MetaResourceKey: resourceKey,
			content.MetaCallerKeyID: callerKeyID,
		}),
		ProcessingStatus: content.StatusPending,
	}
	created, err := s.contents.Create(dbc, []*types.Content{row})
	if err != nil {
		observability.Current().IncIngest("upload", "error")
		return nil, apierr.New(http.StatusInternalServerError, "CONTENT_CREATE_FAILED", err)
	}
	row = created[0]
	s.mirrorContent(dbc, resourceKey, row)

	job, err := s.jobs.Submit(dbc, jobs.Submission{
		ContentID:   row.ID,
		ResourceKey: resourceKey,
		ContentType: row.ContentType,
		Title:       row.Title,
		Text:        text,
	})
	if err != nil {
		return nil, err
	}
	observability.Current().IncIngest("upload", "created")
	s.log.Info("document ingested",
		"content_id", row.ID, "content_type", contentType, "filename", filename, "extracted_chars", len(text))
	return result(row, job), nil
}

func (s *service) Reprocess(dbc dbctx.Context, contentID uuid.UUID, force bool) (*types.PipelineJob, error) {
	row, err := s.contents.GetByID(dbc, contentID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "CONTENT_LOOKUP_FAILED", err)
	}
	if row == nil {
		return nil, apierr.New(http.StatusNotFound, "CONTENT_NOT_FOUND", fmt.Errorf("content %s not found", contentID))
	}
	if !force {
		stale := row.PipelineVersion != s.jobs.PipelineVersion()
		failed := row.ProcessingStatus == content.StatusFailed
		if !stale && !failed {
			return nil, apierr.New(http.StatusConflict, "NOT_STALE",
				fmt.Errorf("content %s already at pipeline version %s", contentID, row.PipelineVersion))
		}
	}
	if row.FilePath == "" {
		return nil, apierr.New(http.StatusConflict, "NO_PAYLOAD", fmt.Errorf("content %s has no stored payload", contentID))
	}

	rc, err := s.bucket.Download(dbc.Ctx, row.FilePath)
	if err != nil {
		return nil, apierr.New(http.StatusBadGateway, "BLOB_DOWNLOAD_FAILED", err)
	}
	defer rc.Close()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, apierr.New(http.StatusBadGateway, "BLOB_DOWNLOAD_FAILED", err)
	}

	resourceKey := metaString(row, content.MetaResourceKey)
	if resourceKey == "" {
		resourceKey = "content:" + row.ID.String()
	}
	job, err := s.jobs.Submit(dbc, jobs.Submission{
		ContentID:   row.ID,
		ResourceKey: resourceKey,
		ContentType: row.ContentType,
		Title:       row.Title,
		Text:        string(payload),
	})
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apierr.New(http.StatusConflict, "PIPELINE_DISABLED", fmt.Errorf("unified pipeline is disabled"))
	}
	s.log.Info("content reprocess submitted", "content_id", row.ID, "job_id", job.ID, "force", force)
	return job, nil
}

// Delete removes a content record and everything derived from it. Postgres
// rows are authoritative: failures there abort; vector, blob, and graph
// cleanup are logged and skipped on error.
func (s *service) Delete(dbc dbctx.Context, contentID uuid.UUID) error {
	row, err := s.contents.GetByID(dbc, contentID)
	if err != nil {
		return apierr.New(http.StatusInternalServerError, "CONTENT_LOOKUP_FAILED", err)
	}
	if row == nil {
		return apierr.New(http.StatusNotFound, "CONTENT_NOT_FOUND", fmt.Errorf("content %s not found", contentID))
	}

	chunkRows, err := s.chunks.GetByContentIDs(dbc, []uuid.UUID{contentID})
	if err != nil {
		return apierr.New(http.StatusInternalServerError, "CONTENT_DELETE_FAILED", err)
	}
	if s.vectors != nil && len(chunkRows) > 0 {
		ids := make([]string, 0, len(chunkRows))
		for _, ch := range chunkRows {
			ids = append(ids, ch.ID.String())
		}
		if err := s.vectors.DeleteIDs(dbc.Ctx, s.vectorNS, ids); err != nil {
			s.log.Warn("vector delete failed", "content_id", contentID, "vectors", len(ids), "error", err)
		}
	}

	if err := s.chunks.DeleteByContentIDs(dbc, []uuid.UUID{contentID}); err != nil {
		return apierr.New(http.StatusInternalServerError, "CONTENT_DELETE_FAILED", err)
	}
	if err := s.edges.DeleteByContentIDs(dbc, []uuid.UUID{contentID}); err != nil {
		return apierr.New(http.StatusInternalServerError, "CONTENT_DELETE_FAILED", err)
	}
	if err := s.links.DeleteBySourceContentIDs(dbc, []uuid.UUID{contentID}); err != nil {
		return apierr.New(http.StatusInternalServerError, "CONTENT_DELETE_FAILED", err)
	}
	if err := s.links.ClearTargets(dbc, contentID); err != nil {
		return apierr.New(http.StatusInternalServerError, "CONTENT_DELETE_FAILED", err)
	}

	if prefix := blobPrefix(row.FilePath); prefix != "" {
		if err := s.bucket.DeletePrefix(dbc.Ctx, prefix); err != nil {
			s.log.Warn("blob prefix delete failed", "content_id", contentID, "prefix", prefix, "error", err)
		}
	}
	if err := graph.RemoveContent(dbc.Ctx, s.graph, s.log, contentID); err != nil {
		s.log.Warn("graph node delete failed", "content_id", contentID, "error", err)
	}

	if err := s.contents.SoftDelete(dbc, contentID); err != nil {
		return apierr.New(http.StatusInternalServerError, "CONTENT_DELETE_FAILED", err)
	}
	s.log.Info("content deleted", "content_id", contentID, "chunks", len(chunkRows))
	return nil
}

// mirrorContent pushes the node to neo4j. Mirror writes never fail an ingest.
func (s *service) mirrorContent(dbc dbctx.Context, resourceKey string, row *types.Content) {
	if err := graph.SyncContent(dbc.Ctx, s.graph, s.log, resourceKey, row); err != nil {
		s.log.Warn("graph content sync failed", "content_id", row.ID, "error", err)
	}
}

func (s *service) downloadText(dbc dbctx.Context, key string) string {
	rc, err := s.bucket.Download(dbc.Ctx, key)
	if err != nil {
		s.log.Warn("blob download failed", "key", key, "error", err)
		return ""
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		s.log.Warn("blob read failed", "key", key, "error", err)
		return ""
	}
	return string(data)
}

// videoMetadataDoc is the youtube/<video_id>/metadata.json document.
type videoMetadataDoc struct {
	ID               string            `json:"id"`
	VideoID          string            `json:"video_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	DescriptionURLs  []string          `json:"description_urls"`
	ChannelID        string            `json:"channel_id"`
	ChannelTitle     string            `json:"channel_title"`
	PublishedAt      time.Time         `json:"published_at"`
	Duration         string            `json:"duration"`
	DurationSeconds  int64             `json:"duration_seconds"`
	ViewCount        uint64            `json:"view_count"`
	LikeCount        uint64            `json:"like_count"`
	Tags             []string          `json:"tags"`
	Thumbnails       map[string]string `json:"thumbnails"`
	Language         string            `json:"language"`
	SegmentCount     int               `json:"segment_count"`
	TranscriptLength int               `json:"transcript_length"`
	FileSize         int64             `json:"file_size"`
	Author           string            `json:"author"`
	CreatedAt        time.Time         `json:"created_at"`
	FetchedAt        time.Time         `json:"fetched_at"`
}

func buildVideoMetadataDoc(contentID uuid.UUID, meta *fetch.VideoMetadata, transcript string, fileSize int64) videoMetadataDoc {
	now := time.Now().UTC()
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	thumbs := meta.Thumbnails
	if thumbs == nil {
		thumbs = map[string]string{}
	}
	return videoMetadataDoc{
		ID:               contentID.String(),
		VideoID:          meta.VideoID,
		Title:            meta.Title,
		Description:      meta.Description,
		DescriptionURLs:  extractURLs(meta.Description),
		ChannelID:        meta.ChannelID,
		ChannelTitle:     meta.ChannelTitle,
		PublishedAt:      meta.PublishedAt,
		Duration:         formatDuration(meta.DurationSeconds),
		DurationSeconds:  meta.DurationSeconds,
		ViewCount:        meta.ViewCount,
		LikeCount:        meta.LikeCount,
		Tags:             tags,
		Thumbnails:       thumbs,
		Language:         meta.Language,
		SegmentCount:     countSegments(transcript),
		TranscriptLength: len(transcript),
		FileSize:         fileSize,
		Author:           meta.ChannelTitle,
		CreatedAt:        now,
		FetchedAt:        now,
	}
}

// youtubeMetadataIncomplete reports whether a prior ingest ran while the
// metadata API was unavailable.
func youtubeMetadataIncomplete(row *types.Content) bool {
	if strings.HasPrefix(row.Title, "YouTube: ") {
		return true
	}
	return metaString(row, content.MetaChannelTitle) == ""
}

func placeholderTitle(videoID string) string {
	return "YouTube: " + videoID
}

var urlRe = regexp.MustCompile(`https?://[^\s\)\]>"']+`)

func extractURLs(text string) []string {
	matches := urlRe.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	seen := map[string]bool{}
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func countSegments(transcript string) int {
	n := 0
	for _, line := range strings.Split(transcript, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func formatDuration(secs int64) string {
	if secs <= 0 {
		return "0:00"
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	sec := secs % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

func uploadContentType(mimeType, filename string) string {
	switch extract.FamilyFor(mimeType, filename) {
	case extract.MimeFamilyText:
		return content.TypeMarkdown
	case extract.MimeFamilyDocument:
		return content.TypeDocument
	case extract.MimeFamilyImage:
		return content.TypeImage
	case extract.MimeFamilyAudio:
		return content.TypeAudio
	case extract.MimeFamilyVideo:
		return content.TypeVideo
	default:
		return content.TypeDocument
	}
}

func titleStem(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if stem == "" {
		return filename
	}
	return stem
}

// blobPrefix widens a payload key to its directory so sibling objects
// (metadata.json, covers) are removed with it.
func blobPrefix(filePath string) string {
	if filePath == "" {
		return ""
	}
	dir := path.Dir(filePath)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir + "/"
}

func decodeMetadata(row *types.Content) map[string]any {
	out := map[string]any{}
	if len(row.Metadata) == 0 {
		return out
	}
	if err := json.Unmarshal(row.Metadata, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func metaString(row *types.Content, key string) string {
	meta := decodeMetadata(row)
	v, ok := meta[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func jsonObject(m map[string]any) datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(b)
}

func jsonStrings(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return datatypes.JSON([]byte(`[]`))
	}
	return datatypes.JSON(b)
}

func result(row *types.Content, job *types.PipelineJob) *Result {
	res := &Result{ContentID: row.ID, ContentType: row.ContentType, Title: row.Title}
	if job != nil {
		res.JobID = &job.ID
	}
	return res
}

func transcriptError(err error) error {
	var typed *fetch.Error
	if errors.As(err, &typed) {
		switch typed.Code {
		case fetch.ErrorNotFound:
			return apierr.New(http.StatusNotFound, "TRANSCRIPT_NOT_FOUND", err)
		case fetch.ErrorRateLimited:
			return apierr.New(http.StatusTooManyRequests, "TRANSCRIPT_RATE_LIMITED", err)
		}
	}
	return apierr.New(http.StatusBadGateway, "TRANSCRIPT_FETCH_FAILED", err)
}

func webExtractError(err error) error {
	var typed *webx.Error
	if errors.As(err, &typed) {
		switch typed.Code {
		case webx.ErrorInvalidURL:
			return apierr.New(http.StatusBadRequest, "INVALID_URL", err)
		case webx.ErrorBlockedURL:
			return apierr.New(http.StatusBadRequest, "BLOCKED_URL", err)
		case webx.ErrorTooLarge:
			return apierr.New(http.StatusRequestEntityTooLarge, "CONTENT_TOO_LARGE", err)
		case webx.ErrorUnsupported:
			return apierr.New(http.StatusUnsupportedMediaType, "UNSUPPORTED_CONTENT", err)
		}
	}
	return apierr.New(http.StatusBadGateway, "WEB_FETCH_FAILED", err)
}

func extractionError(err error) error {
	if errors.Is(err, extract.ErrUnsupportedMime) {
		return apierr.New(http.StatusUnsupportedMediaType, "UNSUPPORTED_MIME", err)
	}
	return apierr.New(http.StatusBadGateway, "EXTRACTION_FAILED", err)
}
