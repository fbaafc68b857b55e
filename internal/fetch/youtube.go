package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	youtube "google.golang.org/api/youtube/v3"

	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// VideoMetadata is the normalized record ingest persists as
// youtube/<video_id>/metadata.json.
type VideoMetadata struct {
	VideoID         string    `json:"video_id"`
	Title           string    `json:"title"`
	ChannelID       string    `json:"channel_id"`
	ChannelTitle    string    `json:"channel_title"`
	Description     string    `json:"description"`
	PublishedAt     time.Time `json:"published_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	ViewCount       uint64    `json:"view_count"`
	LikeCount       uint64    `json:"like_count"`
	CommentCount    uint64    `json:"comment_count"`
	Tags            []string  `json:"tags,omitempty"`
	// Thumbnails maps size name (default, medium, high, standard, maxres) to URL.
	Thumbnails map[string]string `json:"thumbnails,omitempty"`
	Language   string            `json:"language,omitempty"`
}

type YouTubeClient interface {
	// Video fetches snippet+contentDetails+statistics for one video.
	Video(ctx context.Context, videoID string) (*VideoMetadata, error)
	// Transcript fetches the caption track as timestamped UTF-8 lines.
	Transcript(ctx context.Context, videoID string) (string, error)
}

type youtubeClient struct {
	log            *logger.Logger
	svc            *youtube.Service
	http           *http.Client
	transcriptLang string
	innertubeBase  string
}

func NewYouTubeClient(log *logger.Logger) (YouTubeClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	log = log.With("client", "YouTubeClient")

	c := &youtubeClient{
		log:            log,
		http:           &http.Client{Timeout: defaultTimeout},
		transcriptLang: strings.TrimSpace(os.Getenv("YOUTUBE_TRANSCRIPT_LANG")),
		innertubeBase:  strings.TrimRight(strings.TrimSpace(os.Getenv("YOUTUBE_INNERTUBE_BASE_URL")), "/"),
	}
	if c.transcriptLang == "" {
		c.transcriptLang = "en"
	}
	if c.innertubeBase == "" {
		c.innertubeBase = "https://www.youtube.com"
	}

	apiKey := strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY"))
	if apiKey == "" {
		// Transcripts still work; metadata calls return missing_config.
		log.Warn("YOUTUBE_API_KEY not set; video metadata fetch disabled")
		return c, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if base := strings.TrimSpace(os.Getenv("YOUTUBE_API_BASE_URL")); base != "" {
		opts = append(opts, option.WithEndpoint(base))
	}
	svc, err := youtube.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service init failed: %w", err)
	}
	c.svc = svc
	return c, nil
}

func (c *youtubeClient) Video(ctx context.Context, videoID string) (*VideoMetadata, error) {
	started := time.Now()
	meta, err := c.video(ctx, videoID)
	observability.Current().ObserveFetch("youtube", fetchStatus(err), time.Since(started))
	return meta, err
}

func (c *youtubeClient) video(ctx context.Context, videoID string) (*VideoMetadata, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, fetchErr("youtube", ErrorMissingConfig, "videoID required", nil)
	}
	if !Enabled() {
		return nil, disabledErr("youtube")
	}
	if c.svc == nil {
		return nil, fetchErr("youtube", ErrorMissingConfig, "YOUTUBE_API_KEY not set", nil)
	}

	resp, err := c.svc.Videos.
		List([]string{"snippet", "contentDetails", "statistics"}).
		Id(videoID).
		Context(ctxutil.Default(ctx)).
		Do()
	if err != nil {
		return nil, classifyGoogleAPIError("youtube", err)
	}
	if len(resp.Items) == 0 {
		return nil, fetchErr("youtube", ErrorNotFound, fmt.Sprintf("video %s not found", videoID), nil)
	}

	v := resp.Items[0]
	meta := &VideoMetadata{VideoID: videoID}
	if v.Snippet != nil {
		meta.Title = v.Snippet.Title
		meta.ChannelID = v.Snippet.ChannelId
		meta.ChannelTitle = v.Snippet.ChannelTitle
		meta.Description = v.Snippet.Description
		meta.Tags = v.Snippet.Tags
		meta.Thumbnails = thumbnailURLs(v.Snippet.Thumbnails)
		meta.Language = v.Snippet.DefaultAudioLanguage
		if meta.Language == "" {
			meta.Language = v.Snippet.DefaultLanguage
		}
		if at, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
			meta.PublishedAt = at
		}
	}
	if v.ContentDetails != nil {
		meta.DurationSeconds = ParseISO8601Duration(v.ContentDetails.Duration)
	}
	if v.Statistics != nil {
		meta.ViewCount = v.Statistics.ViewCount
		meta.LikeCount = v.Statistics.LikeCount
		meta.CommentCount = v.Statistics.CommentCount
	}
	return meta, nil
}

func thumbnailURLs(t *youtube.ThumbnailDetails) map[string]string {
	if t == nil {
		return nil
	}
	out := map[string]string{}
	add := func(name string, th *youtube.Thumbnail) {
		if th != nil && th.Url != "" {
			out[name] = th.Url
		}
	}
	add("default", t.Default)
	add("medium", t.Medium)
	add("high", t.High)
	add("standard", t.Standard)
	add("maxres", t.Maxres)
	if len(out) == 0 {
		return nil
	}
	return out
}

func classifyGoogleAPIError(provider string, err error) *Error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		code := ErrorHTTP
		switch {
		case gerr.Code == http.StatusNotFound:
			code = ErrorNotFound
		case gerr.Code == http.StatusTooManyRequests || gerr.Code == http.StatusForbidden:
			// Data API reports quota exhaustion as 403.
			code = ErrorRateLimited
		}
		return &Error{
			Provider:   provider,
			Code:       code,
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Cause:      err,
		}
	}
	return fetchErr(provider, ErrorHTTP, "", err)
}

var iso8601DurationRe = regexp.MustCompile(
	`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`,
)

// ParseISO8601Duration parses the subset the Data API emits (PnDTnHnMnS).
// Malformed input parses to 0.
func ParseISO8601Duration(s string) int64 {
	m := iso8601DurationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	var total int64
	mult := []int64{86400, 3600, 60, 1}
	for i, raw := range m[1:] {
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0
		}
		total += n * mult[i]
	}
	return total
}

func fetchStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var typed *Error
	if errors.As(err, &typed) {
		return string(typed.Code)
	}
	return "error"
}
