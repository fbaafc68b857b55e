package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/httpx"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
)

// Transcripts come from the keyless Innertube surface: the ANDROID player
// endpoint lists caption tracks, the track's baseUrl serves timedtext XML.
const (
	innertubeAndroidVersion = "20.10.38"
	innertubeAndroidUA      = "com.google.android.youtube/" + innertubeAndroidVersion + " (Linux; U; Android 11) gzip"
	innertubeMaxBodyBytes   = 3 * 1024 * 1024
	innertubeMaxRetries     = 3
)

type innertubePlayerRequest struct {
	VideoID        string           `json:"videoId"`
	Context        innertubeContext `json:"context"`
	RacyCheckOk    bool             `json:"racyCheckOk"`
	ContentCheckOk bool             `json:"contentCheckOk"`
}

type innertubeContext struct {
	Client innertubeClientInfo `json:"client"`
}

type innertubeClientInfo struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type innertubePlayerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

type timedText struct {
	Lines []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Text  string  `xml:",chardata"`
}

func (c *youtubeClient) Transcript(ctx context.Context, videoID string) (string, error) {
	started := time.Now()
	text, err := c.transcript(ctx, videoID)
	observability.Current().ObserveFetch("youtube_transcript", fetchStatus(err), time.Since(started))
	return text, err
}

func (c *youtubeClient) transcript(ctx context.Context, videoID string) (string, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return "", fetchErr("youtube_transcript", ErrorMissingConfig, "videoID required", nil)
	}
	if !Enabled() {
		return "", disabledErr("youtube_transcript")
	}
	ctx = ctxutil.Default(ctx)

	player, err := c.playerResponse(ctx, videoID)
	if err != nil {
		return "", err
	}
	if player.PlayabilityStatus != nil {
		status := strings.ToUpper(strings.TrimSpace(player.PlayabilityStatus.Status))
		if status != "" && status != "OK" {
			return "", fetchErr(
				"youtube_transcript",
				ErrorUnavailable,
				fmt.Sprintf("video %s not playable: %s %s", videoID, status, player.PlayabilityStatus.Reason),
				nil,
			)
		}
	}
	if player.Captions == nil || len(player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
		return "", fetchErr("youtube_transcript", ErrorUnavailable, fmt.Sprintf("video %s has no caption tracks", videoID), nil)
	}

	track := pickCaptionTrack(player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, c.transcriptLang)
	lines, err := c.timedTextLines(ctx, track.BaseURL)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", fetchErr("youtube_transcript", ErrorUnavailable, fmt.Sprintf("video %s caption track is empty", videoID), nil)
	}
	return strings.Join(lines, "\n"), nil
}

func (c *youtubeClient) playerResponse(ctx context.Context, videoID string) (*innertubePlayerResponse, error) {
	payload := innertubePlayerRequest{
		VideoID: videoID,
		Context: innertubeContext{
			Client: innertubeClientInfo{
				ClientName:        "ANDROID",
				ClientVersion:     innertubeAndroidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fetchErr("youtube_transcript", ErrorDecodeFailed, "encode player request", err)
	}

	endpoint := c.innertubeBase + "/youtubei/v1/player?prettyPrint=false"
	raw, err := c.doInnertube(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var out innertubePlayerResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fetchErr("youtube_transcript", ErrorDecodeFailed, "decode player response", err)
	}
	return &out, nil
}

func (c *youtubeClient) doInnertube(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= innertubeMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := httpx.BackoffDuration(attempt-1, 500*time.Millisecond, 5*time.Second)
			select {
			case <-ctx.Done():
				return nil, fetchErr("youtube_transcript", ErrorHTTP, "context done", ctx.Err())
			case <-time.After(httpx.JitterSleep(backoff)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fetchErr("youtube_transcript", ErrorHTTP, "build player request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", innertubeAndroidUA)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fetchErr("youtube_transcript", ErrorHTTP, "player request failed", err)
			if httpx.IsRetryableError(err) {
				continue
			}
			return nil, lastErr
		}

		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, innertubeMaxBodyBytes))
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK && readErr == nil {
			return raw, nil
		}
		if readErr != nil {
			lastErr = fetchErr("youtube_transcript", ErrorDecodeFailed, "read player response", readErr)
			continue
		}
		lastErr = &Error{
			Provider:   "youtube_transcript",
			Code:       ErrorHTTP,
			StatusCode: resp.StatusCode,
			Message:    truncateSnippet(raw),
		}
		if !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// pickCaptionTrack prefers a manual track in the requested language, then
// any manual track, then auto-generated in the language, then the first.
func pickCaptionTrack(tracks []captionTrack, lang string) captionTrack {
	lang = strings.ToLower(strings.TrimSpace(lang))
	var manualAny, asrLang *captionTrack
	for i := range tracks {
		t := &tracks[i]
		code := strings.ToLower(strings.TrimSpace(t.LanguageCode))
		isASR := strings.EqualFold(strings.TrimSpace(t.Kind), "asr")
		langMatch := code == lang || strings.HasPrefix(code, lang+"-")
		if langMatch && !isASR {
			return *t
		}
		if !isASR && manualAny == nil {
			manualAny = t
		}
		if langMatch && isASR && asrLang == nil {
			asrLang = t
		}
	}
	if manualAny != nil {
		return *manualAny
	}
	if asrLang != nil {
		return *asrLang
	}
	return tracks[0]
}

func (c *youtubeClient) timedTextLines(ctx context.Context, baseURL string) ([]string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fetchErr("youtube_transcript", ErrorUnavailable, "caption track has no url", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, fetchErr("youtube_transcript", ErrorHTTP, "build timedtext request", err)
	}
	req.Header.Set("User-Agent", innertubeAndroidUA)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fetchErr("youtube_transcript", ErrorHTTP, "timedtext request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, innertubeMaxBodyBytes))
	if err != nil {
		return nil, fetchErr("youtube_transcript", ErrorDecodeFailed, "read timedtext response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider:   "youtube_transcript",
			Code:       ErrorHTTP,
			StatusCode: resp.StatusCode,
			Message:    truncateSnippet(raw),
		}
	}

	var doc timedText
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fetchErr("youtube_transcript", ErrorDecodeFailed, "decode timedtext xml", err)
	}

	lines := make([]string, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		text := strings.TrimSpace(html.UnescapeString(line.Text))
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", formatTimestamp(line.Start), text))
	}
	return lines, nil
}

func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func truncateSnippet(raw []byte) string {
	const max = 256
	s := strings.TrimSpace(string(raw))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
