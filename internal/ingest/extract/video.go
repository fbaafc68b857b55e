package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	"cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/recall-backend/internal/platform/gcp"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type videoClient struct {
	log        *logger.Logger
	client     *videointelligence.Client
	maxRetries int
}

// NewVideoClient builds the Video Intelligence backend for uploaded video.
// Only speech transcription is requested; on-screen text and shots do not
// feed enrichment.
func NewVideoClient(log *logger.Logger) (VideoClient, error) {
	c, err := videointelligence.NewClient(context.Background(), gcp.ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}
	return &videoClient{
		log:        log.With("client", "videointelligence"),
		client:     c,
		maxRetries: 4,
	}, nil
}

func (c *videoClient) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *videoClient) TranscribeVideo(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	req := &videointelligencepb.AnnotateVideoRequest{
		InputContent: data,
		Features:     []videointelligencepb.Feature{videointelligencepb.Feature_SPEECH_TRANSCRIPTION},
		VideoContext: &videointelligencepb.VideoContext{
			SpeechTranscriptionConfig: &videointelligencepb.SpeechTranscriptionConfig{
				LanguageCode:               "en-US",
				EnableAutomaticPunctuation: true,
			},
		},
	}

	resp, err := c.retryAnnotate(ctx, func() (*videointelligencepb.AnnotateVideoResponse, error) {
		op, err := c.client.AnnotateVideo(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("videointelligence AnnotateVideo: %w", err)
	}

	if resp == nil || len(resp.AnnotationResults) == 0 || resp.AnnotationResults[0] == nil {
		return "", nil
	}
	return videoTranscript(resp.AnnotationResults[0].SpeechTranscriptions), nil
}

func videoTranscript(st []*videointelligencepb.SpeechTranscription) string {
	var b strings.Builder
	for _, tr := range st {
		if tr == nil || len(tr.Alternatives) == 0 || tr.Alternatives[0] == nil {
			continue
		}
		t := strings.TrimSpace(tr.Alternatives[0].Transcript)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t)
	}
	return b.String()
}

func (c *videoClient) retryAnnotate(ctx context.Context, fn func() (*videointelligencepb.AnnotateVideoResponse, error)) (*videointelligencepb.AnnotateVideoResponse, error) {
	backoff := 750 * time.Millisecond
	var last error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}
