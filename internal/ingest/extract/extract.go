package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// ErrUnsupportedMime is returned when no extraction route exists for the
// uploaded file's mime type.
var ErrUnsupportedMime = fmt.Errorf("unsupported mime type")

// DocumentClient extracts text from PDFs and office documents.
type DocumentClient interface {
	ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error)
	Close() error
}

// VisionClient runs OCR over a single image.
type VisionClient interface {
	ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error)
	Close() error
}

// SpeechClient transcribes an audio payload.
type SpeechClient interface {
	TranscribeAudio(ctx context.Context, data []byte, mimeType string) (string, error)
	Close() error
}

// VideoClient transcribes speech from a video payload.
type VideoClient interface {
	TranscribeVideo(ctx context.Context, data []byte, mimeType string) (string, error)
	Close() error
}

// Extractor routes an uploaded file to the extraction backend for its mime
// family. Markdown and plain text pass through untouched.
type Extractor struct {
	log    *logger.Logger
	doc    DocumentClient
	vision VisionClient
	speech SpeechClient
	video  VideoClient
}

func New(log *logger.Logger, doc DocumentClient, vision VisionClient, speech SpeechClient, video VideoClient) *Extractor {
	return &Extractor{
		log:    log.With("component", "Extractor"),
		doc:    doc,
		vision: vision,
		speech: speech,
		video:  video,
	}
}

// NewFromEnv builds the extractor with real GCP clients. Any client that
// fails to initialize is left nil; extraction for its mime family then
// fails per request instead of at startup.
func NewFromEnv(log *logger.Logger) *Extractor {
	elog := log.With("component", "Extractor")

	doc, err := NewDocumentClient(log)
	if err != nil {
		elog.Warn("document extraction unavailable", "error", err)
		doc = nil
	}
	vision, err := NewVisionClient(log)
	if err != nil {
		elog.Warn("image extraction unavailable", "error", err)
		vision = nil
	}
	speech, err := NewSpeechClient(log)
	if err != nil {
		elog.Warn("audio extraction unavailable", "error", err)
		speech = nil
	}
	video, err := NewVideoClient(log)
	if err != nil {
		elog.Warn("video extraction unavailable", "error", err)
		video = nil
	}

	return &Extractor{log: elog, doc: doc, vision: vision, speech: speech, video: video}
}

func (e *Extractor) Close() error {
	if e == nil {
		return nil
	}
	if e.doc != nil {
		_ = e.doc.Close()
	}
	if e.vision != nil {
		_ = e.vision.Close()
	}
	if e.speech != nil {
		_ = e.speech.Close()
	}
	if e.video != nil {
		_ = e.video.Close()
	}
	return nil
}

// MimeFamily is the extraction route for a mime type.
type MimeFamily string

const (
	MimeFamilyText     MimeFamily = "text"
	MimeFamilyDocument MimeFamily = "document"
	MimeFamilyImage    MimeFamily = "image"
	MimeFamilyAudio    MimeFamily = "audio"
	MimeFamilyVideo    MimeFamily = "video"
	MimeFamilyUnknown  MimeFamily = "unknown"
)

// FamilyFor resolves the extraction route, falling back to the filename
// extension when the mime type is missing or generic.
func FamilyFor(mimeType, filename string) MimeFamily {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(m, ";"); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}

	switch {
	case m == "text/plain", m == "text/markdown", m == "text/x-markdown":
		return MimeFamilyText
	case m == "application/pdf",
		m == "application/msword",
		m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		m == "application/rtf":
		return MimeFamilyDocument
	case strings.HasPrefix(m, "image/"):
		return MimeFamilyImage
	case strings.HasPrefix(m, "audio/"):
		return MimeFamilyAudio
	case strings.HasPrefix(m, "video/"):
		return MimeFamilyVideo
	case m == "" || m == "application/octet-stream":
		return familyForExtension(filename)
	default:
		return MimeFamilyUnknown
	}
}

func familyForExtension(filename string) MimeFamily {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(filename))) {
	case ".txt", ".md", ".markdown":
		return MimeFamilyText
	case ".pdf", ".doc", ".docx", ".rtf":
		return MimeFamilyDocument
	case ".png", ".jpg", ".jpeg", ".webp", ".gif":
		return MimeFamilyImage
	case ".mp3", ".wav", ".flac", ".ogg", ".opus", ".m4a":
		return MimeFamilyAudio
	case ".mp4", ".m4v", ".webm", ".mov":
		return MimeFamilyVideo
	default:
		return MimeFamilyUnknown
	}
}

// Extract converts an uploaded payload into plain text for enrichment.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	family := FamilyFor(mimeType, filename)

	switch family {
	case MimeFamilyText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("text payload is not valid UTF-8")
		}
		return strings.TrimSpace(string(data)), nil

	case MimeFamilyDocument:
		if e.doc == nil {
			return "", fmt.Errorf("document extraction not configured")
		}
		text, err := e.doc.ExtractDocument(ctx, data, mimeType)
		if err != nil {
			return "", fmt.Errorf("extract document: %w", err)
		}
		return text, nil

	case MimeFamilyImage:
		if e.vision == nil {
			return "", fmt.Errorf("image extraction not configured")
		}
		text, err := e.vision.ExtractImage(ctx, data, mimeType)
		if err != nil {
			return "", fmt.Errorf("extract image: %w", err)
		}
		return text, nil

	case MimeFamilyAudio:
		if e.speech == nil {
			return "", fmt.Errorf("audio extraction not configured")
		}
		text, err := e.speech.TranscribeAudio(ctx, data, mimeType)
		if err != nil {
			return "", fmt.Errorf("transcribe audio: %w", err)
		}
		return text, nil

	case MimeFamilyVideo:
		if e.video == nil {
			return "", fmt.Errorf("video extraction not configured")
		}
		text, err := e.video.TranscribeVideo(ctx, data, mimeType)
		if err != nil {
			return "", fmt.Errorf("transcribe video: %w", err)
		}
		return text, nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMime, mimeType)
	}
}
