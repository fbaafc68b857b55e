package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Content is the primary node of the knowledge graph: one row per ingested
// source (video, page, upload). Enrichment outputs are denormalized onto the
// row (tier, quality score, summary); the full unified result lives in
// metadata together with the resource_key and source-kind fields.
type Content struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ContentType string    `gorm:"column:content_type;not null;index" json:"content_type"`
	Title       string    `gorm:"column:title;not null;default:''" json:"title"`
	MimeType    string    `gorm:"column:mime_type" json:"mime_type,omitempty"`
	FileSize    int64     `gorm:"column:file_size" json:"file_size,omitempty"`

	// FilePath is the blob key of the canonical payload (transcript or markdown).
	FilePath    string         `gorm:"column:file_path" json:"file_path,omitempty"`
	Author      string         `gorm:"column:author;index" json:"author,omitempty"`
	Tags        datatypes.JSON `gorm:"column:tags;type:jsonb;not null;default:'[]'" json:"tags"`
	Description string         `gorm:"column:description;type:text;not null;default:''" json:"description"`
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb;not null;default:'{}'" json:"metadata"`

	ProcessingStatus string     `gorm:"column:processing_status;not null;default:'none';index" json:"processing_status"`
	PipelineVersion  string     `gorm:"column:pipeline_version;index" json:"pipeline_version,omitempty"`
	Tier             string     `gorm:"column:tier;index" json:"tier,omitempty"`
	QualityScore     *int       `gorm:"column:quality_score" json:"quality_score,omitempty"`
	Summary          string     `gorm:"column:summary;type:text;not null;default:''" json:"summary"`
	ProcessedAt      *time.Time `gorm:"column:processed_at;index" json:"processed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Content) TableName() string { return "content" }

const (
	TypeYouTube  = "youtube"
	TypeWeb      = "web"
	TypeMarkdown = "markdown"
	TypeDocument = "document"
	TypeAudio    = "audio"
	TypeVideo    = "video"
	TypeImage    = "image"
)

const (
	StatusNone       = "none"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// metadata keys read and written across the pipeline
const (
	MetaResourceKey   = "resource_key"
	MetaVideoID       = "video_id"
	MetaChannelID     = "channel_id"
	MetaChannelTitle  = "channel_title"
	MetaDurationSecs  = "duration_seconds"
	MetaCanonicalURL  = "canonical_url"
	MetaSourceURL     = "source_url"
	MetaCallerKeyID   = "caller_key_id"
	MetaUnifiedResult = "unified_result"
	MetaCoverPath     = "cover_path"
)
