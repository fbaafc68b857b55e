package content

import (
	"time"

	"github.com/google/uuid"
)

// ContentLink is an in-document reference (wiki-link or markdown link) from
// one content to another. Target stays null for links that do not resolve to
// an ingested content yet. All links for a source are deleted before a
// re-extraction writes.
type ContentLink struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceContentID uuid.UUID  `gorm:"type:uuid;not null;index" json:"source_content_id"`
	TargetContentID *uuid.UUID `gorm:"type:uuid;index" json:"target_content_id,omitempty"`
	LinkText        string     `gorm:"column:link_text;not null;default:''" json:"link_text"`
	LinkType        string     `gorm:"column:link_type;not null" json:"link_type"`
	CreatedAt       time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (ContentLink) TableName() string { return "content_link" }

const (
	LinkTypeWiki     = "wiki"
	LinkTypeMarkdown = "markdown"
)
