package entities

import (
	"time"

	"github.com/google/uuid"
)

// TagAlias maps a variant tag spelling to its canonical form. Rows are
// written as a side effect of unified enrichment when a proposed new tag
// collapses onto an existing one by edit distance.
type TagAlias struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Variant    string    `gorm:"column:variant;not null;uniqueIndex" json:"variant"`
	Canonical  string    `gorm:"column:canonical;not null;index" json:"canonical"`
	UsageCount int       `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TagAlias) TableName() string { return "tag_alias" }
