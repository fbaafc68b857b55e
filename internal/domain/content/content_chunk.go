package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ContentChunk is a text slice of a content payload with its embedding.
// Chunk indexes form a dense 0-based sequence per content; the whole set is
// replaced atomically by each enrichment run, so there is no soft delete.
type ContentChunk struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ContentID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_content_chunk_seq,unique,priority:1" json:"content_id"`
	Content   *Content  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ContentID;references:ID" json:"content,omitempty"`

	ChunkIndex    int            `gorm:"column:chunk_index;not null;index:idx_content_chunk_seq,unique,priority:2" json:"chunk_index"`
	Text          string         `gorm:"column:text;type:text;not null" json:"text"`
	Embedding     datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"embedding"`
	TokenEstimate int            `gorm:"column:token_estimate;not null;default:0" json:"token_estimate"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ContentChunk) TableName() string { return "content_chunk" }
