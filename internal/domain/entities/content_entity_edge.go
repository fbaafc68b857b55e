package entities

import (
	"time"

	"github.com/google/uuid"
)

// ContentEntityEdge relates a content to an entity with a typed relationship.
// At most one edge exists per (content, entity) pair; reprocessing recreates
// the content's edges instead of accumulating them, so rows hard-delete.
type ContentEntityEdge struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ContentID  uuid.UUID `gorm:"type:uuid;not null;index;index:idx_content_entity_pair,unique,priority:1" json:"content_id"`
	EntityID   uuid.UUID `gorm:"type:uuid;not null;index;index:idx_content_entity_pair,unique,priority:2" json:"entity_id"`
	EdgeType   string    `gorm:"column:edge_type;not null;default:'mentions'" json:"edge_type"`
	Confidence float64   `gorm:"column:confidence;not null;default:0" json:"confidence"`
	Source     string    `gorm:"column:source;not null" json:"source"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ContentEntityEdge) TableName() string { return "content_entity_edge" }

const (
	EdgeDiscusses    = "discusses"
	EdgeMentions     = "mentions"
	EdgeUses         = "uses"
	EdgeCites        = "cites"
	EdgeDemonstrates = "demonstrates"
)

func ValidEdgeType(t string) bool {
	switch t {
	case EdgeDiscusses, EdgeMentions, EdgeUses, EdgeCites, EdgeDemonstrates:
		return true
	}
	return false
}
