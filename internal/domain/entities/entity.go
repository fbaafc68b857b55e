package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entity is a typed node for a stable concept: a topic, repository, paper,
// tool or person. NormalizedName uniquely identifies an entity within its
// type (enforced by a partial unique index); aliases live in metadata and are
// unique across all entities. Topic entities carry their ancestor path in
// Hierarchy and reference the direct parent via metadata.parent_topic.
type Entity struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EntityType     string         `gorm:"column:entity_type;not null;index" json:"entity_type"`
	Name           string         `gorm:"column:name;not null;index" json:"name"`
	NormalizedName string         `gorm:"column:normalized_name;not null;index" json:"normalized_name"`
	Description    string         `gorm:"column:description;type:text;not null;default:''" json:"description"`
	Hierarchy      datatypes.JSON `gorm:"column:hierarchy;type:jsonb;not null;default:'[]'" json:"hierarchy"`
	Metadata       datatypes.JSON `gorm:"column:metadata;type:jsonb;not null;default:'{}'" json:"metadata"`
	Source         string         `gorm:"column:source;not null;default:'manual';index" json:"source"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Entity) TableName() string { return "entity" }

const (
	TypeTopic  = "topic"
	TypeRepo   = "repo"
	TypePaper  = "paper"
	TypeTool   = "tool"
	TypePerson = "person"
)

const (
	SourceURLDetected = "url_detected"
	SourceAIExtracted = "ai_extracted"
	SourceManual      = "manual"
)

// metadata keys
const (
	MetaAliases     = "aliases"
	MetaURL         = "url"
	MetaRegistry    = "registry"
	MetaParentTopic = "parent_topic"
	MetaStars       = "stars"
	MetaLanguage    = "language"
	MetaTopics      = "topics"
	MetaAuthors     = "authors"
	MetaAbstract    = "abstract"
)

func ValidType(t string) bool {
	switch t {
	case TypeTopic, TypeRepo, TypePaper, TypeTool, TypePerson:
		return true
	}
	return false
}
