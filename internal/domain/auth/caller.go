package auth

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Caller is an authenticated API identity. Requests authenticate either by
// HTTP message signature (KeyID + Secret) or by a bearer token minted from
// the api key (stored bcrypt-hashed). Webhook fields configure terminal job
// notifications for content this caller ingests.
type Caller struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name          string    `gorm:"column:name;not null" json:"name"`
	KeyID         string    `gorm:"column:key_id;not null;uniqueIndex" json:"key_id"`
	Secret        string    `gorm:"column:secret;not null" json:"-"`
	APIKeyHash    string    `gorm:"column:api_key_hash" json:"-"`
	WebhookURL    string    `gorm:"column:webhook_url" json:"webhook_url,omitempty"`
	WebhookSecret string    `gorm:"column:webhook_secret" json:"-"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Caller) TableName() string { return "caller" }
