package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/**
 * PipelineJob is the durable work item behind the enrichment pipeline.
 *
 * - resource_key is the dedup key: at most one job per key may sit in an
 *   active status (pending or processing). Submission does a read-then-create
 *   and a partial unique index backstops the race.
 * - status machine: pending -> processing -> completed | failed | cancelled.
 *   Entering processing sets started_at; leaving it sets finished_at.
 * - cancellation is a flag checked at stage boundaries, it never interrupts
 *   an external call in flight.
 * - failures record error_code / error_message / error_stage; there is no
 *   automatic retry at job level, callers reprocess explicitly.
 */
type PipelineJob struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ResourceKey string     `gorm:"column:resource_key;not null;index" json:"resource_key"`
	ContentID   *uuid.UUID `gorm:"type:uuid;column:content_id;index" json:"content_id,omitempty"`
	JobType     string     `gorm:"column:job_type;not null;default:'unified_enrich';index" json:"job_type"`

	Status          string `gorm:"column:status;not null;index" json:"status"`
	Stage           string `gorm:"column:stage;not null;default:''" json:"stage"`
	Progress        int    `gorm:"column:progress;not null;default:0" json:"progress"`
	Attempts        int    `gorm:"column:attempts;not null;default:0" json:"attempts"`
	PipelineVersion string `gorm:"column:pipeline_version;not null;index" json:"pipeline_version"`
	DataTier        string `gorm:"column:data_tier;not null;default:'full'" json:"data_tier"`
	IdempotencyKey  string `gorm:"column:idempotency_key;index" json:"idempotency_key,omitempty"`

	ErrorCode    string `gorm:"column:error_code" json:"error_code,omitempty"`
	ErrorMessage string `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ErrorStage   string `gorm:"column:error_stage" json:"error_stage,omitempty"`

	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`

	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	Result   datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`

	CreatedAt  time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	StartedAt  *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (PipelineJob) TableName() string { return "pipeline_job" }

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

const (
	TypeUnifiedEnrich = "unified_enrich"
	TypeCoverRender   = "cover_render"
)

const (
	DataTierCompact = "compact"
	DataTierFull    = "full"
)

// ActiveStatuses are the states the per-resource-key uniqueness rule covers.
var ActiveStatuses = []string{StatusPending, StatusProcessing}

func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
