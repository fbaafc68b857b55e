package realtime

import (
	"time"

	"github.com/google/uuid"

	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
)

// JobEvent is the lifecycle notification published once per observable job
// transition: created, each progress update, and the terminal transition.
// Consumers treat it as a hint; the pipeline_job row stays the source of truth.
type JobEvent struct {
	JobID     uuid.UUID  `json:"job_id"`
	ContentID *uuid.UUID `json:"content_id,omitempty"`
	JobType   string     `json:"job_type"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage,omitempty"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	ErrorCode string     `json:"error_code,omitempty"`
	EmittedAt time.Time  `json:"emitted_at"`
}

// Terminal reports whether the event describes a finished job. Webhook
// delivery keys off this.
func (e JobEvent) Terminal() bool {
	return domainjobs.Terminal(e.Status)
}
