package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/realtime"
)

// Bus carries JobEvents from the job runtime to in-process consumers (the
// webhook dispatcher). The memory backend is single-process; the redis
// backend fans events out across replicas.
type Bus interface {
	Publish(ctx context.Context, ev realtime.JobEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.JobEvent)) error
	Close() error
}

// New selects a backend by JOB_EVENTS_BACKEND: "memory" (default) or "redis".
func New(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	backend := strings.ToLower(envutil.Str("JOB_EVENTS_BACKEND", "memory"))
	switch backend {
	case "memory":
		return NewMemoryBus(log)
	case "redis":
		return NewRedisBus(log)
	default:
		return nil, fmt.Errorf("unknown JOB_EVENTS_BACKEND %q", backend)
	}
}
