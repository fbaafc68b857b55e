package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/realtime"
)

const memoryBusBuffer = 256

// memoryBus delivers events to forwarders inside the same process. Each
// forwarder gets its own buffered channel drained by one goroutine, so a
// slow consumer never blocks Publish; when a buffer fills the event is
// dropped and logged, matching the at-most-once delivery contract.
type memoryBus struct {
	log    *logger.Logger
	mu     sync.Mutex
	subs   []chan realtime.JobEvent
	closed bool
}

func NewMemoryBus(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &memoryBus{
		log: log.With("service", "MemoryJobBus"),
	}, nil
}

func (b *memoryBus) Publish(ctx context.Context, ev realtime.JobEvent) error {
	if b == nil {
		return fmt.Errorf("memory job bus not initialized")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("memory job bus closed")
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("dropping job event, forwarder buffer full",
				"job_id", ev.JobID,
				"status", ev.Status,
			)
		}
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.JobEvent)) error {
	if b == nil {
		return fmt.Errorf("memory job bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	ch := make(chan realtime.JobEvent, memoryBusBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("memory job bus closed")
	}
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.remove(ch)
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

func (b *memoryBus) remove(ch chan realtime.JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *memoryBus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	return nil
}
