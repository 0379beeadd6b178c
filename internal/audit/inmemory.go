package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const defaultMemoryLimit = 10_000

type inMemoryRecorder struct {
	mu     sync.RWMutex
	events []Event
	limit  int
}

// NewInMemory creates a concurrency-safe recorder that keeps the most recent
// events in memory.
func NewInMemory() Recorder {
	return &inMemoryRecorder{limit: defaultMemoryLimit}
}

func (r *inMemoryRecorder) Record(_ context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if over := len(r.events) - r.limit; over > 0 {
		r.events = append([]Event(nil), r.events[over:]...)
	}
	return nil
}

// List returns up to limit events, newest first. A non-positive limit returns all.
func (r *inMemoryRecorder) List(_ context.Context, limit int) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}
