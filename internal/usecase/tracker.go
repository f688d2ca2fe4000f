package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Tracker holds the cancel funcs of the jobs running in this process.
type Tracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

func NewTracker() *Tracker {
	return &Tracker{running: make(map[uuid.UUID]context.CancelFunc)}
}

// Start derives a cancellable context for the job. The returned release func
// must be called once the job stops running.
func (t *Tracker) Start(ctx context.Context, id uuid.UUID) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.running[id] = cancel
	t.mu.Unlock()

	return ctx, func() {
		t.mu.Lock()
		delete(t.running, id)
		t.mu.Unlock()
		cancel()
	}
}

// Cancel reports whether the job was running here and has been signalled.
func (t *Tracker) Cancel(id uuid.UUID) bool {
	t.mu.Lock()
	cancel, ok := t.running[id]
	t.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (t *Tracker) Running(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.running[id]
	return ok
}
