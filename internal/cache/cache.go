package cache

import (
	"context"
	"sync"
	"time"
)

// SyncThrottle remembers when the product catalog was last pulled from the
// ERP so the minimum interval between pulls holds across restarts.
type SyncThrottle interface {
	LastProductSync(ctx context.Context) (time.Time, bool, error)
	MarkProductSync(ctx context.Context, at time.Time) error
}

type MemorySyncThrottle struct {
	mu   sync.Mutex
	last time.Time
	set  bool
}

func NewMemorySyncThrottle() *MemorySyncThrottle {
	return &MemorySyncThrottle{}
}

func (t *MemorySyncThrottle) LastProductSync(_ context.Context) (time.Time, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.set, nil
}

func (t *MemorySyncThrottle) MarkProductSync(_ context.Context, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = at
	t.set = true
	return nil
}
