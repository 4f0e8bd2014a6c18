package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimezoneCache stores users' resolved timezone names.
type TimezoneCache interface {
	Get(ctx context.Context, userID uuid.UUID) (string, bool, error)
	Set(ctx context.Context, userID uuid.UUID, tz string) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type memoryEntry struct {
	tz      string
	expires time.Time
}

// MemoryTimezoneCache is an in-process TimezoneCache with per-entry expiry.
type MemoryTimezoneCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[uuid.UUID]memoryEntry
	now     func() time.Time
}

func NewMemoryTimezoneCache(ttl time.Duration) *MemoryTimezoneCache {
	return &MemoryTimezoneCache{
		ttl:     ttl,
		entries: make(map[uuid.UUID]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryTimezoneCache) Get(_ context.Context, userID uuid.UUID) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if c.ttl > 0 && !c.now().Before(e.expires) {
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return "", false, nil
	}
	return e.tz, true, nil
}

func (c *MemoryTimezoneCache) Set(_ context.Context, userID uuid.UUID, tz string) error {
	c.mu.Lock()
	c.entries[userID] = memoryEntry{tz: tz, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryTimezoneCache) Delete(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}
