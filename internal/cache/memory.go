package cache

import (
	"context"
	"sync"
	"time"

	"docqa-service/internal/model"
)

type memoryEntry struct {
	text      model.ExtractedText
	expiresAt time.Time
}

// MemoryCache is a process-local TextCache. Expired entries are evicted lazily
// when looked up.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache builds a cache reading time from now; nil means time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (c *MemoryCache) Get(_ context.Context, documentID string) (model.ExtractedText, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[documentID]
	if !ok {
		return model.ExtractedText{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, documentID)
		return model.ExtractedText{}, false
	}
	return entry.text, true
}

func (c *MemoryCache) Set(_ context.Context, documentID string, text model.ExtractedText) {
	now := c.now()
	ttl := TTLFor(documentID, now)
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[documentID] = memoryEntry{text: text, expiresAt: now.Add(ttl)}
}

func (c *MemoryCache) Delete(_ context.Context, documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, documentID)
}

// Len reports stored entries, expired ones included until looked up.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}
