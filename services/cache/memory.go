package cachesvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
)

type memEntry struct {
	data      []byte
	expiresAt time.Time // zero: never
}

// memoryCache is the in-process fallback used when no Redis URL is configured.
// Values are stored JSON-encoded so readers never share memory with writers.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	nowFunc func() time.Time
}

var _ core.Cache = (*memoryCache)(nil)

func NewMemoryCache() core.Cache {
	return &memoryCache{entries: make(map[string]memEntry), nowFunc: time.Now}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !e.expiresAt.IsZero() && !c.nowFunc().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, errors.Wrap(err, "decoding "+key)
	}
	return true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, val interface{}, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return errors.Wrap(err, "encoding "+key)
	}
	e := memEntry{data: data}
	if ttl > 0 {
		e.expiresAt = c.nowFunc().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}
