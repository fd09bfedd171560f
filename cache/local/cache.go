package local

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

// entry holds a cached string value with an optional expiry.
type entry struct {
	data     string
	expireAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// LocalCache is an in-process cache implementing the Cache interface.
type LocalCache struct {
	mu        sync.RWMutex
	kv        map[string]entry
	hashes    map[string]map[string]string
	lists     map[string][]string
	stopGC    chan struct{}
	closeOnce sync.Once
}

// NewCache creates a LocalCache and starts the background GC goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		kv:     make(map[string]entry),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
		stopGC: make(chan struct{}),
	}
	go c.runGC(interval)
	return c, nil
}

// Close stops the background GC goroutine.
func (c *LocalCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopGC) })
	return nil
}

func (c *LocalCache) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.kv {
				if e.expired(now) {
					delete(c.kv, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopGC:
			return
		}
	}
}

// ---- KV ----

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	e, ok := c.kv[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := entry{data: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.kv[key] = e
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.kv, k)
		delete(c.hashes, k)
		delete(c.lists, k)
	}
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.kv[key]; ok && !e.expired(now) {
		return true, nil
	}
	_, h := c.hashes[key]
	_, l := c.lists[key]
	return h || l, nil
}

func (c *LocalCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.kv[key]
	if !ok || e.expired(now) {
		e = entry{data: "0"}
		if ttl > 0 {
			e.expireAt = now.Add(ttl)
		}
	}
	n, err := strconv.ParseInt(e.data, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: %q is not a counter", key)
	}
	n++
	e.data = strconv.FormatInt(n, 10)
	c.kv[key] = e
	return n, nil
}

// ---- Hash ----

func (c *LocalCache) HSet(_ context.Context, key string, values map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string]string, len(values))
		c.hashes[key] = h
	}
	for f, v := range values {
		h[f] = v
	}
	return nil
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]string, len(c.hashes[key]))
	for f, v := range c.hashes[key] {
		result[f] = v
	}
	return result, nil
}

// ---- List ----

func (c *LocalCache) PushCapped(_ context.Context, key string, max int64, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	// LPUSH semantics: the last value ends up at index 0.
	head := make([]string, 0, len(values)+len(l))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	l = append(head, l...)
	if max > 0 && int64(len(l)) > max {
		l = l[:max]
	}
	c.lists[key] = l
	return nil
}

func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l := c.lists[key]
	n := int64(len(l))
	if start < 0 {
		start = 0
	}
	if start >= n {
		return nil, nil
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	result := make([]string, stop-start+1)
	copy(result, l[start:stop+1])
	return result, nil
}
