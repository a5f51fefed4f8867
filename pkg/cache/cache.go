package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	val V
	exp time.Time
}

type Memory[V any] struct {
	mu  sync.RWMutex
	m   map[string]entry[V]
	ttl time.Duration
	now func() time.Time
}

func NewMemory[V any](ttl time.Duration) *Memory[V] {
	return &Memory[V]{m: make(map[string]entry[V]), ttl: ttl, now: time.Now}
}

func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && c.now().After(e.exp)) {
		var zero V
		return zero, false
	}
	return e.val, true
}

func (c *Memory[V]) Set(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry[V]{val: val}
	if c.ttl > 0 {
		e.exp = c.now().Add(c.ttl)
	}
	c.m[key] = e
}

