// Package querycache holds the in-memory results that UI queries render.
// Every write is a read-modify-write under one lock, so concurrent patches
// from the live dispatcher and the fetch orchestrator never lose updates.
package querycache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Key identifies one query result, e.g. {"timeline", "<interaction>", "infinite"}.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

// HasPrefix reports whether the key starts with the given segments.
func (k Key) HasPrefix(prefix ...string) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, segment := range prefix {
		if k[i] != segment {
			return false
		}
	}
	return true
}

// Matcher selects keys for bulk updates and invalidation.
type Matcher func(Key) bool

func MatchPrefix(prefix ...string) Matcher {
	return func(k Key) bool { return k.HasPrefix(prefix...) }
}

func MatchKey(key Key) Matcher {
	id := key.String()
	return func(k Key) bool { return k.String() == id }
}

type entry struct {
	key       Key
	data      any
	updatedAt time.Time
	stale     bool
}

type watcher struct {
	key Key
	fn  func(data any)
}

type invalidationHandler struct {
	key Key
	fn  func()
}

type Cache struct {
	mu            sync.Mutex
	entries       map[string]*entry
	nextId        uint64
	watchers      map[uint64]watcher
	invalidations map[uint64]invalidationHandler
}

func New() *Cache {
	return &Cache{
		entries:       make(map[string]*entry),
		watchers:      make(map[uint64]watcher),
		invalidations: make(map[uint64]invalidationHandler),
	}
}

func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return nil, false
	}
	return e.data, true
}

func (c *Cache) Set(key Key, data any) {
	c.Update(key, func(any, bool) (any, bool) { return data, true })
}

// Update applies fn to the current value. fn returns the next value and
// whether to store it. Watchers of key are notified after the lock is released.
func (c *Cache) Update(key Key, fn func(prev any, ok bool) (any, bool)) bool {
	id := key.String()

	c.mu.Lock()
	e, ok := c.entries[id]
	var prev any
	if ok {
		prev = e.data
	}
	next, write := fn(prev, ok)
	if !write {
		c.mu.Unlock()
		return false
	}
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[id] = e
	}
	e.data = next
	e.updatedAt = time.Now()
	e.stale = false
	notify := c.watchersFor(id)
	c.mu.Unlock()

	for _, w := range notify {
		safeCall(key, func() { w(next) })
	}
	return true
}

// UpdateWhere applies fn to every cached entry whose key matches and returns
// how many entries changed.
func (c *Cache) UpdateWhere(match Matcher, fn func(key Key, prev any) (any, bool)) int {
	type change struct {
		key  Key
		data any
		fns  []func(any)
	}

	c.mu.Lock()
	var changes []change
	for id, e := range c.entries {
		if !match(e.key) {
			continue
		}
		next, write := fn(e.key, e.data)
		if !write {
			continue
		}
		e.data = next
		e.updatedAt = time.Now()
		e.stale = false
		changes = append(changes, change{key: e.key, data: next, fns: c.watchersFor(id)})
	}
	c.mu.Unlock()

	for _, ch := range changes {
		for _, w := range ch.fns {
			data := ch.data
			safeCall(ch.key, func() { w(data) })
		}
	}
	return len(changes)
}

// Keys returns the cached keys that match.
func (c *Cache) Keys(match Matcher) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []Key
	for _, e := range c.entries {
		if match(e.key) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Invalidate marks matching entries stale and asks every query registered on
// a matching key to refetch. It returns the number of refetches triggered.
func (c *Cache) Invalidate(match Matcher) int {
	c.mu.Lock()
	for _, e := range c.entries {
		if match(e.key) {
			e.stale = true
		}
	}
	var handlers []invalidationHandler
	for _, h := range c.invalidations {
		if match(h.key) {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		safeCall(h.key, h.fn)
	}
	if len(handlers) > 0 {
		zap.L().Debug("Invalidated cached queries", zap.Int("refetches", len(handlers)))
	}
	return len(handlers)
}

func (c *Cache) IsStale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	return !ok || e.stale
}

// Remove drops matching entries without triggering refetches.
func (c *Cache) Remove(match Matcher) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		if match(e.key) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Clear drops every entry, e.g. when the signed-in owner changes.
func (c *Cache) Clear() {
	c.Remove(func(Key) bool { return true })
}

// Watch calls fn with every new value stored under key.
func (c *Cache) Watch(key Key, fn func(data any)) func() {
	c.mu.Lock()
	c.nextId++
	id := c.nextId
	c.watchers[id] = watcher{key: append(Key(nil), key...), fn: fn}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// OnInvalidate registers the refetch hook of the query that owns key.
func (c *Cache) OnInvalidate(key Key, fn func()) func() {
	c.mu.Lock()
	c.nextId++
	id := c.nextId
	c.invalidations[id] = invalidationHandler{key: append(Key(nil), key...), fn: fn}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.invalidations, id)
		c.mu.Unlock()
	}
}

// watchersFor must be called with c.mu held.
func (c *Cache) watchersFor(id string) []func(any) {
	var fns []func(any)
	for _, w := range c.watchers {
		if w.key.String() == id {
			fns = append(fns, w.fn)
		}
	}
	return fns
}

func safeCall(key Key, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Cache callback panicked",
				zap.String("key", key.String()),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}
