package tokenstore

import (
	"container/list"
	"sort"
	"sync"
	"time"
)

// DefaultCapacity bounds a store when no explicit capacity is configured.
const DefaultCapacity = 1000

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	seq       uint64
}

// Item is a snapshot of a live entry returned by List.
type Item[K comparable, V any] struct {
	Key       K
	Value     V
	ExpiresAt time.Time
}

// Store is a thread-safe LRU map whose entries expire a fixed TTL after
// they were written. When the store is full, expired entries are swept
// first and then the least recently used entry is evicted.
type Store[K comparable, V any] struct {
	ttl      time.Duration
	capacity int
	items    map[K]*list.Element
	recency  *list.List
	seq      uint64
	now      func() time.Time
	onEvict  func(key K, value V)
	mu       sync.Mutex
}

// Option configures a Store.
type Option[K comparable, V any] func(*Store[K, V])

// WithClock replaces time.Now as the source of expiry time.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(s *Store[K, V]) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvictCallback registers fn for entries dropped because of capacity.
// It runs with the store lock held and must not call back into the store.
func WithEvictCallback[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(s *Store[K, V]) {
		s.onEvict = fn
	}
}

// New creates a store whose entries live for ttl. A non-positive capacity
// falls back to DefaultCapacity; a non-positive ttl panics.
func New[K comparable, V any](ttl time.Duration, capacity int, opts ...Option[K, V]) *Store[K, V] {
	if ttl <= 0 {
		panic("tokenstore: ttl must be positive")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store[K, V]{
		ttl:      ttl,
		capacity: capacity,
		items:    make(map[K]*list.Element),
		recency:  list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the fixed lifetime of entries in this store.
func (s *Store[K, V]) TTL() time.Duration { return s.ttl }

// Capacity returns the maximum number of entries.
func (s *Store[K, V]) Capacity() int { return s.capacity }

// Put inserts or overwrites key and restarts its expiration clock.
func (s *Store[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, value, s.now().Add(s.ttl))
}

// PutUntil is Put with an explicit deadline, for values that carry their own
// expiry. The deadline is capped at the store TTL from now.
func (s *Store[K, V]) PutUntil(key K, value V, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit := s.now().Add(s.ttl); expiresAt.After(limit) {
		expiresAt = limit
	}
	s.putLocked(key, value, expiresAt)
}

// Must be called with lock held.
func (s *Store[K, V]) putLocked(key K, value V, expiresAt time.Time) {
	now := s.now()
	s.seq++

	if elem, ok := s.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		e.seq = s.seq
		s.recency.MoveToFront(elem)
		return
	}

	if s.recency.Len() >= s.capacity {
		s.purgeLocked(now)
	}
	for s.recency.Len() >= s.capacity {
		s.evictOldest()
	}

	e := &entry[K, V]{key: key, value: value, expiresAt: expiresAt, seq: s.seq}
	s.items[key] = s.recency.PushFront(e)
}

// Get returns the value for key if it is present and not expired, marking
// it as recently used.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.liveLocked(key)
	if !ok {
		var zero V
		return zero, false
	}
	s.recency.MoveToFront(elem)
	return elem.Value.(*entry[K, V]).value, true
}

// Update applies fn to the live value for key and stores the result without
// resetting its expiration. It reports false if key is absent or expired.
func (s *Store[K, V]) Update(key K, fn func(V) V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.liveLocked(key)
	if !ok {
		var zero V
		return zero, false
	}
	e := elem.Value.(*entry[K, V])
	e.value = fn(e.value)
	s.recency.MoveToFront(elem)
	return e.value, true
}

// Take removes key and returns its value in one step. Of several concurrent
// callers for the same key at most one observes ok == true.
func (s *Store[K, V]) Take(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.liveLocked(key)
	if !ok {
		var zero V
		return zero, false
	}
	s.removeElement(elem)
	return elem.Value.(*entry[K, V]).value, true
}

// Remove deletes key if present.
func (s *Store[K, V]) Remove(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
}

// List returns the live entries in insertion order. It does not touch
// recency.
func (s *Store[K, V]) List() []Item[K, V] {
	s.mu.Lock()
	now := s.now()
	live := make([]*entry[K, V], 0, len(s.items))
	for _, elem := range s.items {
		e := elem.Value.(*entry[K, V])
		if now.Before(e.expiresAt) {
			live = append(live, e)
		}
	}
	items := make([]Item[K, V], 0, len(live))
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })
	for _, e := range live {
		items = append(items, Item[K, V]{Key: e.key, Value: e.value, ExpiresAt: e.expiresAt})
	}
	s.mu.Unlock()
	return items
}

// Purge drops every expired entry and returns how many were removed.
func (s *Store[K, V]) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(s.now())
}

// Len returns the number of stored entries, including expired ones that
// were not swept yet.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recency.Len()
}

// Must be called with lock held. Expired entries are dropped on sight.
func (s *Store[K, V]) liveLocked(key K) (*list.Element, bool) {
	elem, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if !s.now().Before(elem.Value.(*entry[K, V]).expiresAt) {
		s.removeElement(elem)
		return nil, false
	}
	return elem, true
}

// Must be called with lock held.
func (s *Store[K, V]) purgeLocked(now time.Time) int {
	removed := 0
	for elem := s.recency.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*entry[K, V]).expiresAt) {
			s.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Must be called with lock held.
func (s *Store[K, V]) evictOldest() {
	elem := s.recency.Back()
	if elem == nil {
		return
	}
	s.removeElement(elem)
	if s.onEvict != nil {
		e := elem.Value.(*entry[K, V])
		s.onEvict(e.key, e.value)
	}
}

// Must be called with lock held.
func (s *Store[K, V]) removeElement(elem *list.Element) {
	s.recency.Remove(elem)
	delete(s.items, elem.Value.(*entry[K, V]).key)
}
