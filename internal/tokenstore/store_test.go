package tokenstore_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/purchase_confirm/internal/tokenstore"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newStore(c *clock, ttl time.Duration, capacity int) *tokenstore.Store[string, int] {
	return tokenstore.New[string, int](ttl, capacity, tokenstore.WithClock[string, int](c.Now))
}

func TestStore_Basic(t *testing.T) {
	t.Run("put and get", func(t *testing.T) {
		s := newStore(newClock(), time.Hour, 3)
		s.Put("a", 1)

		val, ok := s.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, val)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(newClock(), time.Hour, 3)
		val, ok := s.Get("missing")
		assert.False(t, ok)
		assert.Zero(t, val)
	})

	t.Run("remove is a no-op when absent", func(t *testing.T) {
		s := newStore(newClock(), time.Hour, 3)
		s.Remove("missing")
		s.Put("a", 1)
		s.Remove("a")
		_, ok := s.Get("a")
		assert.False(t, ok)
	})

	t.Run("zero capacity uses default", func(t *testing.T) {
		s := newStore(newClock(), time.Hour, 0)
		assert.Equal(t, tokenstore.DefaultCapacity, s.Capacity())
	})
}

func TestStore_Expiration(t *testing.T) {
	c := newClock()
	s := newStore(c, 5*time.Hour, 10)
	s.Put("a", 1)

	c.Advance(5*time.Hour - time.Second)
	_, ok := s.Get("a")
	assert.True(t, ok, "entry must be retrievable just before its ttl")

	c.Advance(2 * time.Second)
	_, ok = s.Get("a")
	assert.False(t, ok, "entry must be gone just after its ttl")
	assert.Equal(t, 0, s.Len())
}

func TestStore_PutResetsExpiry(t *testing.T) {
	c := newClock()
	s := newStore(c, time.Hour, 10)
	s.Put("a", 1)

	c.Advance(50 * time.Minute)
	s.Put("a", 2)
	c.Advance(50 * time.Minute)

	val, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, val)
}

func TestStore_UpdateKeepsExpiry(t *testing.T) {
	c := newClock()
	s := newStore(c, time.Hour, 10)
	s.Put("a", 1)

	c.Advance(50 * time.Minute)
	updated, ok := s.Update("a", func(v int) int { return v + 10 })
	require.True(t, ok)
	assert.Equal(t, 11, updated)

	c.Advance(11 * time.Minute)
	_, ok = s.Get("a")
	assert.False(t, ok)

	_, ok = s.Update("a", func(v int) int { return v })
	assert.False(t, ok)
}

func TestStore_Eviction(t *testing.T) {
	t.Run("evicts least recently used", func(t *testing.T) {
		var evicted []string
		s := tokenstore.New[string, int](time.Hour, 3,
			tokenstore.WithEvictCallback[string, int](func(k string, _ int) { evicted = append(evicted, k) }),
		)
		s.Put("a", 1)
		s.Put("b", 2)
		s.Put("c", 3)

		_, _ = s.Get("a")
		s.Put("d", 4)

		_, ok := s.Get("b")
		assert.False(t, ok, "b should have been evicted")
		for _, k := range []string{"a", "c", "d"} {
			_, ok := s.Get(k)
			assert.True(t, ok, k)
		}
		assert.Equal(t, []string{"b"}, evicted)
		assert.Equal(t, 3, s.Len())
	})

	t.Run("sweeps expired before evicting", func(t *testing.T) {
		c := newClock()
		var evicted []string
		s := tokenstore.New[string, int](time.Hour, 2,
			tokenstore.WithClock[string, int](c.Now),
			tokenstore.WithEvictCallback[string, int](func(k string, _ int) { evicted = append(evicted, k) }),
		)
		s.Put("old", 1)
		c.Advance(30 * time.Minute)
		s.Put("fresh", 2)
		c.Advance(31 * time.Minute)

		s.Put("new", 3)
		assert.Empty(t, evicted)
		_, ok := s.Get("fresh")
		assert.True(t, ok)
	})
}

func TestStore_Take(t *testing.T) {
	s := newStore(newClock(), time.Hour, 10)
	s.Put("a", 1)

	val, ok := s.Take("a")
	assert.True(t, ok)
	assert.Equal(t, 1, val)

	_, ok = s.Take("a")
	assert.False(t, ok)
}

func TestStore_TakeHasSingleWinner(t *testing.T) {
	s := newStore(newClock(), time.Hour, 10)
	s.Put("a", 1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Take("a"); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestStore_ListInsertionOrderSkipsExpired(t *testing.T) {
	c := newClock()
	s := newStore(c, time.Hour, 10)
	s.Put("a", 1)
	c.Advance(20 * time.Minute)
	s.Put("b", 2)
	s.Put("c", 3)
	_, _ = s.Get("a")

	items := s.List()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].Key, items[1].Key, items[2].Key})
	assert.Equal(t, c.Now().Add(40*time.Minute), items[0].ExpiresAt)

	c.Advance(45 * time.Minute)
	items = s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Key)
}

func TestStore_Purge(t *testing.T) {
	c := newClock()
	s := newStore(c, time.Hour, 10)
	s.Put("a", 1)
	s.Put("b", 2)
	c.Advance(30 * time.Minute)
	s.Put("c", 3)
	c.Advance(31 * time.Minute)

	assert.Equal(t, 2, s.Purge())
	assert.Equal(t, 1, s.Len())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newStore(newClock(), time.Hour, 64)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k-%d-%d", i, j%8)
				s.Put(key, j)
				_, _ = s.Get(key)
				_, _ = s.Update(key, func(v int) int { return v + 1 })
				_ = s.List()
				if j%3 == 0 {
					_, _ = s.Take(key)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 64)
}

func TestStore_PutUntil(t *testing.T) {
	t.Run("explicit deadline", func(t *testing.T) {
		c := newClock()
		s := newStore(c, time.Hour, 3)
		s.PutUntil("a", 1, c.Now().Add(10*time.Minute))

		c.Advance(10*time.Minute - time.Nanosecond)
		_, ok := s.Get("a")
		assert.True(t, ok)

		c.Advance(time.Nanosecond)
		_, ok = s.Get("a")
		assert.False(t, ok)
	})

	t.Run("capped at ttl", func(t *testing.T) {
		c := newClock()
		s := newStore(c, time.Hour, 3)
		s.PutUntil("a", 1, c.Now().Add(48*time.Hour))

		items := s.List()
		require.Len(t, items, 1)
		assert.True(t, items[0].ExpiresAt.Equal(c.Now().Add(time.Hour)))
	})
}
