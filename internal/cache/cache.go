package cache

import (
	"sync"
)

// Versioned caches a read-mostly dataset keyed by a version counter stored in
// the database. Get re-fetches the data only when the stored counter has
// moved past the cached one, so zone and artifact lists stay hot on the
// report path without going stale after operator edits.
type Versioned[T any] struct {
	mu      sync.Mutex
	version uint64
	value   T
	loaded  bool
}

func NewVersioned[T any]() *Versioned[T] {
	return &Versioned[T]{}
}

// Get returns the cached value, refreshing it through fetchData when
// fetchVersion reports a counter newer than the cached one.
func (c *Versioned[T]) Get(
	fetchVersion func() (uint64, error),
	fetchData func() (T, error),
) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := fetchVersion()
	if err != nil {
		var zero T
		return zero, err
	}

	if c.loaded && current == c.version {
		return c.value, nil
	}

	value, err := fetchData()
	if err != nil {
		var zero T
		return zero, err
	}

	c.value = value
	c.version = current
	c.loaded = true
	return c.value, nil
}

// Invalidate drops the cached value so the next Get re-fetches regardless of
// the counter.
func (c *Versioned[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
}
