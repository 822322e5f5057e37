// Package cache memoizes expensive lookups in a bounded LRU. Concurrent misses for one key share a
// single load.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value for a key on a miss.
type Loader[K comparable, V any] func(context.Context, K) (V, error)

// Memo caches Loader results. Keys are mapped through keyOf before lookup, so keyOf may fold
// equivalent keys onto one entry.
type Memo[K comparable, V any] struct {
	entries *lru.Cache[string, V]
	flights singleflight.Group
	keyOf   func(K) string
}

// New returns a Memo holding at most size entries.
func New[K comparable, V any](size int, keyOf func(K) string) (*Memo[K, V], error) {
	entries, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	return &Memo[K, V]{entries: entries, keyOf: keyOf}, nil
}

// Load returns the value for key and whether it came from the cache. Errors are passed through
// unwrapped and never cached.
func (m *Memo[K, V]) Load(ctx context.Context, key K, load Loader[K, V]) (V, bool, error) {
	k := m.keyOf(key)

	if v, ok := m.entries.Get(k); ok {
		return v, true, nil
	}

	res, err, _ := m.flights.Do(k, func() (any, error) {
		v, err := load(ctx, key)
		if err != nil {
			return nil, err
		}

		m.entries.Add(k, v)

		return v, nil
	})
	if err != nil {
		var zero V

		return zero, false, err //nolint:wrapcheck // callers match loader errors
	}

	return res.(V), false, nil //nolint:forcetypeassert // only V is stored
}

// Forget drops the entry for key.
func (m *Memo[K, V]) Forget(key K) {
	m.entries.Remove(m.keyOf(key))
}

// Len reports the number of cached entries.
func (m *Memo[K, V]) Len() int {
	return m.entries.Len()
}
