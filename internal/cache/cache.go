// Package cache memoizes pool reads for the duration of a heartbeat phase.
// Public RPC endpoints rate-limit aggressively, so reads are also paced by
// a minimum inter-call delay.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/parapool/agent/internal/chain"
)

// PoolReader is the read surface the cache fronts. *chain.Client satisfies it.
type PoolReader interface {
	GetPool(ctx context.Context, v chain.Variant, poolID uint64) (*chain.PoolView, error)
}

type cacheKey struct {
	variant chain.Variant
	id      uint64
}

type cached struct {
	view *chain.PoolView
	at   time.Time
}

// ReadCache is a TTL memo over pool reads, keyed by (variant, pool id).
// Cleared wholesale at the start of every heartbeat.
type ReadCache struct {
	reader    PoolReader
	ttl       time.Duration
	readDelay time.Duration

	mu       sync.Mutex
	entries  map[cacheKey]cached
	lastRead time.Time

	hits   uint64
	misses uint64
}

// New builds a cache over reader with the given TTL and pacing delay.
func New(reader PoolReader, ttl, readDelay time.Duration) *ReadCache {
	return &ReadCache{
		reader:    reader,
		ttl:       ttl,
		readDelay: readDelay,
		entries:   make(map[cacheKey]cached),
	}
}

// GetPool returns the cached view if its age is within TTL, otherwise
// performs a paced chain read and stores the result.
func (c *ReadCache) GetPool(ctx context.Context, v chain.Variant, poolID uint64) (*chain.PoolView, error) {
	key := cacheKey{v, poolID}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Since(e.at) <= c.ttl {
		c.hits++
		view := *e.view
		c.mu.Unlock()
		return &view, nil
	}
	c.misses++
	wait := c.paceLocked()
	c.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	view, err := c.reader.GetPool(ctx, v, poolID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cached{view: view, at: time.Now()}
	c.mu.Unlock()

	out := *view
	return &out, nil
}

// paceLocked reserves the next read slot and returns how long the caller
// must wait before issuing it. Caller holds c.mu.
func (c *ReadCache) paceLocked() time.Duration {
	now := time.Now()
	next := c.lastRead.Add(c.readDelay)
	if next.Before(now) {
		next = now
	}
	c.lastRead = next
	return next.Sub(now)
}

// Invalidate drops one pool after a successful write touching it.
func (c *ReadCache) Invalidate(v chain.Variant, poolID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{v, poolID})
}

// Clear drops everything. Called at the start of every heartbeat so the
// cycle never acts on the previous cycle's reads.
func (c *ReadCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cached)
}

// Stats returns hit/miss counters for metrics.
func (c *ReadCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
