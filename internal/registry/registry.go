package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parapool/agent/internal/chain"
)

// Capacities of the persisted FIFOs.
const (
	ProcessedPostCap = 500
	ContentHashCap   = 200
)

// DailyCounter tracks per-UTC-date social volume.
type DailyCounter struct {
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
}

type poolKey struct {
	variant chain.Variant
	id      uint64
}

// Registry is the in-memory pool book plus process counters. The lifecycle
// controller is the only writer during a heartbeat; the commerce handler
// writes between heartbeats through the same object.
type Registry struct {
	mu    sync.RWMutex
	pools map[poolKey]*PoolEntry

	cycleCount           uint64
	lastPoolCreatedCycle uint64
	lastHeartbeat        time.Time
	daily                map[string]*DailyCounter
	processedPosts       *BoundedSet
	contentHashes        *BoundedSet
	suspendedUntil       *time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		pools:          make(map[poolKey]*PoolEntry),
		daily:          make(map[string]*DailyCounter),
		processedPosts: NewBoundedSet(ProcessedPostCap),
		contentHashes:  NewBoundedSet(ContentHashCap),
	}
}

// Add inserts a new entry. A second entry with the same (variant, pool id)
// is an invariant violation and is rejected.
func (r *Registry) Add(e *PoolEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := poolKey{e.Variant, e.PoolID}
	if _, exists := r.pools[key]; exists {
		return fmt.Errorf("registry: duplicate pool %s/%d", e.Variant, e.PoolID)
	}
	e.UpdatedAt = time.Now().UTC()
	r.pools[key] = e
	return nil
}

// Get returns a copy of the entry, if present.
func (r *Registry) Get(v chain.Variant, id uint64) (PoolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.pools[poolKey{v, id}]
	if !ok {
		return PoolEntry{}, false
	}
	return *e, true
}

// Update applies fn to the entry under the write lock. Status moves are
// checked against the pool FSM; an illegal transition is rejected and the
// entry left untouched.
func (r *Registry) Update(v chain.Variant, id uint64, fn func(*PoolEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pools[poolKey{v, id}]
	if !ok {
		return fmt.Errorf("registry: no pool %s/%d", v, id)
	}
	before := *e
	fn(e)
	if e.Status != before.Status {
		if before.Status.IsTerminal() || !before.Status.CanTransition(e.Status) {
			*e = before
			return fmt.Errorf("registry: illegal transition %s -> %s for pool %s/%d",
				before.Status, e.Status, v, id)
		}
	}
	if before.ClaimApproved != nil && e.ClaimApproved != nil && *before.ClaimApproved != *e.ClaimApproved {
		*e = before
		return fmt.Errorf("registry: claim_approved is immutable once set on pool %s/%d", v, id)
	}
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// All returns copies of every entry, ordered by variant then pool id.
func (r *Registry) All() []PoolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PoolEntry, 0, len(r.pools))
	for _, e := range r.pools {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Variant != out[j].Variant {
			return out[i].Variant < out[j].Variant
		}
		return out[i].PoolID < out[j].PoolID
	})
	return out
}

// Live returns copies of every non-terminal entry.
func (r *Registry) Live() []PoolEntry {
	var out []PoolEntry
	for _, e := range r.All() {
		if e.Live() {
			out = append(out, e)
		}
	}
	return out
}

// LiveCount counts non-terminal pools, the creation-gate input.
func (r *Registry) LiveCount() int {
	return len(r.Live())
}

// Len returns the total entry count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// --- counters ---

// dailyRetentionDays bounds the daily counter map: only the current day
// gates posting, older days are kept briefly for operator inspection.
const dailyRetentionDays = 7

// BeginCycle bumps the heartbeat counter, stamps the heartbeat time and
// drops daily counters past retention so the persisted map stays bounded.
func (r *Registry) BeginCycle() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycleCount++
	r.lastHeartbeat = time.Now().UTC()
	cutoff := r.lastHeartbeat.AddDate(0, 0, -dailyRetentionDays).Format("2006-01-02")
	for day := range r.daily {
		if day < cutoff {
			delete(r.daily, day)
		}
	}
	return r.cycleCount
}

// CycleCount returns the current heartbeat cycle number.
func (r *Registry) CycleCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycleCount
}

// MarkPoolCreated records the cycle at which the agent last created a pool.
func (r *Registry) MarkPoolCreated(cycle uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPoolCreatedCycle = cycle
}

// CyclesSinceCreation returns how many cycles have elapsed since the agent
// last created a pool.
func (r *Registry) CyclesSinceCreation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastPoolCreatedCycle == 0 {
		return r.cycleCount
	}
	return r.cycleCount - r.lastPoolCreatedCycle
}

// CountPost increments today's post counter and returns the new value.
func (r *Registry) CountPost() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.today()
	c.Posts++
	return c.Posts
}

// CountComment increments today's comment counter and returns the new value.
func (r *Registry) CountComment() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.today()
	c.Comments++
	return c.Comments
}

// Today returns a copy of today's counters.
func (r *Registry) Today() DailyCounter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.today()
}

func (r *Registry) today() *DailyCounter {
	key := time.Now().UTC().Format("2006-01-02")
	c, ok := r.daily[key]
	if !ok {
		c = &DailyCounter{}
		r.daily[key] = c
	}
	return c
}

// --- duplicate suppression and processed posts ---

// SeenPost reports whether the inbound post id was already handled.
func (r *Registry) SeenPost(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.processedPosts.Contains(id)
}

// MarkPost records an inbound post id as handled.
func (r *Registry) MarkPost(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processedPosts.Add(id)
}

// SeenContent reports whether an outbound content hash was already posted.
func (r *Registry) SeenContent(hash string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contentHashes.Contains(hash)
}

// MarkContent records an outbound content hash.
func (r *Registry) MarkContent(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contentHashes.Add(hash)
}

// --- suspension ---

// Suspend blocks write-class social operations until t.
func (r *Registry) Suspend(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspendedUntil = &t
}

// Suspended reports whether the platform suspension is still in force.
func (r *Registry) Suspended() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.suspendedUntil != nil && time.Now().Before(*r.suspendedUntil)
}

// SuspendedUntil returns the suspension expiry, if any.
func (r *Registry) SuspendedUntil() *time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.suspendedUntil == nil {
		return nil
	}
	t := *r.suspendedUntil
	return &t
}
