package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// snapshotFile is the single JSON document persisted between runs. It is a
// crash-recoverable cache of chain truth, not a system of record: the
// controller must come up correctly from an empty file.
type snapshotFile struct {
	Pools                []PoolEntry              `json:"pools"`
	ProcessedPostIDs     []string                 `json:"processed_post_ids"`
	ContentHashes        []string                 `json:"content_hashes"`
	LastPoolCreatedCycle uint64                   `json:"last_pool_created_cycle"`
	CycleCount           uint64                   `json:"cycle_count"`
	LastHeartbeat        time.Time                `json:"last_heartbeat"`
	DailyCounters        map[string]*DailyCounter `json:"daily_counters"`
	SuspendedUntil       *time.Time               `json:"suspended_until,omitempty"`
	StateHash            string                   `json:"state_hash"`
}

// Save writes the snapshot atomically: marshal, write a sibling temp file,
// rename over the target.
func (r *Registry) Save(path string) error {
	r.mu.RLock()
	snap := snapshotFile{
		Pools:                make([]PoolEntry, 0, len(r.pools)),
		ProcessedPostIDs:     r.processedPosts.Items(),
		ContentHashes:        r.contentHashes.Items(),
		LastPoolCreatedCycle: r.lastPoolCreatedCycle,
		CycleCount:           r.cycleCount,
		LastHeartbeat:        r.lastHeartbeat,
		DailyCounters:        make(map[string]*DailyCounter, len(r.daily)),
		SuspendedUntil:       r.suspendedUntil,
	}
	for _, e := range r.pools {
		snap.Pools = append(snap.Pools, *e)
	}
	for k, v := range r.daily {
		c := *v
		snap.DailyCounters[k] = &c
	}
	r.mu.RUnlock()

	body, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("snapshot marshal: %w", err)
	}
	snap.StateHash = stateHash(body)
	out, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot rename: %w", err)
	}
	return nil
}

// Load restores the registry from a snapshot file. A missing file is not
// an error; a corrupt file is reported so the operator can decide, and the
// registry stays empty (reconciliation rebuilds it from chain).
func (r *Registry) Load(path string) error {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("snapshot read: %w", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(body, &snap); err != nil {
		return fmt.Errorf("snapshot parse: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools = make(map[poolKey]*PoolEntry, len(snap.Pools))
	for i := range snap.Pools {
		e := snap.Pools[i]
		r.pools[poolKey{e.Variant, e.PoolID}] = &e
	}
	r.processedPosts.Restore(snap.ProcessedPostIDs)
	r.contentHashes.Restore(snap.ContentHashes)
	r.lastPoolCreatedCycle = snap.LastPoolCreatedCycle
	r.cycleCount = snap.CycleCount
	r.lastHeartbeat = snap.LastHeartbeat
	r.suspendedUntil = snap.SuspendedUntil
	r.daily = snap.DailyCounters
	if r.daily == nil {
		r.daily = make(map[string]*DailyCounter)
	}
	return nil
}

// stateHash fingerprints the snapshot body so tampering or partial writes
// are detectable in audits.
func stateHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
