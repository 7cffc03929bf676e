package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// AuditRecord is one hash-chained entry of the resolution audit trail:
// which pool, what the auditors saw, and what they decided. The chain makes
// after-the-fact tampering with a disputed resolution detectable.
type AuditRecord struct {
	PoolID       uint64    `json:"pool_id"`
	Variant      string    `json:"variant"`
	EvidenceURL  string    `json:"evidence_url"`
	EvidenceHash string    `json:"evidence_hash"`
	Consensus    bool      `json:"consensus"`
	Timestamp    time.Time `json:"timestamp"`
	PrevHash     string    `json:"prev_hash"`
	Hash         string    `json:"hash"`
}

// AuditTrail is an append-only in-memory chain of resolution records.
type AuditTrail struct {
	mu      sync.Mutex
	records []AuditRecord
	head    string
}

// NewAuditTrail creates an empty trail.
func NewAuditTrail() *AuditTrail {
	return &AuditTrail{}
}

// Append links a new record onto the chain and returns its hash.
func (t *AuditTrail) Append(poolID uint64, variant, evidenceURL, sanitized string, consensus bool) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := AuditRecord{
		PoolID:       poolID,
		Variant:      variant,
		EvidenceURL:  evidenceURL,
		EvidenceHash: HashEvidence(sanitized),
		Consensus:    consensus,
		Timestamp:    time.Now().UTC(),
		PrevHash:     t.head,
	}
	rec.Hash = recordHash(rec)
	t.records = append(t.records, rec)
	t.head = rec.Hash
	return rec.Hash
}

// Verify recomputes the chain and reports the first broken link, if any.
func (t *AuditTrail) Verify() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := ""
	for i, rec := range t.records {
		if rec.PrevHash != prev {
			return fmt.Errorf("audit record %d: prev hash mismatch", i)
		}
		expect := rec
		expect.Hash = ""
		if recordHash(expect) != rec.Hash {
			return fmt.Errorf("audit record %d: hash mismatch", i)
		}
		prev = rec.Hash
	}
	return nil
}

// Records returns a copy of the trail.
func (t *AuditTrail) Records() []AuditRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AuditRecord, len(t.records))
	copy(out, t.records)
	return out
}

// HashEvidence fingerprints sanitized evidence text.
func HashEvidence(sanitized string) string {
	sum := sha256.Sum256([]byte(sanitized))
	return hex.EncodeToString(sum[:])
}

func recordHash(rec AuditRecord) string {
	rec.Hash = ""
	body, _ := json.Marshal(rec)
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
