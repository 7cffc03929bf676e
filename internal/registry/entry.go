// Package registry owns the agent's pool book: every pool the agent has
// created or discovered, plus the process-wide counters the heartbeat
// needs. The chain stays authoritative for status and balances; the
// registry is authoritative for display metadata the chain never stores.
package registry

import (
	"time"

	"github.com/parapool/agent/internal/chain"
)

// Artifact phases a pool can publish under. Keys of PoolEntry.Artifacts.
const (
	PhaseArtifactCreated    = "created"     // phase 1: pool announced, premium call
	PhaseArtifactCollateral = "collateral"  // legacy premium funded, collateral call
	PhaseArtifactActivated  = "activated"   // fully collateralized
	PhaseArtifactResolution = "resolution"  // phase 4: outcome published
)

// Source of a registry entry.
const (
	SourceAgent      = "agent"      // heartbeat-created
	SourceCommerce   = "commerce"   // commerce job handler
	SourceReconciled = "reconciled" // discovered on chain during reconciliation
)

// DualAuditRecord is the persisted outcome of the dual-auditor run.
type DualAuditRecord struct {
	JudgeVerdict     bool      `json:"judge_verdict"`
	JudgeConfidence  float64   `json:"judge_confidence"`
	JudgeRationale   string    `json:"judge_rationale"`
	AuditorVerdict   bool      `json:"auditor_verdict"`
	AuditorRationale string    `json:"auditor_rationale"`
	Consensus        bool      `json:"consensus"`
	EvidenceHash     string    `json:"evidence_hash,omitempty"`
	Attestation      string    `json:"attestation,omitempty"`
	DecidedAt        time.Time `json:"decided_at"`
}

// PoolEntry is one pool in the registry. Amounts are six-decimal
// stablecoin micros.
type PoolEntry struct {
	PoolID           uint64            `json:"pool_id"`
	Variant          chain.Variant     `json:"contract_variant"`
	ProductID        string            `json:"product_id"`
	Description      string            `json:"description"`
	EvidenceURL      string            `json:"evidence_source_url"`
	CoverageAmount   int64             `json:"coverage_amount"`
	PremiumAmount    int64             `json:"premium_amount"`
	PremiumRateBps   int               `json:"premium_rate_bps"`
	Deadline         int64             `json:"deadline"`
	DepositDeadline  int64             `json:"deposit_deadline"`
	EventProbability float64           `json:"event_probability"`
	Status           chain.Phase       `json:"status"`
	CreationTxHash   string            `json:"creation_tx_hash,omitempty"`
	ResolutionTxHash string            `json:"resolution_tx_hash,omitempty"`
	Artifacts        map[string]string `json:"artifacts,omitempty"`
	ClaimApproved    *bool             `json:"claim_approved,omitempty"`
	DualAuth         *DualAuditRecord  `json:"dual_auth_result,omitempty"`
	Source           string            `json:"source"`
	JobID            string            `json:"job_id,omitempty"`
	CreatedAtCycle   uint64            `json:"created_at_cycle"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Live reports whether the pool still needs heartbeat attention.
func (e *PoolEntry) Live() bool { return e.Status.IsLive() }

// DueForResolution reports whether the oracle should decide the pool now.
func (e *PoolEntry) DueForResolution(now int64) bool {
	return e.Status.IsActive() && now >= e.Deadline
}

// EmergencyDue reports whether the permissionless emergency path has
// opened: strictly past deadline + 24h with no resolution.
func (e *PoolEntry) EmergencyDue(now int64) bool {
	return e.Status.IsActive() && now > e.Deadline+24*3600
}

// PastDepositWindow reports whether the collateral window has closed.
func (e *PoolEntry) PastDepositWindow(now int64) bool {
	return now >= e.DepositDeadline
}

// SetArtifact records a published artifact id for a lifecycle phase.
func (e *PoolEntry) SetArtifact(phase, id string) {
	if e.Artifacts == nil {
		e.Artifacts = make(map[string]string)
	}
	e.Artifacts[phase] = id
}

// HasArtifact reports whether the phase already published.
func (e *PoolEntry) HasArtifact(phase string) bool {
	_, ok := e.Artifacts[phase]
	return ok
}
