// Package chain wraps the two coverage-pool contract generations behind a
// typed client. ABI encoding, status-code translation, nonce ordering and
// retry policy all live here; callers see variants and phases, never raw
// status numbers.
package chain

import "fmt"

// Variant tags which contract generation a pool belongs to. The two
// generations expose the same logical interface with different status
// encodings and a different creation flow.
type Variant string

const (
	VariantLegacy  Variant = "legacy"
	VariantCurrent Variant = "current"
)

// Phase is the canonical pool lifecycle phase, independent of how either
// contract numbers it.
type Phase string

const (
	PhasePending   Phase = "PENDING"   // Legacy only: created, premium not yet funded
	PhaseOpen      Phase = "OPEN"      // premium funded, collecting collateral
	PhaseActive    Phase = "ACTIVE"    // fully collateralized, covered period running
	PhaseResolved  Phase = "RESOLVED"  // oracle decided
	PhaseCancelled Phase = "CANCELLED" // underfunded past deposit deadline
)

// Legacy contract: 0=Pending 1=Open 2=Active 3=Resolved 4=Cancelled.
// Current contract: 0=Open 1=Active 2=Resolved 3=Cancelled.
var (
	legacyCodes = map[uint8]Phase{
		0: PhasePending,
		1: PhaseOpen,
		2: PhaseActive,
		3: PhaseResolved,
		4: PhaseCancelled,
	}
	currentCodes = map[uint8]Phase{
		0: PhaseOpen,
		1: PhaseActive,
		2: PhaseResolved,
		3: PhaseCancelled,
	}
)

// DecodePhase translates a raw on-chain status code for the given variant.
func DecodePhase(v Variant, code uint8) (Phase, error) {
	var table map[uint8]Phase
	switch v {
	case VariantLegacy:
		table = legacyCodes
	case VariantCurrent:
		table = currentCodes
	default:
		return "", fmt.Errorf("unknown contract variant %q", v)
	}
	p, ok := table[code]
	if !ok {
		return "", fmt.Errorf("variant %s has no status code %d", v, code)
	}
	return p, nil
}

// EncodePhase is the inverse of DecodePhase. Legacy-only phases are
// unrepresentable on Current.
func EncodePhase(v Variant, p Phase) (uint8, error) {
	var table map[uint8]Phase
	switch v {
	case VariantLegacy:
		table = legacyCodes
	case VariantCurrent:
		table = currentCodes
	default:
		return 0, fmt.Errorf("unknown contract variant %q", v)
	}
	for code, phase := range table {
		if phase == p {
			return code, nil
		}
	}
	return 0, fmt.Errorf("phase %s not representable on variant %s", p, v)
}

// IsLive reports whether a pool in this phase still needs monitoring.
func (p Phase) IsLive() bool {
	return p == PhasePending || p == PhaseOpen || p == PhaseActive
}

// IsTerminal reports whether the phase can never change again.
func (p Phase) IsTerminal() bool {
	return p == PhaseResolved || p == PhaseCancelled
}

func (p Phase) IsPending() bool  { return p == PhasePending }
func (p Phase) IsOpen() bool     { return p == PhaseOpen }
func (p Phase) IsActive() bool   { return p == PhaseActive }
func (p Phase) IsResolved() bool { return p == PhaseResolved }

// CanTransition reports whether the pool FSM permits moving from p to
// next, directly or through intermediate phases. Multi-hop moves happen
// whenever the chain advances a pool more than once between two reads.
// Terminal phases admit no successor.
func (p Phase) CanTransition(next Phase) bool {
	switch p {
	case PhasePending:
		return next == PhaseOpen || next == PhaseActive || next == PhaseResolved || next == PhaseCancelled
	case PhaseOpen:
		return next == PhaseActive || next == PhaseResolved || next == PhaseCancelled
	case PhaseActive:
		return next == PhaseResolved
	default:
		return false
	}
}
