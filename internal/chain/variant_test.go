package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePhase_LegacyCodes(t *testing.T) {
	cases := map[uint8]Phase{
		0: PhasePending,
		1: PhaseOpen,
		2: PhaseActive,
		3: PhaseResolved,
		4: PhaseCancelled,
	}
	for code, want := range cases {
		got, err := DecodePhase(VariantLegacy, code)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodePhase_CurrentCodes(t *testing.T) {
	cases := map[uint8]Phase{
		0: PhaseOpen,
		1: PhaseActive,
		2: PhaseResolved,
		3: PhaseCancelled,
	}
	for code, want := range cases {
		got, err := DecodePhase(VariantCurrent, code)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodePhase_CurrentHasNoPending(t *testing.T) {
	// Code 4 exists only on the legacy contract.
	_, err := DecodePhase(VariantCurrent, 4)
	assert.Error(t, err)

	// Code 0 means different phases on the two generations.
	legacy, err := DecodePhase(VariantLegacy, 0)
	require.NoError(t, err)
	current, err := DecodePhase(VariantCurrent, 0)
	require.NoError(t, err)
	assert.Equal(t, PhasePending, legacy)
	assert.Equal(t, PhaseOpen, current)
}

func TestPhasePredicates(t *testing.T) {
	assert.True(t, PhasePending.IsLive())
	assert.True(t, PhaseOpen.IsLive())
	assert.True(t, PhaseActive.IsLive())
	assert.False(t, PhaseResolved.IsLive())
	assert.False(t, PhaseCancelled.IsLive())

	assert.True(t, PhaseResolved.IsTerminal())
	assert.True(t, PhaseCancelled.IsTerminal())
	assert.False(t, PhaseActive.IsTerminal())
}

func TestCanTransition_ForwardOnly(t *testing.T) {
	assert.True(t, PhasePending.CanTransition(PhaseOpen))
	assert.True(t, PhaseOpen.CanTransition(PhaseActive))
	assert.True(t, PhaseActive.CanTransition(PhaseResolved))
	assert.True(t, PhaseOpen.CanTransition(PhaseCancelled))

	// Backwards and out-of-terminal moves are illegal.
	assert.False(t, PhaseOpen.CanTransition(PhasePending))
	assert.False(t, PhaseActive.CanTransition(PhaseOpen))
	assert.False(t, PhaseResolved.CanTransition(PhaseActive))
	assert.False(t, PhaseCancelled.CanTransition(PhaseOpen))
	assert.False(t, PhaseActive.CanTransition(PhaseCancelled))
}

func TestCanTransition_MultiHopObservations(t *testing.T) {
	// The chain can advance a pool several phases between two reads.
	assert.True(t, PhasePending.CanTransition(PhaseActive))
	assert.True(t, PhasePending.CanTransition(PhaseResolved))
	assert.True(t, PhaseOpen.CanTransition(PhaseResolved))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("connection reset by peer")))
	assert.True(t, IsTransient(fmt.Errorf("rpc: 429 too many requests")))
	assert.False(t, IsTransient(errors.New("execution reverted: not oracle")))
	assert.False(t, IsTransient(nil))
}

func TestIsRevert(t *testing.T) {
	assert.True(t, IsRevert(errors.New("execution reverted: pool not active")))
	assert.True(t, IsRevert(fmt.Errorf("call: %w", errors.New("execution reverted"))))
	assert.False(t, IsRevert(errors.New("connection refused")))
}
