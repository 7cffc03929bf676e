package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundedSet_EvictsOldestFirst(t *testing.T) {
	s := NewBoundedSet(3)
	s.Add("a")
	s.Add("b")
	s.Add("c")
	s.Add("d")

	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.True(t, s.Contains("d"))
}

func TestBoundedSet_AddIsIdempotent(t *testing.T) {
	s := NewBoundedSet(3)
	s.Add("a")
	s.Add("a")
	s.Add("a")
	assert.Equal(t, 1, s.Len())
}

func TestBoundedSet_RestoreKeepsNewestOnOverflow(t *testing.T) {
	items := make([]string, 10)
	for i := range items {
		items[i] = fmt.Sprintf("k%d", i)
	}
	s := NewBoundedSet(4)
	s.Restore(items)

	assert.Equal(t, 4, s.Len())
	assert.False(t, s.Contains("k0"))
	assert.True(t, s.Contains("k6"))
	assert.True(t, s.Contains("k9"))
}

func TestMoneyConversions(t *testing.T) {
	assert.Equal(t, int64(10_000_000), MicrosFromUnits(10))
	assert.InDelta(t, 10.5, UnitsFromMicros(10_500_000), 1e-9)

	// 2% of 100 units.
	assert.Equal(t, int64(2_000_000), PremiumFor(100_000_000, 200))
	// Floor division: 1 bps of 5 micros rounds to zero.
	assert.Equal(t, int64(0), PremiumFor(5, 1))

	assert.Equal(t, "100", FormatAmount(100_000_000))
	assert.Equal(t, "100.500000", FormatAmount(100_500_000))
}

func TestClampRateBps(t *testing.T) {
	assert.Equal(t, 0, ClampRateBps(-5))
	assert.Equal(t, 0, ClampRateBps(0))
	assert.Equal(t, 300, ClampRateBps(300))
	assert.Equal(t, MaxPremiumRateBps, ClampRateBps(MaxPremiumRateBps))
	assert.Equal(t, MaxPremiumRateBps, ClampRateBps(15000))
}
