package registry

import (
	"fmt"
	"math/big"
)

// StablecoinDecimals is the fixed decimal count of the settlement token.
const StablecoinDecimals = 6

const microsPerUnit = 1_000_000

// MicrosFromBig converts an on-chain token amount to registry micros.
func MicrosFromBig(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	return v.Int64()
}

// BigFromMicros converts registry micros back to an on-chain amount.
func BigFromMicros(m int64) *big.Int {
	return big.NewInt(m)
}

// MicrosFromUnits converts whole stablecoin units to micros.
func MicrosFromUnits(units float64) int64 {
	return int64(units * microsPerUnit)
}

// UnitsFromMicros converts micros to whole stablecoin units.
func UnitsFromMicros(m int64) float64 {
	return float64(m) / microsPerUnit
}

// MaxPremiumRateBps caps the written rate at 100% of coverage. The risk
// engine reports the uncapped actuarial rate; every creation path clamps
// before the number reaches the chain or the registry.
const MaxPremiumRateBps = 10000

// ClampRateBps bounds a rate to [0, MaxPremiumRateBps].
func ClampRateBps(bps int) int {
	if bps > MaxPremiumRateBps {
		return MaxPremiumRateBps
	}
	if bps < 0 {
		return 0
	}
	return bps
}

// PremiumFor computes the premium in micros for a coverage amount and a
// rate in basis points, floored to the token's precision.
func PremiumFor(coverageMicros int64, rateBps int) int64 {
	return coverageMicros * int64(rateBps) / 10000
}

// FormatAmount renders micros as a human-readable stablecoin amount.
func FormatAmount(m int64) string {
	whole := m / microsPerUnit
	frac := m % microsPerUnit
	if frac < 0 {
		frac = -frac
	}
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	return fmt.Sprintf("%d.%06d", whole, frac)
}
