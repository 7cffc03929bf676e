package risk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGasFrequency_TiersByThreshold(t *testing.T) {
	cases := []struct {
		gwei float64
		want float64
	}{
		{250, 0.01},
		{200, 0.01},
		{100, 0.03},
		{50, 0.08},
		{30, 0.20},
		{10, 0.40},
	}
	for _, c := range cases {
		r := gasFrequency(ParsedEvent{Threshold: c.gwei})
		assert.InDelta(t, c.want, r.Frequency, 1e-9, "threshold %.0f", c.gwei)
		assert.GreaterOrEqual(t, r.Periods, MinHistoryPeriods)
	}
}

func TestDefiFrequency_ExtremeMovesAreRarer(t *testing.T) {
	big := defiFrequency(ParsedEvent{Threshold: 60})
	small := defiFrequency(ParsedEvent{Threshold: 5})
	assert.Less(t, big.Frequency, small.Frequency)
}

func TestWeatherFrequency_KnownCity(t *testing.T) {
	r, err := weatherFrequency(ParsedEvent{City: "london"})
	require.NoError(t, err)
	assert.InDelta(t, 0.40, r.Frequency, 1e-9)
	assert.GreaterOrEqual(t, r.Periods, MinHistoryPeriods)
}

func TestDetectAsset(t *testing.T) {
	assert.Equal(t, "bitcoin", detectAsset("BTC rallies more than 10 percent"))
	assert.Equal(t, "solana", detectAsset("sol drops 20%"))
	assert.Equal(t, "usd-coin", detectAsset("USDC depegs below 0.99 usd"))
	assert.Equal(t, "ethereum", detectAsset("price falls 10 percent"))
}

func TestCryptoFrequency_CountsThresholdCrossings(t *testing.T) {
	// 91 daily closes: flat except one sharp weekly drop.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prices := "["
		for i := 0; i < 91; i++ {
			p := 1000.0
			if i >= 40 && i < 47 {
				p = 850.0 // one week 15% below the prior level
			}
			if i > 0 {
				prices += ","
			}
			prices += fmt.Sprintf("[%d,%g]", i, p)
		}
		prices += "]"
		fmt.Fprintf(w, `{"prices":%s}`, prices)
	}))
	defer srv.Close()

	h := NewLiveHistory("", srv.URL)
	r, err := h.cryptoFrequency(context.Background(),
		ParsedEvent{Threshold: 10, Direction: DirectionBelow, Text: "eth falls 10 percent"})
	require.NoError(t, err)
	assert.Greater(t, r.Occurrences, 0)
	assert.GreaterOrEqual(t, r.Periods, MinHistoryPeriods)
	assert.Greater(t, r.Frequency, 0.0)
	assert.False(t, r.Synthetic)
}

func TestCryptoFrequency_APIDownReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewLiveHistory("", srv.URL)
	_, err := h.cryptoFrequency(context.Background(),
		ParsedEvent{Threshold: 10, Text: "eth falls 10 percent"})
	assert.Error(t, err)
}
