package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	report FrequencyReport
	err    error
	gotCat Category
}

func (s *stubHistory) Frequency(ctx context.Context, cat Category, ev ParsedEvent) (FrequencyReport, error) {
	s.gotCat = cat
	return s.report, s.err
}

func goodHistory() *stubHistory {
	return &stubHistory{report: FrequencyReport{
		Frequency:   0.10,
		Periods:     90,
		SourceLabel: "test-data",
	}}
}

var fixedNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(h HistoryProvider) *Engine {
	e := NewEngine(NewCatalog(), h)
	e.SetClock(func() time.Time { return fixedNow })
	return e
}

func validRequest() CoverageRequest {
	return CoverageRequest{
		Description:    "ETH price falls more than 10 percent from current level",
		CoverageAmount: 100_000_000, // 100 units
		Deadline:       fixedNow.Add(7 * 24 * time.Hour).Unix(),
	}
}

func TestEvaluate_ApprovesParametricRequest(t *testing.T) {
	h := goodHistory()
	e := newTestEngine(h)

	out := e.Evaluate(context.Background(), validRequest())
	require.True(t, out.Approved, "reason: %s", out.Reason)

	// ceil(0.10 * 1.5 * 10000) = 1500 bps.
	assert.Equal(t, 1500, out.PremiumRateBps)
	assert.Equal(t, int64(15_000_000), out.PremiumAmount)
	assert.Equal(t, CategoryCryptoPrice, out.Category)
	assert.Equal(t, CategoryCryptoPrice, h.gotCat)
	assert.Equal(t, DirectionBelow, out.Event.Direction)
	assert.InDelta(t, 10.0, out.Event.Threshold, 1e-9)
}

func TestEvaluate_RejectsMissingThreshold(t *testing.T) {
	e := newTestEngine(goodHistory())
	req := validRequest()
	req.Description = "ETH goes down a lot soon"

	out := e.Evaluate(context.Background(), req)
	assert.False(t, out.Approved)
	assert.NotEmpty(t, out.Suggestion)
}

func TestEvaluate_RejectsSubjectiveDescriptions(t *testing.T) {
	e := newTestEngine(goodHistory())
	req := validRequest()
	req.Description = "I think the vibe drops below 10 percent positive sentiment"

	out := e.Evaluate(context.Background(), req)
	assert.False(t, out.Approved)
	assert.Contains(t, out.Reason, "subjective")
}

func TestEvaluate_RejectsScamPatterns(t *testing.T) {
	e := newTestEngine(goodHistory())
	req := validRequest()
	req.Description = "Guaranteed profit if ETH drops 10 percent, send funds now"

	out := e.Evaluate(context.Background(), req)
	assert.False(t, out.Approved)
	assert.Contains(t, out.Reason, "scam")
}

func TestEvaluate_DeadlineBoundaries(t *testing.T) {
	e := newTestEngine(goodHistory())

	tooSoon := validRequest()
	tooSoon.Deadline = fixedNow.Add(23 * time.Hour).Unix()
	assert.False(t, e.Evaluate(context.Background(), tooSoon).Approved)

	atFloor := validRequest()
	atFloor.Deadline = fixedNow.Add(24 * time.Hour).Unix()
	assert.True(t, e.Evaluate(context.Background(), atFloor).Approved)

	// A deadline set 24h out by an earlier clock reading stays admissible.
	withinGrace := validRequest()
	withinGrace.Deadline = fixedNow.Add(24*time.Hour - 30*time.Second).Unix()
	assert.True(t, e.Evaluate(context.Background(), withinGrace).Approved)

	pastGrace := validRequest()
	pastGrace.Deadline = fixedNow.Add(24*time.Hour - 2*time.Minute).Unix()
	assert.False(t, e.Evaluate(context.Background(), pastGrace).Approved)

	atCeiling := validRequest()
	atCeiling.Deadline = fixedNow.Add(90 * 24 * time.Hour).Unix()
	assert.True(t, e.Evaluate(context.Background(), atCeiling).Approved)

	tooFar := validRequest()
	tooFar.Deadline = fixedNow.Add(91 * 24 * time.Hour).Unix()
	assert.False(t, e.Evaluate(context.Background(), tooFar).Approved)
}

func TestEvaluate_CoverageFloor(t *testing.T) {
	e := newTestEngine(goodHistory())

	below := validRequest()
	below.CoverageAmount = 9_999_999
	assert.False(t, e.Evaluate(context.Background(), below).Approved)

	at := validRequest()
	at.CoverageAmount = 10_000_000
	assert.True(t, e.Evaluate(context.Background(), at).Approved)
}

func TestEvaluate_HistoryFailureFallsBackToBaseRate(t *testing.T) {
	h := &stubHistory{err: errors.New("api down")}
	e := newTestEngine(h)

	out := e.Evaluate(context.Background(), validRequest())
	require.True(t, out.Approved)
	assert.Equal(t, "synthetic-base-rate", out.SourceLabel)
	// ceil(0.12 * 1.5 * 10000) = 1800 bps for the crypto base rate.
	assert.Equal(t, 1800, out.PremiumRateBps)
}

func TestEvaluate_InsufficientHistoryRejects(t *testing.T) {
	h := &stubHistory{report: FrequencyReport{Frequency: 0.1, Periods: 12}}
	e := newTestEngine(h)

	out := e.Evaluate(context.Background(), validRequest())
	assert.False(t, out.Approved)
	assert.Contains(t, out.Reason, "history")
}

func TestEvaluate_RateFloorsAtOneBps(t *testing.T) {
	h := &stubHistory{report: FrequencyReport{Frequency: 0.000001, Periods: 365}}
	e := newTestEngine(h)

	out := e.Evaluate(context.Background(), validRequest())
	require.True(t, out.Approved)
	assert.Equal(t, 1, out.PremiumRateBps)
	assert.Contains(t, out.Warnings[0], "very low")
}

func TestEvaluate_HighRateWarnsWithoutRejecting(t *testing.T) {
	h := &stubHistory{report: FrequencyReport{Frequency: 0.40, Periods: 52}}
	e := newTestEngine(h)

	out := e.Evaluate(context.Background(), validRequest())
	require.True(t, out.Approved)
	assert.Equal(t, 6000, out.PremiumRateBps)
	require.NotEmpty(t, out.Warnings)
	assert.Contains(t, out.Warnings[0], "very high")
}

func TestEvaluate_DeterministicForSameInput(t *testing.T) {
	e := newTestEngine(goodHistory())
	req := validRequest()

	first := e.Evaluate(context.Background(), req)
	second := e.Evaluate(context.Background(), req)
	assert.Equal(t, first.PremiumRateBps, second.PremiumRateBps)
	assert.Equal(t, first.Category, second.Category)
}

func TestDetectCategory_ProductIDWins(t *testing.T) {
	e := newTestEngine(goodHistory())
	req := validRequest()
	req.ProductID = "rain-day"
	req.Description = "More than 5 mm of rain recorded in London"

	assert.Equal(t, CategoryWeather, e.detectCategory(req))
}

func TestDetectCategory_TieBreaksToCryptoPrice(t *testing.T) {
	e := newTestEngine(goodHistory())
	// No keywords at all: zero scores everywhere is a tie.
	req := CoverageRequest{Description: "reading above 5 units"}
	assert.Equal(t, CategoryCryptoPrice, e.detectCategory(req))
}

func TestDetectCategory_KeywordScores(t *testing.T) {
	e := newTestEngine(goodHistory())
	cases := map[string]Category{
		"gas spikes above 100 gwei":                     CategoryGasFee,
		"more than 5 mm of rain in a london storm":      CategoryWeather,
		"protocol tvl drops below 50 percent, defi apy": CategoryDefiProtocol,
		"bridge halt lasting over 4 hours, outage":      CategoryOnChainEvent,
	}
	for desc, want := range cases {
		req := CoverageRequest{Description: desc}
		assert.Equal(t, want, e.detectCategory(req), "for %q", desc)
	}
}

func TestParseEventDescription(t *testing.T) {
	ev, ok := ParseEventDescription("Temperature above 38 C recorded in Madrid before deadline")
	require.True(t, ok)
	assert.InDelta(t, 38.0, ev.Threshold, 1e-9)
	assert.Equal(t, DirectionAbove, ev.Direction)
	assert.Equal(t, "madrid", ev.City)

	_, ok = ParseEventDescription("something bad happens")
	assert.False(t, ok)
}

func TestSyntheticReport_ClearsDepthCheck(t *testing.T) {
	for cat := range map[Category]struct{}{
		CategoryWeather: {}, CategoryCryptoPrice: {}, CategoryGasFee: {},
		CategoryDefiProtocol: {}, CategoryOnChainEvent: {},
	} {
		r := SyntheticReport(cat)
		assert.GreaterOrEqual(t, r.Periods, MinHistoryPeriods)
		assert.True(t, r.Synthetic)
		assert.Greater(t, r.Frequency, 0.0)
	}
}

func TestCatalog_PickRoundRobinIsDeterministic(t *testing.T) {
	c := NewCatalog()
	n := len(c.List())
	require.Greater(t, n, 0)

	first := c.Pick(3)
	again := c.Pick(3)
	wrapped := c.Pick(3 + uint64(n))
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.ID, wrapped.ID)
	assert.NotEqual(t, c.Pick(0).ID, c.Pick(1).ID)
}

func TestCatalog_MatchFindsProductByKeyword(t *testing.T) {
	c := NewCatalog()
	p, ok := c.Match("worried about all this rain lately, my basement floods every storm")
	require.True(t, ok)
	assert.Equal(t, CategoryWeather, p.Category)

	_, ok = c.Match("nothing insurable here")
	assert.False(t, ok)
}
