package lifecycle

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/risk"
	"github.com/parapool/agent/internal/social"
)

type flatHistory struct{}

func (flatHistory) Frequency(context.Context, risk.Category, risk.ParsedEvent) (risk.FrequencyReport, error) {
	return risk.FrequencyReport{Frequency: 0.1, Periods: 52, SourceLabel: "fixture"}, nil
}

func testController(t *testing.T) *Controller {
	t.Helper()
	contracts := map[chain.Variant]common.Address{
		chain.VariantCurrent: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
	return &Controller{
		reg:    registry.New(),
		engine: risk.NewEngine(risk.NewCatalog(), flatHistory{}),
		artifacts: social.NewArtifactBuilder(8453,
			common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), contracts, ""),
		now: func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
		log: slog.Default(),
	}
}

func livePool(id uint64) *registry.PoolEntry {
	return &registry.PoolEntry{
		PoolID:         id,
		Variant:        chain.VariantCurrent,
		ProductID:      "gas-spike",
		Description:    "Base fee above 50 gwei sustained for one hour before deadline",
		CoverageAmount: 100_000_000,
		PremiumAmount:  3_000_000,
		PremiumRateBps: 300,
		Deadline:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Status:         chain.PhaseOpen,
		Source:         registry.SourceAgent,
	}
}

func TestEntryFromView(t *testing.T) {
	view := &chain.PoolView{
		PoolID:          9,
		Variant:         chain.VariantLegacy,
		Description:     "More than 5 mm of rain recorded in London before deadline",
		EvidenceURL:     "https://wttr.in/London?format=j1",
		CoverageAmount:  registry.BigFromMicros(200_000_000),
		PremiumAmount:   registry.BigFromMicros(6_000_000),
		Deadline:        1700000000,
		DepositDeadline: 1699000000,
		Phase:           chain.PhaseActive,
	}
	e := entryFromView(view)
	assert.Equal(t, uint64(9), e.PoolID)
	assert.Equal(t, chain.VariantLegacy, e.Variant)
	assert.Equal(t, "unknown", e.ProductID)
	assert.EqualValues(t, 200_000_000, e.CoverageAmount)
	assert.Equal(t, 300, e.PremiumRateBps)
	assert.Equal(t, registry.SourceReconciled, e.Source)
	assert.Nil(t, e.ClaimApproved, "unresolved pools carry no claim outcome")
}

func TestEntryFromViewResolvedCarriesClaim(t *testing.T) {
	view := &chain.PoolView{
		PoolID:         3,
		Variant:        chain.VariantCurrent,
		CoverageAmount: registry.BigFromMicros(50_000_000),
		PremiumAmount:  registry.BigFromMicros(1_000_000),
		Phase:          chain.PhaseResolved,
		ClaimApproved:  true,
	}
	e := entryFromView(view)
	require.NotNil(t, e.ClaimApproved)
	assert.True(t, *e.ClaimApproved)
}

func TestEntryFromViewZeroCoverage(t *testing.T) {
	view := &chain.PoolView{
		CoverageAmount: big.NewInt(0),
		PremiumAmount:  big.NewInt(0),
		Phase:          chain.PhaseOpen,
	}
	assert.Equal(t, 0, entryFromView(view).PremiumRateBps)
}

func TestRequestFromProduct(t *testing.T) {
	c := testController(t)
	p, ok := c.engine.Catalog().Get("gas-spike")
	require.True(t, ok)

	req := c.requestFromProduct(p)
	assert.Equal(t, "gas-spike", req.ProductID)
	assert.Equal(t, p.DescriptionModel, req.Description)
	assert.Equal(t, p.EvidenceURL, req.EvidenceURL)

	// Coverage a fifth of the way up the product range.
	wantUnits := p.MinCoverage + (p.MaxCoverage-p.MinCoverage)/5
	assert.Equal(t, registry.MicrosFromUnits(wantUnits), req.CoverageAmount)

	// Deadline at the midpoint of the allowed window.
	days := (p.MinDeadlineDays + p.MaxDeadlineDays) / 2
	want := c.now().Add(time.Duration(days) * 24 * time.Hour).Unix()
	assert.Equal(t, want, req.Deadline)
}

func TestMentionReplyClassification(t *testing.T) {
	c := testController(t)
	require.NoError(t, c.reg.Add(livePool(7)))

	status := c.mentionReply("what's the status of pool #7?")
	assert.Contains(t, status, "Pool #7")
	assert.Contains(t, status, "gwei")

	summary := c.mentionReply("status update please")
	assert.Contains(t, summary, "1 pools")

	catalog := c.mentionReply("what products do you offer?")
	assert.Contains(t, catalog, "Coverage catalog")
	assert.Contains(t, catalog, "Gas Spike Cover")

	help := c.mentionReply("help me understand this")
	assert.Contains(t, help, "parametric")

	assert.Empty(t, c.mentionReply("nice weather today, isn't it"))
}

func TestOpportunityReplyPrefersLivePool(t *testing.T) {
	c := testController(t)
	require.NoError(t, c.reg.Add(livePool(12)))

	reply := c.opportunityReply("gas-spike")
	assert.Contains(t, reply, "#12")
	assert.Contains(t, reply, "300 bps")
	assert.Contains(t, reply, "https://app.parapool.xyz")
}

func TestOpportunityReplyFallsBackToPitch(t *testing.T) {
	c := testController(t)

	reply := c.opportunityReply("rain-day")
	assert.Contains(t, reply, "Rainy Day Cover")
	assert.NotContains(t, reply, "#")

	assert.Empty(t, c.opportunityReply("no-such-product"))
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "claim", outcomeLabel(true))
	assert.Equal(t, "no_claim", outcomeLabel(false))
}
