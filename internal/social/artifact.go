package social

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/registry"
)

// Intents a published artifact can carry.
const (
	IntentFundPremium      = "fund_premium"
	IntentProvideLiquidity = "provide_liquidity"
	IntentWithdraw         = "withdraw"
)

const (
	protocolID      = "parapool"
	protocolVersion = "1"
)

// CallStep is one wallet-ready call of the machine-execution payload.
type CallStep struct {
	Step        int                    `json:"step"`
	Action      string                 `json:"action"`
	To          string                 `json:"to"`
	Data        string                 `json:"data"`
	Value       string                 `json:"value"`
	Description string                 `json:"description"`
	Decoded     map[string]interface{} `json:"decoded"`
}

// RiskParams are the payload's pricing disclosure.
type RiskParams struct {
	EventFrequency float64 `json:"event_frequency"`
	EVPer100       float64 `json:"ev_per_100"` // provider expected value per 100 units
}

// PoolParams describe the pool the payload acts on.
type PoolParams struct {
	PoolID          uint64 `json:"pool_id"`
	Variant         string `json:"variant"`
	Description     string `json:"description"`
	CoverageAmount  string `json:"coverage_amount"`
	PremiumAmount   string `json:"premium_amount"`
	PremiumRateBps  int    `json:"premium_rate_bps"`
	Deadline        int64  `json:"deadline"`
	DepositDeadline int64  `json:"deposit_deadline"`
	EvidenceURL     string `json:"evidence_url"`
}

// Payload is the machine-to-machine block embedded in every phase-change
// artifact. Wallet-agents execute Calls; human-assisted agents follow
// DeepLink.
type Payload struct {
	Protocol  string            `json:"protocol"`
	Version   string            `json:"version"`
	ChainID   int64             `json:"chain_id"`
	Intent    string            `json:"intent"`
	Pool      PoolParams        `json:"pool"`
	Contracts map[string]string `json:"contracts"`
	Risk      RiskParams        `json:"risk"`
	Calls     []CallStep        `json:"calls"`
	DeepLink  string            `json:"deep_link"`
}

// ArtifactBuilder renders payloads, short posts and articles for a pool.
type ArtifactBuilder struct {
	chainID    int64
	stablecoin common.Address
	appBaseURL string
	contracts  map[chain.Variant]common.Address
}

// NewArtifactBuilder wires the builder with the deployed addresses.
func NewArtifactBuilder(chainID int64, stablecoin common.Address, contracts map[chain.Variant]common.Address, appBaseURL string) *ArtifactBuilder {
	if appBaseURL == "" {
		appBaseURL = "https://app.parapool.xyz"
	}
	return &ArtifactBuilder{
		chainID:    chainID,
		stablecoin: stablecoin,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		contracts:  contracts,
	}
}

// BuildPayload assembles the machine-execution payload for an intent.
func (b *ArtifactBuilder) BuildPayload(e registry.PoolEntry, intent string) (*Payload, error) {
	poolAddr, ok := b.contracts[e.Variant]
	if !ok {
		return nil, fmt.Errorf("no contract address for variant %s", e.Variant)
	}

	p := &Payload{
		Protocol: protocolID,
		Version:  protocolVersion,
		ChainID:  b.chainID,
		Intent:   intent,
		Pool: PoolParams{
			PoolID:          e.PoolID,
			Variant:         string(e.Variant),
			Description:     e.Description,
			CoverageAmount:  registry.FormatAmount(e.CoverageAmount),
			PremiumAmount:   registry.FormatAmount(e.PremiumAmount),
			PremiumRateBps:  e.PremiumRateBps,
			Deadline:        e.Deadline,
			DepositDeadline: e.DepositDeadline,
			EvidenceURL:     e.EvidenceURL,
		},
		Contracts: map[string]string{
			"pool":       poolAddr.Hex(),
			"stablecoin": b.stablecoin.Hex(),
		},
		Risk: RiskParams{
			EventFrequency: e.EventProbability,
			EVPer100:       providerEVPer100(e),
		},
		DeepLink: b.deepLink(e, intent),
	}

	calls, err := b.buildCalls(e, intent, poolAddr)
	if err != nil {
		return nil, err
	}
	p.Calls = calls
	return p, nil
}

func (b *ArtifactBuilder) buildCalls(e registry.PoolEntry, intent string, poolAddr common.Address) ([]CallStep, error) {
	approve := func(amount int64, what string) (CallStep, error) {
		data, err := chain.EncodeApprove(poolAddr, registry.BigFromMicros(amount))
		if err != nil {
			return CallStep{}, err
		}
		return CallStep{
			Action:      "approve",
			To:          b.stablecoin.Hex(),
			Data:        data,
			Value:       "0",
			Description: fmt.Sprintf("Approve the pool contract to spend %s for %s", registry.FormatAmount(amount), what),
			Decoded: map[string]interface{}{
				"method":  "approve",
				"spender": poolAddr.Hex(),
				"amount":  registry.FormatAmount(amount),
			},
		}, nil
	}

	var steps []CallStep
	switch intent {
	case IntentFundPremium:
		a, err := approve(e.PremiumAmount, "the premium")
		if err != nil {
			return nil, err
		}
		data, err := chain.EncodeFundPremium(e.PoolID)
		if err != nil {
			return nil, err
		}
		steps = []CallStep{a, {
			Action:      "fund_premium",
			To:          poolAddr.Hex(),
			Data:        data,
			Value:       "0",
			Description: fmt.Sprintf("Fund the %s premium for pool %d", registry.FormatAmount(e.PremiumAmount), e.PoolID),
			Decoded:     map[string]interface{}{"method": "fundPremium", "pool_id": e.PoolID},
		}}
	case IntentProvideLiquidity:
		a, err := approve(e.CoverageAmount, "collateral")
		if err != nil {
			return nil, err
		}
		data, err := chain.EncodeJoinPool(e.PoolID, registry.BigFromMicros(e.CoverageAmount))
		if err != nil {
			return nil, err
		}
		steps = []CallStep{a, {
			Action:      "join_pool",
			To:          poolAddr.Hex(),
			Data:        data,
			Value:       "0",
			Description: fmt.Sprintf("Provide up to %s collateral to pool %d", registry.FormatAmount(e.CoverageAmount), e.PoolID),
			Decoded: map[string]interface{}{
				"method":  "joinPool",
				"pool_id": e.PoolID,
				"amount":  registry.FormatAmount(e.CoverageAmount),
			},
		}}
	case IntentWithdraw:
		data, err := chain.EncodeWithdraw(e.PoolID)
		if err != nil {
			return nil, err
		}
		steps = []CallStep{{
			Action:      "withdraw",
			To:          poolAddr.Hex(),
			Data:        data,
			Value:       "0",
			Description: fmt.Sprintf("Withdraw your share from resolved pool %d", e.PoolID),
			Decoded:     map[string]interface{}{"method": "withdraw", "pool_id": e.PoolID},
		}}
	default:
		return nil, fmt.Errorf("unknown intent %q", intent)
	}
	for i := range steps {
		steps[i].Step = i + 1
	}
	return steps, nil
}

// deepLink builds the human path. The action query param mirrors the
// intent; provide_liquidity maps to provide_collateral in the UI.
func (b *ArtifactBuilder) deepLink(e registry.PoolEntry, intent string) string {
	action := intent
	amount := ""
	switch intent {
	case IntentProvideLiquidity:
		action = "provide_collateral"
		amount = registry.FormatAmount(e.CoverageAmount)
	case IntentFundPremium:
		amount = registry.FormatAmount(e.PremiumAmount)
	}
	link := fmt.Sprintf("%s/pool/%s/%d?action=%s", b.appBaseURL, e.Variant, e.PoolID, action)
	if amount != "" {
		link += "&amount=" + amount
	}
	return link
}

// providerEVPer100 is the collateral provider's expected value per 100
// units staked: premium share (after the 3% protocol fee) against the
// expected payout.
func providerEVPer100(e registry.PoolEntry) float64 {
	rate := float64(e.PremiumRateBps) / 10000
	return 100 * (rate*(1-e.EventProbability)*0.97 - e.EventProbability)
}

// ShortPost renders the ≤500-char announcement for a phase.
func (b *ArtifactBuilder) ShortPost(e registry.PoolEntry, p *Payload, phase string) string {
	var headline string
	switch phase {
	case registry.PhaseArtifactCreated:
		headline = fmt.Sprintf("New coverage pool #%d: %s", e.PoolID, e.Description)
	case registry.PhaseArtifactCollateral:
		headline = fmt.Sprintf("Pool #%d premium funded. Collateral window open until %d.", e.PoolID, e.DepositDeadline)
	case registry.PhaseArtifactActivated:
		headline = fmt.Sprintf("Pool #%d fully collateralized and active.", e.PoolID)
	case registry.PhaseArtifactResolution:
		outcome := "claim denied"
		if e.ClaimApproved != nil && *e.ClaimApproved {
			outcome = "claim approved"
		}
		headline = fmt.Sprintf("Pool #%d resolved: %s. Withdrawals open.", e.PoolID, outcome)
	default:
		headline = fmt.Sprintf("Pool #%d update", e.PoolID)
	}
	body := fmt.Sprintf("%s\nCoverage %s, premium %s (%d bps), event freq %.1f%%.\n%s",
		headline,
		registry.FormatAmount(e.CoverageAmount), registry.FormatAmount(e.PremiumAmount),
		e.PremiumRateBps, e.EventProbability*100, p.DeepLink)
	if len(body) > MaxPostLength {
		body = body[:MaxPostLength]
	}
	return body
}

// ArticleBody renders the long-form artifact: the human summary plus the
// full payload JSON in a fenced block for wallet-agents.
func (b *ArtifactBuilder) ArticleBody(e registry.PoolEntry, p *Payload) (string, error) {
	blob, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Pool #%d (%s)\n\n%s\n\n", e.PoolID, e.Variant, e.Description)
	fmt.Fprintf(&sb, "- Coverage: %s\n- Premium: %s (%d bps)\n- Deadline: %d\n- Evidence: %s\n\n",
		registry.FormatAmount(e.CoverageAmount), registry.FormatAmount(e.PremiumAmount),
		e.PremiumRateBps, e.Deadline, e.EvidenceURL)
	fmt.Fprintf(&sb, "Machine-execution payload:\n\n```json\n%s\n```\n", string(blob))
	return sb.String(), nil
}
