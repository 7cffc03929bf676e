package lifecycle

import (
	"context"
	"time"

	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/risk"
	"github.com/parapool/agent/internal/social"
)

// maybeCreatePool runs the gated creation step: at most one pool per
// heartbeat, only when the cooldown has elapsed, the live book has room,
// creation is not paused, and the round-robin product actually prices.
func (c *Controller) maybeCreatePool(ctx context.Context, cycle uint64) {
	switch {
	case c.cfg.SocialOnly, c.cfg.PauseCreation:
		return
	case !c.client.Configured(c.mode):
		return
	case c.reg.CyclesSinceCreation() < uint64(c.cfg.CreationCooldown):
		c.log.Debug("creation cooldown active", "since", c.reg.CyclesSinceCreation())
		return
	case c.reg.LiveCount() >= c.cfg.MaxLivePools:
		c.log.Info("live pool cap reached, creation skipped", "live", c.reg.LiveCount())
		return
	}

	product := c.engine.Catalog().Pick(cycle)
	if product == nil {
		return
	}
	req := c.requestFromProduct(product)
	eval := c.engine.Evaluate(ctx, req)
	if !eval.Approved {
		c.log.Warn("synthesized request rejected, no pool this cycle",
			"product", product.ID, "reason", eval.Reason)
		return
	}

	bps := registry.ClampRateBps(eval.PremiumRateBps)
	premium := registry.PremiumFor(req.CoverageAmount, bps)

	id, tx, err := c.client.CreatePool(ctx, c.mode, chain.CreateParams{
		Description:    req.Description,
		EvidenceURL:    req.EvidenceURL,
		CoverageAmount: registry.BigFromMicros(req.CoverageAmount),
		PremiumAmount:  registry.BigFromMicros(premium),
		Deadline:       req.Deadline,
	})
	if err != nil {
		c.metrics.ChainWrites.WithLabelValues("createPool", "error").Inc()
		c.log.Error("pool creation failed", "product", product.ID, "err", err)
		return
	}
	c.metrics.ChainWrites.WithLabelValues("createPool", "ok").Inc()

	initial := chain.PhasePending
	if c.mode == chain.VariantCurrent {
		// createAndFund pays the premium in the same transaction.
		initial = chain.PhaseOpen
	}
	entry := &registry.PoolEntry{
		PoolID:           id,
		Variant:          c.mode,
		ProductID:        product.ID,
		Description:      req.Description,
		EvidenceURL:      req.EvidenceURL,
		CoverageAmount:   req.CoverageAmount,
		PremiumAmount:    premium,
		PremiumRateBps:   bps,
		Deadline:         req.Deadline,
		DepositDeadline:  req.Deadline - chain.DepositWindow,
		EventProbability: eval.Frequency,
		Status:           initial,
		CreationTxHash:   tx.Hex(),
		Source:           registry.SourceAgent,
		CreatedAtCycle:   cycle,
	}
	if err := c.reg.Add(entry); err != nil {
		c.log.Error("created pool not registered", "pool", id, "err", err)
		return
	}
	c.reg.MarkPoolCreated(cycle)
	c.log.Info("pool created", "variant", c.mode, "pool", id, "product", product.ID,
		"coverage", registry.FormatAmount(req.CoverageAmount), "bps", bps, "tx", tx.Hex())

	intent := social.IntentFundPremium
	if c.mode == chain.VariantCurrent {
		intent = social.IntentProvideLiquidity
	}
	c.publishArtifact(ctx, *entry, intent, registry.PhaseArtifactCreated)
}

// requestFromProduct synthesizes a coverage request from a catalog
// product: coverage a fifth of the way up the range, deadline at the
// midpoint of the allowed window.
func (c *Controller) requestFromProduct(p *risk.Product) risk.CoverageRequest {
	units := p.MinCoverage + (p.MaxCoverage-p.MinCoverage)/5
	days := (p.MinDeadlineDays + p.MaxDeadlineDays) / 2
	return risk.CoverageRequest{
		ProductID:      p.ID,
		Description:    p.DescriptionModel,
		CoverageAmount: registry.MicrosFromUnits(units),
		Deadline:       c.now().Add(time.Duration(days) * 24 * time.Hour).Unix(),
		EvidenceURL:    p.EvidenceURL,
	}
}
