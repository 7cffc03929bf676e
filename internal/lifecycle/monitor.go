package lifecycle

import (
	"context"

	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/social"
)

// monitorTransitions re-reads every live pool, applies observed phase
// changes to the registry, publishes the artifacts those changes owe, and
// cancels underfunded pools whose deposit window has closed.
func (c *Controller) monitorTransitions(ctx context.Context) {
	now := c.now().Unix()
	for _, e := range c.reg.Live() {
		view, err := c.cache.GetPool(ctx, e.Variant, e.PoolID)
		if err != nil {
			c.log.Warn("pool read failed", "variant", e.Variant, "pool", e.PoolID, "err", err)
			continue
		}

		if view.Phase != e.Status {
			c.applyTransition(ctx, e, view.Phase)
			// A pool can land in Open already past its deposit window;
			// the cancel check runs in the same pass, not next cycle.
			updated, ok := c.reg.Get(e.Variant, e.PoolID)
			if !ok {
				continue
			}
			e = updated
		}

		c.maybeCancelUnderfunded(ctx, e, now)
	}
}

func (c *Controller) applyTransition(ctx context.Context, e registry.PoolEntry, to chain.Phase) {
	from := e.Status
	if err := c.reg.Update(e.Variant, e.PoolID, func(p *registry.PoolEntry) {
		p.Status = to
	}); err != nil {
		c.log.Error("transition rejected", "variant", e.Variant, "pool", e.PoolID,
			"from", from, "to", to, "err", err)
		return
	}
	c.metrics.Transitions.WithLabelValues(string(e.Variant), string(from), string(to)).Inc()
	c.log.Info("pool transitioned", "variant", e.Variant, "pool", e.PoolID, "from", from, "to", to)

	updated, ok := c.reg.Get(e.Variant, e.PoolID)
	if !ok {
		return
	}
	switch {
	case to.IsOpen():
		// Legacy premium landed; call for collateral providers.
		c.publishArtifact(ctx, updated, social.IntentProvideLiquidity, registry.PhaseArtifactCollateral)
	case to.IsActive():
		c.publishArtifact(ctx, updated, social.IntentProvideLiquidity, registry.PhaseArtifactActivated)
	case to.IsResolved():
		// Resolved by someone else between reads. Record the chain's
		// verdict and publish the closing artifact.
		c.adoptExternalResolution(ctx, updated)
	}
}

// adoptExternalResolution copies a resolution the agent did not write
// into the registry. The chain's claim flag wins.
func (c *Controller) adoptExternalResolution(ctx context.Context, e registry.PoolEntry) {
	view, err := c.cache.GetPool(ctx, e.Variant, e.PoolID)
	if err != nil {
		c.log.Warn("resolved pool re-read failed", "pool", e.PoolID, "err", err)
		return
	}
	claim := view.ClaimApproved
	if err := c.reg.Update(e.Variant, e.PoolID, func(p *registry.PoolEntry) {
		if p.ClaimApproved == nil {
			p.ClaimApproved = &claim
		}
	}); err != nil {
		c.log.Error("external resolution record failed", "pool", e.PoolID, "err", err)
		return
	}
	c.metrics.Resolutions.WithLabelValues(outcomeLabel(claim), "external").Inc()
	if updated, ok := c.reg.Get(e.Variant, e.PoolID); ok {
		c.publishArtifact(ctx, updated, social.IntentWithdraw, registry.PhaseArtifactResolution)
	}
}

// maybeCancelUnderfunded runs the permissionless cancelAndRefund path:
// the deposit window has closed and the pool never reached its funding
// bar. The accounting read decides; the contract re-checks on chain.
func (c *Controller) maybeCancelUnderfunded(ctx context.Context, e registry.PoolEntry, now int64) {
	if c.cfg.SocialOnly {
		return
	}
	if !e.PastDepositWindow(now) {
		return
	}
	var underfunded bool
	switch {
	case e.Status.IsPending():
		// Legacy pool still waiting on the insured's premium.
		acct, err := c.client.GetPoolAccounting(ctx, e.Variant, e.PoolID)
		if err != nil {
			c.log.Warn("accounting read failed", "pool", e.PoolID, "err", err)
			return
		}
		underfunded = registry.MicrosFromBig(acct.PremiumPaid) < e.PremiumAmount
	case e.Status.IsOpen():
		acct, err := c.client.GetPoolAccounting(ctx, e.Variant, e.PoolID)
		if err != nil {
			c.log.Warn("accounting read failed", "pool", e.PoolID, "err", err)
			return
		}
		underfunded = registry.MicrosFromBig(acct.Collateral) < e.CoverageAmount
	default:
		return
	}
	if !underfunded {
		return
	}

	tx, err := c.client.CancelAndRefund(ctx, e.Variant, e.PoolID)
	if err != nil {
		c.metrics.ChainWrites.WithLabelValues("cancelAndRefund", "error").Inc()
		c.log.Error("cancel failed", "variant", e.Variant, "pool", e.PoolID, "err", err)
		return
	}
	c.metrics.ChainWrites.WithLabelValues("cancelAndRefund", "ok").Inc()
	c.cache.Invalidate(e.Variant, e.PoolID)
	if err := c.reg.Update(e.Variant, e.PoolID, func(p *registry.PoolEntry) {
		p.Status = chain.PhaseCancelled
		p.ResolutionTxHash = tx.Hex()
	}); err != nil {
		c.log.Error("cancel record failed", "pool", e.PoolID, "err", err)
		return
	}
	c.log.Info("underfunded pool cancelled", "variant", e.Variant, "pool", e.PoolID, "tx", tx.Hex())
}

func outcomeLabel(claim bool) string {
	if claim {
		return "claim"
	}
	return "no_claim"
}
