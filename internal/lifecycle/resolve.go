package lifecycle

import (
	"context"

	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/social"
)

// resolveDuePools decides every active pool whose deadline has passed.
// The oracle path needs authorization; the emergency path is
// permissionless and fires once a pool has sat unresolved for more than
// 24 hours past its deadline.
func (c *Controller) resolveDuePools(ctx context.Context) {
	if c.cfg.SocialOnly {
		return
	}
	now := c.now().Unix()
	for _, e := range c.reg.Live() {
		switch {
		case e.EmergencyDue(now):
			c.emergencyResolve(ctx, e)
		case e.DueForResolution(now) && c.authorized[e.Variant]:
			c.oracleResolve(ctx, e)
		case e.DueForResolution(now):
			c.log.Warn("pool due but oracle unauthorized, waiting for emergency window",
				"variant", e.Variant, "pool", e.PoolID)
		}
	}
}

// oracleResolve runs the dual-auditor and writes its consensus verdict.
// A failed run (evidence unreachable, model error, unparseable output)
// leaves the pool untouched for the next heartbeat.
func (c *Controller) oracleResolve(ctx context.Context, e registry.PoolEntry) {
	outcome, err := c.auditor.Decide(ctx, string(e.Variant), e.PoolID, e.Description, e.EvidenceURL)
	if err != nil {
		c.log.Error("dual audit failed, resolution deferred",
			"variant", e.Variant, "pool", e.PoolID, "err", err)
		return
	}

	tx, err := c.client.ResolvePool(ctx, e.Variant, e.PoolID, outcome.Consensus)
	if err != nil {
		c.metrics.ChainWrites.WithLabelValues("resolvePool", "error").Inc()
		c.log.Error("resolve write failed", "variant", e.Variant, "pool", e.PoolID, "err", err)
		return
	}
	c.metrics.ChainWrites.WithLabelValues("resolvePool", "ok").Inc()
	c.metrics.Resolutions.WithLabelValues(outcomeLabel(outcome.Consensus), "oracle").Inc()
	c.cache.Invalidate(e.Variant, e.PoolID)

	claim := outcome.Consensus
	if err := c.reg.Update(e.Variant, e.PoolID, func(p *registry.PoolEntry) {
		p.Status = chain.PhaseResolved
		p.ClaimApproved = &claim
		p.ResolutionTxHash = tx.Hex()
		p.DualAuth = &registry.DualAuditRecord{
			JudgeVerdict:     outcome.Judge.Verdict,
			JudgeConfidence:  outcome.Judge.Confidence,
			JudgeRationale:   outcome.Judge.Rationale,
			AuditorVerdict:   outcome.Auditor.Verdict,
			AuditorRationale: outcome.Auditor.Rationale,
			Consensus:        outcome.Consensus,
			EvidenceHash:     outcome.EvidenceHash,
			Attestation:      outcome.Attestation,
			DecidedAt:        outcome.DecidedAt,
		}
	}); err != nil {
		c.log.Error("resolution record failed", "pool", e.PoolID, "err", err)
		return
	}
	c.log.Info("pool resolved", "variant", e.Variant, "pool", e.PoolID,
		"claim", claim, "tx", tx.Hex())

	if updated, ok := c.reg.Get(e.Variant, e.PoolID); ok {
		c.publishArtifact(ctx, updated, social.IntentWithdraw, registry.PhaseArtifactResolution)
	}
}

// emergencyResolve unblocks withdrawals when the oracle never showed up.
// The contract forces claim=false on this path.
func (c *Controller) emergencyResolve(ctx context.Context, e registry.PoolEntry) {
	tx, err := c.client.EmergencyResolve(ctx, e.Variant, e.PoolID)
	if err != nil {
		c.metrics.ChainWrites.WithLabelValues("emergencyResolve", "error").Inc()
		c.log.Error("emergency resolve failed", "variant", e.Variant, "pool", e.PoolID, "err", err)
		return
	}
	c.metrics.ChainWrites.WithLabelValues("emergencyResolve", "ok").Inc()
	c.metrics.Resolutions.WithLabelValues("no_claim", "emergency").Inc()
	c.cache.Invalidate(e.Variant, e.PoolID)

	claim := false
	if err := c.reg.Update(e.Variant, e.PoolID, func(p *registry.PoolEntry) {
		p.Status = chain.PhaseResolved
		p.ClaimApproved = &claim
		p.ResolutionTxHash = tx.Hex()
	}); err != nil {
		c.log.Error("emergency record failed", "pool", e.PoolID, "err", err)
		return
	}
	c.log.Warn("pool emergency-resolved", "variant", e.Variant, "pool", e.PoolID, "tx", tx.Hex())

	if updated, ok := c.reg.Get(e.Variant, e.PoolID); ok {
		c.publishArtifact(ctx, updated, social.IntentWithdraw, registry.PhaseArtifactResolution)
	}
}
