package lifecycle

import (
	"context"
	"fmt"

	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/registry"
)

// Reconcile walks every configured contract id-by-id and adopts pools the
// registry does not know about. The chain is authoritative: a pool found
// on chain but missing from the snapshot gets a stub entry so resolution
// and cancellation duties resume after a restart with a lost disk.
func (c *Controller) Reconcile(ctx context.Context) error {
	var firstErr error
	for _, v := range c.client.Variants() {
		if err := c.reconcileVariant(ctx, v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Controller) reconcileVariant(ctx context.Context, v chain.Variant) error {
	next, err := c.client.NextPoolID(ctx, v)
	if err != nil {
		return fmt.Errorf("reconcile %s: next pool id: %w", v, err)
	}
	adopted := 0
	for id := uint64(0); id < next; id++ {
		if _, ok := c.reg.Get(v, id); ok {
			continue
		}
		view, err := c.cache.GetPool(ctx, v, id)
		if err != nil {
			c.log.Warn("reconcile read failed, pool skipped", "variant", v, "pool", id, "err", err)
			continue
		}
		entry := entryFromView(view)
		if err := c.reg.Add(entry); err != nil {
			c.log.Warn("reconcile adopt failed", "variant", v, "pool", id, "err", err)
			continue
		}
		adopted++
	}
	if adopted > 0 {
		c.log.Info("reconciled pools from chain", "variant", v, "adopted", adopted, "scanned", next)
	}
	return nil
}

// entryFromView builds a stub registry entry for a chain-discovered pool.
// Product attribution and event probability are unknowable after the
// fact, so the stub carries neutral values and the chain's own numbers.
func entryFromView(view *chain.PoolView) *registry.PoolEntry {
	coverage := registry.MicrosFromBig(view.CoverageAmount)
	premium := registry.MicrosFromBig(view.PremiumAmount)
	bps := 0
	if coverage > 0 {
		bps = int(premium * 10000 / coverage)
	}
	var claim *bool
	if view.Phase.IsResolved() {
		v := view.ClaimApproved
		claim = &v
	}
	return &registry.PoolEntry{
		PoolID:           view.PoolID,
		Variant:          view.Variant,
		ProductID:        "unknown",
		Description:      view.Description,
		EvidenceURL:      view.EvidenceURL,
		CoverageAmount:   coverage,
		PremiumAmount:    premium,
		PremiumRateBps:   bps,
		Deadline:         view.Deadline,
		DepositDeadline:  view.DepositDeadline,
		EventProbability: 0.1,
		Status:           view.Phase,
		ClaimApproved:    claim,
		Source:           registry.SourceReconciled,
	}
}
