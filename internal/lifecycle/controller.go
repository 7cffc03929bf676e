// Package lifecycle runs the heartbeat: reconcile, monitor transitions,
// resolve due pools, create new pools, engage socially, persist. The
// controller is the sole registry writer during a heartbeat and the only
// component that decides when the chain is written.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/config"
	"github.com/parapool/agent/internal/monitoring"
	"github.com/parapool/agent/internal/oracle"
	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/risk"
	"github.com/parapool/agent/internal/social"
)

// ChainWriter is the contract surface the controller drives.
// *chain.Client satisfies it.
type ChainWriter interface {
	Variants() []chain.Variant
	Configured(v chain.Variant) bool
	WalletAddress() common.Address
	VerifyOracle(ctx context.Context, v chain.Variant) error
	NextPoolID(ctx context.Context, v chain.Variant) (uint64, error)
	GetPoolAccounting(ctx context.Context, v chain.Variant, poolID uint64) (*chain.PoolAccounting, error)
	CreatePool(ctx context.Context, v chain.Variant, p chain.CreateParams) (uint64, common.Hash, error)
	ResolvePool(ctx context.Context, v chain.Variant, poolID uint64, claimApproved bool) (common.Hash, error)
	CancelAndRefund(ctx context.Context, v chain.Variant, poolID uint64) (common.Hash, error)
	EmergencyResolve(ctx context.Context, v chain.Variant, poolID uint64) (common.Hash, error)
}

// PoolCache is the memoized read surface in front of the chain.
// *cache.ReadCache satisfies it.
type PoolCache interface {
	GetPool(ctx context.Context, v chain.Variant, poolID uint64) (*chain.PoolView, error)
	Invalidate(v chain.Variant, poolID uint64)
	Clear()
	Stats() (hits, misses uint64)
}

// Controller owns the pool registry and the heartbeat loop.
type Controller struct {
	cfg       config.LifecycleConfig
	client    ChainWriter
	cache     PoolCache
	reg       *registry.Registry
	engine    *risk.Engine
	auditor   *oracle.DualAuditor
	social    *social.Limiter
	artifacts *social.ArtifactBuilder
	metrics   *monitoring.Metrics

	mode         chain.Variant // variant that receives new pools
	snapshotPath string
	// authorized tracks, per variant, whether the wallet passed the
	// startup oracle probe. Unauthorized variants run read-only for
	// oracle-gated writes; permissionless paths stay available.
	authorized map[chain.Variant]bool

	lastHits, lastMisses uint64

	now func() time.Time
	log *slog.Logger
}

// Deps carries the controller's collaborators.
type Deps struct {
	Client    ChainWriter
	Cache     PoolCache
	Registry  *registry.Registry
	Engine    *risk.Engine
	Auditor   *oracle.DualAuditor
	Social    *social.Limiter
	Artifacts *social.ArtifactBuilder
	Metrics   *monitoring.Metrics
}

// New builds the controller.
func New(cfg config.LifecycleConfig, mode chain.Variant, snapshotPath string, d Deps) *Controller {
	return &Controller{
		cfg:          cfg,
		client:       d.Client,
		cache:        d.Cache,
		reg:          d.Registry,
		engine:       d.Engine,
		auditor:      d.Auditor,
		social:       d.Social,
		artifacts:    d.Artifacts,
		metrics:      d.Metrics,
		mode:         mode,
		snapshotPath: snapshotPath,
		authorized:   make(map[chain.Variant]bool),
		now:          time.Now,
		log:          slog.Default().With("component", "lifecycle"),
	}
}

// Run starts the controller: oracle probe, cold-start reconciliation, then
// the heartbeat ticker until ctx ends. On shutdown the current heartbeat
// finishes its awaited call and state is flushed.
func (c *Controller) Run(ctx context.Context) error {
	c.probeAuthorization(ctx)

	if err := c.Reconcile(ctx); err != nil {
		c.log.Error("cold-start reconciliation incomplete", "err", err)
	}

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	c.Heartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			if err := c.reg.Save(c.snapshotPath); err != nil {
				c.log.Error("final snapshot failed", "err", err)
			}
			return ctx.Err()
		case <-ticker.C:
			c.Heartbeat(ctx)
		}
	}
}

// Heartbeat runs one full cycle. Every phase failure is contained: the
// cycle always reaches persistence.
func (c *Controller) Heartbeat(ctx context.Context) {
	started := c.now()
	c.cache.Clear()
	cycle := c.reg.BeginCycle()
	c.social.BeginCycle()
	c.log.Info("heartbeat begin", "cycle", cycle)

	c.monitorTransitions(ctx)
	c.resolveDuePools(ctx)
	c.maybeCreatePool(ctx, cycle)
	c.engage(ctx)

	if err := c.reg.Save(c.snapshotPath); err != nil {
		c.log.Error("snapshot persist failed", "err", err)
	}
	c.publishGauges()

	c.metrics.HeartbeatCycles.Inc()
	c.metrics.HeartbeatDuration.Observe(time.Since(started).Seconds())
	hits, misses := c.cache.Stats()
	c.metrics.CacheHits.Add(float64(hits - c.lastHits))
	c.metrics.CacheMisses.Add(float64(misses - c.lastMisses))
	c.lastHits, c.lastMisses = hits, misses
	c.log.Info("heartbeat end", "cycle", cycle, "took", time.Since(started).String(),
		"cache_hits", hits, "cache_misses", misses)
}

// probeAuthorization verifies the wallet against each contract's oracle
// address. Failure is loud but not fatal: monitoring, cancellation and
// emergency resolution are permissionless and keep running.
func (c *Controller) probeAuthorization(ctx context.Context) {
	for _, v := range c.client.Variants() {
		err := c.client.VerifyOracle(ctx, v)
		c.authorized[v] = err == nil
		if err != nil {
			c.log.Error("ORACLE NOT AUTHORIZED, oracle writes disabled for variant",
				"variant", v, "err", err)
		} else {
			c.log.Info("oracle authorization verified", "variant", v,
				"wallet", c.client.WalletAddress().Hex())
		}
	}
}

func (c *Controller) publishGauges() {
	counts := make(map[[2]string]int)
	for _, e := range c.reg.All() {
		counts[[2]string{string(e.Variant), string(e.Status)}]++
	}
	c.metrics.PoolsByStatus.Reset()
	for k, n := range counts {
		c.metrics.PoolsByStatus.WithLabelValues(k[0], k[1]).Set(float64(n))
	}
	if c.reg.Suspended() {
		c.metrics.SuspensionActive.Set(1)
	} else {
		c.metrics.SuspensionActive.Set(0)
	}
}
