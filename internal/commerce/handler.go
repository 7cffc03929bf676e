package commerce

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/monitoring"
	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/risk"
)

// Deliverable statuses returned to the commerce protocol.
const (
	StatusCreated  = "COVERAGE_CREATED"
	StatusRejected = "COVERAGE_REJECTED"
	StatusError    = "ERROR"
)

// Deliverable is the structured job result.
type Deliverable struct {
	JobID               string `json:"job_id"`
	Status              string `json:"status"`
	Reason              string `json:"reason,omitempty"`
	Suggestion          string `json:"suggestion,omitempty"`
	TxHash              string `json:"transaction_hash,omitempty"`
	PoolID              uint64 `json:"pool_id,omitempty"`
	Variant             string `json:"contract_variant,omitempty"`
	Coverage            string `json:"coverage,omitempty"`
	Premium             string `json:"premium,omitempty"`
	PremiumRateBps      int    `json:"premium_rate_bps,omitempty"`
	EvidenceURL         string `json:"evidence_source,omitempty"`
	ResolutionMechanism string `json:"resolution_mechanism,omitempty"`
}

// EvaluationCallback is the commerce protocol's pre-purchase evaluation
// result.
type EvaluationCallback struct {
	Approved  bool   `json:"approved"`
	Rationale string `json:"rationale"`
}

type job struct {
	id     string
	raw    string
	result chan Deliverable
}

// Handler is the sequential commerce queue. One goroutine drains it; any
// chain write it makes waits on the chain client's write lock, so jobs
// interleave with heartbeats only at suspension points.
type Handler struct {
	engine  *risk.Engine
	client  *chain.Client
	reg     *registry.Registry
	variant chain.Variant
	metrics *monitoring.Metrics
	jobs    chan job
	log     *slog.Logger
}

// NewHandler builds the queue. variant selects which contract generation
// receives commerce-created pools.
func NewHandler(engine *risk.Engine, client *chain.Client, reg *registry.Registry, variant chain.Variant, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		engine:  engine,
		client:  client,
		reg:     reg,
		variant: variant,
		metrics: metrics,
		jobs:    make(chan job, 32),
		log:     slog.Default().With("component", "commerce"),
	}
}

// Run drains the queue until ctx ends. A failed job never stops the queue.
func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-h.jobs:
			d := h.process(ctx, j)
			h.metrics.CommerceJobs.WithLabelValues(d.Status).Inc()
			j.result <- d
		}
	}
}

// Submit enqueues a raw service requirement and returns the channel the
// deliverable will arrive on.
func (h *Handler) Submit(raw string) <-chan Deliverable {
	j := job{id: uuid.NewString(), raw: raw, result: make(chan Deliverable, 1)}
	select {
	case h.jobs <- j:
	default:
		// Queue full: reject immediately rather than block the caller.
		j.result <- Deliverable{
			JobID:  j.id,
			Status: StatusError,
			Reason: "commerce queue is full",
		}
	}
	return j.result
}

// Evaluate is the evaluator-callback surface: a dry-run of parse, validate
// and risk pricing without touching the chain.
func (h *Handler) Evaluate(ctx context.Context, raw string) EvaluationCallback {
	req, err := ParseRequirement(raw)
	if err != nil {
		return EvaluationCallback{Approved: false, Rationale: err.Error()}
	}
	if err := req.Validate(); err != nil {
		return EvaluationCallback{Approved: false, Rationale: err.Error()}
	}
	product, coverageReq, err := h.buildRequest(req)
	if err != nil {
		return EvaluationCallback{Approved: false, Rationale: err.Error()}
	}
	eval := h.engine.Evaluate(ctx, coverageReq)
	if !eval.Approved {
		return EvaluationCallback{Approved: false, Rationale: eval.Reason}
	}
	return EvaluationCallback{
		Approved: true,
		Rationale: fmt.Sprintf("%s priced at %d bps against %s",
			product.DisplayName, eval.PremiumRateBps, eval.SourceLabel),
	}
}

func (h *Handler) process(ctx context.Context, j job) Deliverable {
	h.log.Info("commerce job received", "job_id", j.id)

	req, err := ParseRequirement(j.raw)
	if err != nil {
		return Deliverable{JobID: j.id, Status: StatusRejected, Reason: err.Error(),
			Suggestion: "send JSON with amount, duration_days and coverage_type, or plain text naming all three"}
	}
	if err := req.Validate(); err != nil {
		return Deliverable{JobID: j.id, Status: StatusRejected, Reason: err.Error()}
	}

	product, coverageReq, err := h.buildRequest(req)
	if err != nil {
		return Deliverable{JobID: j.id, Status: StatusRejected, Reason: err.Error(),
			Suggestion: "name a covered risk: depeg, exploit, weather, gas, downtime or price moves"}
	}

	eval := h.engine.Evaluate(ctx, coverageReq)
	if !eval.Approved {
		return Deliverable{JobID: j.id, Status: StatusRejected, Reason: eval.Reason, Suggestion: eval.Suggestion}
	}
	bps, premium := pricedTerms(coverageReq.CoverageAmount, eval)

	poolID, txHash, err := h.client.CreatePool(ctx, h.variant, chain.CreateParams{
		Description:    coverageReq.Description,
		EvidenceURL:    coverageReq.EvidenceURL,
		CoverageAmount: registry.BigFromMicros(coverageReq.CoverageAmount),
		PremiumAmount:  registry.BigFromMicros(premium),
		Deadline:       coverageReq.Deadline,
	})
	if err != nil {
		h.log.Error("commerce pool creation failed", "job_id", j.id, "err", err)
		return Deliverable{JobID: j.id, Status: StatusError, Reason: err.Error()}
	}

	initial := chain.PhaseOpen
	if h.variant == chain.VariantLegacy {
		initial = chain.PhasePending
	}
	entry := &registry.PoolEntry{
		PoolID:           poolID,
		Variant:          h.variant,
		ProductID:        product.ID,
		Description:      coverageReq.Description,
		EvidenceURL:      coverageReq.EvidenceURL,
		CoverageAmount:   coverageReq.CoverageAmount,
		PremiumAmount:    premium,
		PremiumRateBps:   bps,
		Deadline:         coverageReq.Deadline,
		DepositDeadline:  coverageReq.Deadline - chain.DepositWindow,
		EventProbability: eval.Frequency,
		Status:           initial,
		CreationTxHash:   txHash.Hex(),
		Source:           registry.SourceCommerce,
		JobID:            j.id,
		CreatedAtCycle:   h.reg.CycleCount(),
	}
	if err := h.reg.Add(entry); err != nil {
		h.log.Error("registry append failed for commerce pool", "job_id", j.id, "err", err)
	}

	return Deliverable{
		JobID:               j.id,
		Status:              StatusCreated,
		TxHash:              txHash.Hex(),
		PoolID:              poolID,
		Variant:             string(h.variant),
		Coverage:            registry.FormatAmount(coverageReq.CoverageAmount),
		Premium:             registry.FormatAmount(premium),
		PremiumRateBps:      bps,
		EvidenceURL:         coverageReq.EvidenceURL,
		ResolutionMechanism: "dual-auditor oracle at deadline; emergency denial 24h later",
	}
}

// pricedTerms converts the engine's uncapped evaluation into the terms
// actually written: the rate clamped to the chain-valid ceiling and the
// premium recomputed at the written rate, so premium never exceeds
// coverage even for near-certain events.
func pricedTerms(coverageMicros int64, eval risk.Evaluation) (int, int64) {
	bps := registry.ClampRateBps(eval.PremiumRateBps)
	return bps, registry.PremiumFor(coverageMicros, bps)
}

// buildRequest matches the catalog and synthesizes the concrete coverage
// request the risk engine prices.
func (h *Handler) buildRequest(req ServiceRequest) (*risk.Product, risk.CoverageRequest, error) {
	searchText := req.CoverageType + " " + req.Protocol + " " + req.Description
	product, ok := h.engine.Catalog().Match(searchText)
	if !ok {
		return nil, risk.CoverageRequest{}, fmt.Errorf("no catalog product matches %q", req.CoverageType)
	}
	description := req.Description
	if !looksParametric(description) {
		// Free-text requests rarely state a clean threshold; fall back to
		// the product's canonical parametric form.
		subject := req.Protocol
		if subject == "" {
			subject = product.DisplayName
		}
		description = product.DescriptionModel
		if strings.Contains(description, "%s") {
			description = fmt.Sprintf(description, subject)
		}
	}
	deadline := time.Now().Add(time.Duration(req.DurationDays) * 24 * time.Hour).Unix()
	return product, risk.CoverageRequest{
		ProductID:      product.ID,
		Description:    description,
		CoverageAmount: registry.MicrosFromUnits(req.Amount),
		Deadline:       deadline,
		EvidenceURL:    product.EvidenceURL,
	}, nil
}

func looksParametric(desc string) bool {
	_, ok := risk.ParseEventDescription(desc)
	return ok
}
