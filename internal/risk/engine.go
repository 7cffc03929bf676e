package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/parapool/agent/internal/registry"
)

// Admission bounds.
const (
	MinCoverageMicros = 10 * 1_000_000 // 10 stablecoin units
	MinDeadlineAhead  = 24 * time.Hour
	MaxDeadlineAhead  = 90 * 24 * time.Hour
	RiskLoading       = 1.5 // premium = frequency x loading
	MinPremiumBps     = 1

	// DeadlineGrace absorbs the clock movement between request assembly
	// and evaluation: a deadline computed exactly 24 hours out (a one-day
	// commerce job) must still clear the floor moments later.
	DeadlineGrace = time.Minute
)

// estimatedGasCostMicros is the rough cost of the resolution transaction;
// premiums below it draw a warning.
const estimatedGasCostMicros = 500_000

// Direction of a parametric threshold event.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// CoverageRequest is the engine input. Amounts in stablecoin micros.
type CoverageRequest struct {
	ProductID      string
	Description    string
	CoverageAmount int64
	Deadline       int64 // unix seconds
	EvidenceURL    string
}

// ParsedEvent is what the parametric validator extracted from a
// description: a numeric threshold, its unit, and the event direction.
type ParsedEvent struct {
	Threshold float64
	Unit      string
	Direction Direction
	City      string
	Text      string
}

// Evaluation is either an approval with pricing or a rejection with a
// reason and a suggestion.
type Evaluation struct {
	Approved       bool
	Reason         string
	Suggestion     string
	Category       Category
	PremiumRateBps int
	PremiumAmount  int64
	Frequency      float64
	SourceLabel    string
	DataPoints     string
	Warnings       []string
	DeadlineLocal  string
	Event          ParsedEvent
}

// Engine prices coverage requests. Pure given a fixed HistoryProvider;
// the only side effect is the provider's best-effort HTTP.
type Engine struct {
	catalog *Catalog
	history HistoryProvider
	now     func() time.Time
	log     *slog.Logger
}

// NewEngine builds the engine. now is replaceable for tests.
func NewEngine(catalog *Catalog, history HistoryProvider) *Engine {
	return &Engine{
		catalog: catalog,
		history: history,
		now:     time.Now,
		log:     slog.Default().With("component", "risk"),
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Catalog exposes the product registry.
func (e *Engine) Catalog() *Catalog { return e.catalog }

var thresholdPattern = regexp.MustCompile(
	`(\d+(?:\.\d+)?)\s*(%|percent|bps|gwei|usdc|usdt|dai|usd|mm|cm|inches|°\s?c|°\s?f|celsius|fahrenheit|c\b|f\b|hours?|minutes?)`)

var subjectivityPatterns = []string{
	"opinion", "feel", "feels", "mood", "vibe", "sentiment",
	"best ", "worst ", "beautiful", "i think", "i believe", "popular",
}

var scamPatterns = []string{
	"guaranteed profit", "guaranteed return", "risk free", "risk-free",
	"double your", "10x your", "send funds", "send eth", "airdrop",
	"giveaway", "private key", "seed phrase", "insider",
}

// Evaluate runs the full admission and pricing pipeline.
func (e *Engine) Evaluate(ctx context.Context, req CoverageRequest) Evaluation {
	// 1. Parametric validation.
	ev, ok := parseEvent(req.Description)
	if !ok {
		return reject("description has no numeric threshold with a recognized unit",
			"state an objectively checkable threshold, e.g. \"ETH drops more than 10 percent\"")
	}
	lower := strings.ToLower(req.Description)
	for _, p := range subjectivityPatterns {
		if strings.Contains(lower, p) {
			return reject("description is subjective, not parametric",
				"replace opinion language with a numeric threshold on a public data source")
		}
	}
	ahead := time.Unix(req.Deadline, 0).Sub(e.now())
	if ahead < MinDeadlineAhead-DeadlineGrace {
		return reject("deadline is less than 24 hours away",
			"choose a deadline at least 24 hours out")
	}
	if ahead > MaxDeadlineAhead {
		return reject("deadline is more than 90 days away",
			"choose a deadline within 90 days")
	}
	if req.CoverageAmount < MinCoverageMicros {
		return reject("coverage amount below the 10-unit minimum",
			"request coverage of at least 10")
	}

	// 2. Security screen.
	for _, p := range scamPatterns {
		if strings.Contains(lower, p) {
			return reject("description matches a known scam pattern",
				"describe a verifiable parametric event without promotional language")
		}
	}

	// 3. Category detection.
	cat := e.detectCategory(req)

	// 4. Historical frequency, best-effort.
	report, err := e.history.Frequency(ctx, cat, ev)
	if err != nil {
		e.log.Warn("history lookup failed, using base rate", "category", cat, "err", err)
		report = SyntheticReport(cat)
	}
	if report.Periods < MinHistoryPeriods {
		return reject("insufficient history for this event",
			"pick an event with at least 30 periods of observable history")
	}

	// 5. Premium rate.
	rate := report.Frequency * RiskLoading
	bps := int(math.Ceil(rate * 10000))
	if bps < MinPremiumBps {
		bps = MinPremiumBps
	}
	premium := registry.PremiumFor(req.CoverageAmount, bps)

	out := Evaluation{
		Approved:       true,
		Category:       cat,
		PremiumRateBps: bps,
		PremiumAmount:  premium,
		Frequency:      report.Frequency,
		SourceLabel:    report.SourceLabel,
		DataPoints:     report.DataPoints,
		DeadlineLocal:  time.Unix(req.Deadline, 0).Local().Format("2006-01-02 15:04 MST"),
		Event:          ev,
	}

	// 6. Advisory warnings, non-rejecting.
	if bps > 3000 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("premium rate %d bps is very high; the event is near-expected", bps))
	}
	if bps <= 10 {
		out.Warnings = append(out.Warnings, "premium rate is very low; providers may not find this worth funding")
	}
	if p, ok := e.catalog.Get(req.ProductID); ok && registry.UnitsFromMicros(req.CoverageAmount) > p.MaxCoverage {
		out.Warnings = append(out.Warnings, fmt.Sprintf("coverage exceeds the suggested maximum of %.0f for %s", p.MaxCoverage, p.ID))
	}
	if premium < estimatedGasCostMicros {
		out.Warnings = append(out.Warnings, "premium is below the estimated resolution gas cost")
	}
	return out
}

func reject(reason, suggestion string) Evaluation {
	return Evaluation{Approved: false, Reason: reason, Suggestion: suggestion}
}

// ParseEventDescription reports whether a description states a usable
// parametric threshold, and what it is.
func ParseEventDescription(desc string) (ParsedEvent, bool) {
	return parseEvent(desc)
}

// parseEvent extracts the threshold, unit and direction from a description.
func parseEvent(desc string) (ParsedEvent, bool) {
	m := thresholdPattern.FindStringSubmatch(strings.ToLower(desc))
	if m == nil {
		return ParsedEvent{}, false
	}
	threshold, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return ParsedEvent{}, false
	}
	ev := ParsedEvent{
		Threshold: threshold,
		Unit:      strings.TrimSpace(m[2]),
		Direction: DirectionAbove,
		Text:      desc,
	}
	lower := strings.ToLower(desc)
	for _, kw := range []string{"below", "under", "falls", "drop", "drops", "less than", "decrease"} {
		if strings.Contains(lower, kw) {
			ev.Direction = DirectionBelow
			break
		}
	}
	for city := range cityRainProbability {
		if strings.Contains(lower, city) {
			ev.City = city
			break
		}
	}
	return ev, true
}

// detectCategory scores keywords per category; ties resolve to crypto-price.
func (e *Engine) detectCategory(req CoverageRequest) Category {
	if p, ok := e.catalog.Get(req.ProductID); ok {
		return p.Category
	}
	lower := strings.ToLower(req.Description)
	scores := map[Category]int{}
	keywordTable := map[Category][]string{
		CategoryWeather:      {"rain", "snow", "temperature", "weather", "storm", "heat", "wind"},
		CategoryCryptoPrice:  {"price", "eth", "btc", "bitcoin", "ethereum", "token", "depeg", "usdc"},
		CategoryGasFee:       {"gas", "gwei", "base fee", "fees"},
		CategoryDefiProtocol: {"tvl", "protocol", "apy", "apr", "yield", "lending", "defi"},
		CategoryOnChainEvent: {"bridge", "sequencer", "outage", "halt", "downtime", "block"},
	}
	for cat, kws := range keywordTable {
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				scores[cat]++
			}
		}
	}
	best := CategoryCryptoPrice
	bestScore := scores[CategoryCryptoPrice]
	// Fixed iteration order keeps tie-breaks deterministic.
	for _, cat := range []Category{CategoryWeather, CategoryGasFee, CategoryDefiProtocol, CategoryOnChainEvent} {
		if scores[cat] > bestScore {
			best, bestScore = cat, scores[cat]
		}
	}
	return best
}
