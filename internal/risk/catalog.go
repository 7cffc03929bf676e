// Package risk prices parametric coverage requests. The admission contract
// is the strict parametric validator in engine.go; the keyword matcher in
// this file is only a fast-path classifier for inbound free-text requests.
package risk

import (
	"strings"
	"sync"
)

// Category classifies a parametric event by its data source.
type Category string

const (
	CategoryWeather      Category = "weather"
	CategoryCryptoPrice  Category = "crypto-price"
	CategoryGasFee       Category = "gas-fee"
	CategoryDefiProtocol Category = "defi-protocol"
	CategoryOnChainEvent Category = "on-chain-event"
)

// Product is one entry of the fixed coverage catalog.
type Product struct {
	ID               string   `json:"id"`
	DisplayName      string   `json:"display_name"`
	Category         Category `json:"category"`
	MinCoverage      float64  `json:"min_coverage"` // stablecoin units
	MaxCoverage      float64  `json:"max_coverage"`
	MinDeadlineDays  int      `json:"min_deadline_days"`
	MaxDeadlineDays  int      `json:"max_deadline_days"`
	BaseProbability  float64  `json:"base_probability"`
	EvidenceURL      string   `json:"evidence_url"`
	Keywords         []string `json:"keywords"`
	DescriptionModel string   `json:"description_model"` // template for synthesized requests
}

// Catalog is the registry of offered products.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]*Product
	order    []string
}

// NewCatalog builds the catalog with the default product set registered.
func NewCatalog() *Catalog {
	c := &Catalog{products: make(map[string]*Product)}
	c.registerDefaults()
	return c
}

func (c *Catalog) registerDefaults() {
	defaults := []*Product{
		{
			ID: "rain-day", DisplayName: "Rainy Day Cover", Category: CategoryWeather,
			MinCoverage: 10, MaxCoverage: 5000, MinDeadlineDays: 2, MaxDeadlineDays: 30,
			BaseProbability: 0.25, EvidenceURL: "https://wttr.in/London?format=j1",
			Keywords:         []string{"rain", "weather", "precipitation", "storm"},
			DescriptionModel: "More than 5 mm of rain recorded in London before deadline",
		},
		{
			ID: "heat-wave", DisplayName: "Heat Wave Cover", Category: CategoryWeather,
			MinCoverage: 10, MaxCoverage: 5000, MinDeadlineDays: 2, MaxDeadlineDays: 45,
			BaseProbability: 0.12, EvidenceURL: "https://wttr.in/Madrid?format=j1",
			Keywords:         []string{"heat", "temperature", "heatwave", "hot"},
			DescriptionModel: "Temperature above 38 C recorded in Madrid before deadline",
		},
		{
			ID: "eth-drawdown", DisplayName: "ETH Drawdown Cover", Category: CategoryCryptoPrice,
			MinCoverage: 50, MaxCoverage: 20000, MinDeadlineDays: 2, MaxDeadlineDays: 60,
			BaseProbability: 0.15, EvidenceURL: "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd",
			Keywords:         []string{"eth", "ethereum", "price drop", "drawdown", "crash"},
			DescriptionModel: "ETH price falls more than 10 percent from current level before deadline",
		},
		{
			ID: "btc-rally", DisplayName: "BTC Rally Cover", Category: CategoryCryptoPrice,
			MinCoverage: 50, MaxCoverage: 20000, MinDeadlineDays: 2, MaxDeadlineDays: 60,
			BaseProbability: 0.15, EvidenceURL: "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd",
			Keywords:         []string{"btc", "bitcoin", "rally", "pump", "price rise"},
			DescriptionModel: "BTC price rises more than 10 percent from current level before deadline",
		},
		{
			ID: "gas-spike", DisplayName: "Gas Spike Cover", Category: CategoryGasFee,
			MinCoverage: 10, MaxCoverage: 10000, MinDeadlineDays: 1, MaxDeadlineDays: 30,
			BaseProbability: 0.08, EvidenceURL: "https://api.etherscan.io/api?module=gastracker&action=gasoracle",
			Keywords:         []string{"gas", "gwei", "fees", "base fee", "congestion"},
			DescriptionModel: "Base fee above 50 gwei sustained for one hour before deadline",
		},
		{
			ID: "stable-depeg", DisplayName: "Stablecoin Depeg Cover", Category: CategoryCryptoPrice,
			MinCoverage: 100, MaxCoverage: 50000, MinDeadlineDays: 3, MaxDeadlineDays: 90,
			BaseProbability: 0.02, EvidenceURL: "https://api.coingecko.com/api/v3/simple/price?ids=usd-coin&vs_currencies=usd",
			Keywords:         []string{"depeg", "stablecoin", "usdc", "usdt", "peg"},
			DescriptionModel: "USDC trades below 0.99 USDT for more than one hour before deadline",
		},
		{
			ID: "tvl-drain", DisplayName: "Protocol TVL Drain Cover", Category: CategoryDefiProtocol,
			MinCoverage: 100, MaxCoverage: 25000, MinDeadlineDays: 3, MaxDeadlineDays: 90,
			BaseProbability: 0.05, EvidenceURL: "https://api.llama.fi/protocol/aave",
			Keywords:         []string{"tvl", "protocol", "defi", "drain", "exploit", "hack"},
			DescriptionModel: "Protocol TVL falls more than 30 percent within the coverage window",
		},
		{
			ID: "yield-collapse", DisplayName: "Yield Collapse Cover", Category: CategoryDefiProtocol,
			MinCoverage: 50, MaxCoverage: 15000, MinDeadlineDays: 3, MaxDeadlineDays: 60,
			BaseProbability: 0.1, EvidenceURL: "https://api.llama.fi/pools",
			Keywords:         []string{"yield", "apy", "apr", "lending rate"},
			DescriptionModel: "Supply APY falls below 1 percent before deadline",
		},
		{
			ID: "bridge-halt", DisplayName: "Bridge Halt Cover", Category: CategoryOnChainEvent,
			MinCoverage: 100, MaxCoverage: 25000, MinDeadlineDays: 2, MaxDeadlineDays: 45,
			BaseProbability: 0.03, EvidenceURL: "https://api.llama.fi/bridges",
			Keywords:         []string{"bridge", "halt", "paused", "outage"},
			DescriptionModel: "Bridge processes 0 transfers for more than 6 hours before deadline",
		},
		{
			ID: "sequencer-downtime", DisplayName: "Sequencer Downtime Cover", Category: CategoryOnChainEvent,
			MinCoverage: 50, MaxCoverage: 20000, MinDeadlineDays: 1, MaxDeadlineDays: 30,
			BaseProbability: 0.04, EvidenceURL: "https://status.base.org/api/v2/status.json",
			Keywords:         []string{"sequencer", "downtime", "outage", "l2", "rollup"},
			DescriptionModel: "Sequencer produces no blocks for more than 30 minutes before deadline",
		},
	}
	for _, p := range defaults {
		c.products[p.ID] = p
		c.order = append(c.order, p.ID)
	}
}

// Get returns a product by id.
func (c *Catalog) Get(id string) (*Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// List returns the products in registration order.
func (c *Catalog) List() []*Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out
}

// Pick returns the product at index mod len, the round-robin used by the
// heartbeat's creation phase.
func (c *Catalog) Pick(n uint64) *Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.order) == 0 {
		return nil
	}
	return c.products[c.order[n%uint64(len(c.order))]]
}

// Match scores free text against product keywords and returns the best
// match. This is the fast-path classifier only; admission is decided by
// Engine.Evaluate.
func (c *Catalog) Match(text string) (*Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lower := strings.ToLower(text)
	var best *Product
	bestScore := 0
	for _, id := range c.order {
		p := c.products[id]
		score := 0
		for _, kw := range p.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	return best, best != nil
}
