// Package commerce accepts service jobs from the external commerce
// protocol and drives each through parse, product match, risk pricing and
// on-chain pool creation. The queue is strictly sequential: chain writes
// from here and from the heartbeat share one wallet nonce.
package commerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ServiceRequest is the normalized job input, whether it arrived as JSON
// or free text.
type ServiceRequest struct {
	Amount       float64 `json:"amount"` // stablecoin units
	DurationDays int     `json:"duration_days"`
	Protocol     string  `json:"protocol"`
	CoverageType string  `json:"coverage_type"`
	Description  string  `json:"description"`
}

var (
	amountPattern   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:usdc|usd|dollars?|units?)`)
	durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(day|week|month)s?`)
)

var protocolKeywords = []string{
	"aave", "uniswap", "compound", "lido", "curve", "morpho",
	"base", "arbitrum", "optimism",
}

// Ordered so classification is deterministic when text matches several.
var coverageTypeKeywords = []struct {
	ctype    string
	keywords []string
}{
	{"depeg", []string{"depeg", "peg", "stablecoin"}},
	{"exploit", []string{"hack", "exploit", "drain", "rug"}},
	{"weather", []string{"rain", "weather", "storm", "heat"}},
	{"gas", []string{"gas", "gwei", "fees"}},
	{"downtime", []string{"downtime", "outage", "halt", "sequencer", "bridge"}},
	{"price-drop", []string{"price drop", "drawdown", "crash", "falls", "dip"}},
	{"yield", []string{"yield", "apy", "apr"}},
}

// ParseRequirement accepts either a structured JSON payload or free text.
// Free text is mined with keyword dictionaries for amount, duration,
// protocol and coverage type.
func ParseRequirement(raw string) (ServiceRequest, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ServiceRequest{}, errors.New("empty service requirement")
	}

	if strings.HasPrefix(trimmed, "{") {
		var req ServiceRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return ServiceRequest{}, fmt.Errorf("structured requirement: %w", err)
		}
		if req.Description == "" {
			req.Description = trimmed
		}
		return req, nil
	}

	req := ServiceRequest{Description: trimmed}
	lower := strings.ToLower(trimmed)

	if m := amountPattern.FindStringSubmatch(trimmed); m != nil {
		req.Amount, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := durationPattern.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "week":
			n *= 7
		case "month":
			n *= 30
		}
		req.DurationDays = n
	}
	for _, p := range protocolKeywords {
		if strings.Contains(lower, p) {
			req.Protocol = p
			break
		}
	}
	for _, entry := range coverageTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				req.CoverageType = entry.ctype
				break
			}
		}
		if req.CoverageType != "" {
			break
		}
	}
	return req, nil
}

// Validate enforces the admission floor for commerce jobs.
func (r ServiceRequest) Validate() error {
	if r.Amount < 10 {
		return fmt.Errorf("coverage amount %.2f below the 10-unit minimum", r.Amount)
	}
	if r.DurationDays < 1 || r.DurationDays > 365 {
		return fmt.Errorf("duration %d days outside the 1..365 range", r.DurationDays)
	}
	if strings.TrimSpace(r.CoverageType) == "" {
		return errors.New("no coverage type recognized in the requirement")
	}
	return nil
}
