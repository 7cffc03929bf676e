// Package circuitbreaker guards the agent's best-effort outbound calls
// (historical-data lookups, LLM invocations). When a dependency is down the
// breaker fails fast so the heartbeat falls back to synthetic rates or
// defers resolution instead of burning its cycle budget on timeouts.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	StateClosed State = iota // normal operation
	StateOpen                // failing fast
	StateHalfOpen            // probing for recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned while the breaker is failing fast.
var ErrOpen = errors.New("circuit breaker open")

// Breaker trips open after consecutive failures and probes again after a
// cooldown. Counting is deliberately simple: the callers here are
// single-flight heartbeat tasks, not high-QPS request paths.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
}

// New creates a breaker that opens after maxFailures consecutive failures
// and stays open for cooldown before allowing a probe.
func New(name string, maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       StateClosed,
	}
}

// Do runs fn unless the breaker is open. A failure while half-open re-opens
// immediately; a success closes the breaker.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn()
	b.record(err == nil)
	return err
}

// State returns the current state, accounting for cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.stateLocked() {
	case StateOpen:
		return false
	default:
		return true
	}
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.stateLocked()
	if ok {
		b.failures = 0
		b.state = StateClosed
	} else {
		b.failures++
		if b.failures >= b.maxFailures || prev == StateHalfOpen {
			b.state = StateOpen
			b.openedAt = time.Now()
		}
	}
	if next := b.stateLocked(); next != prev {
		slog.Warn("circuit breaker state change", "name", b.name, "from", prev.String(), "to", next.String())
	}
}

// stateLocked resolves OPEN into HALF_OPEN once the cooldown has passed.
// Caller holds b.mu.
func (b *Breaker) stateLocked() State {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
	}
	return b.state
}
