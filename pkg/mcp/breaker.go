package mcp

import (
	"sync"
	"time"
)

// BreakerState mirrors the CLOSED/HALF_OPEN/OPEN machine of spec.md §4.3.4,
// grounded on the teacher's resiliency.CircuitBreaker but extended with a
// volume threshold and a 4xx-exclusion predicate.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig holds the defaults from spec.md §4.3.4.
type BreakerConfig struct {
	Timeout         time.Duration
	ErrorRateThresh float64 // fraction, e.g. 0.5 for 50%
	ResetTimeout    time.Duration
	VolumeThreshold int
}

// DefaultBreakerConfig matches the spec's stated defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Timeout:         10 * time.Second,
		ErrorRateThresh: 0.5,
		ResetTimeout:    30 * time.Second,
		VolumeThreshold: 10,
	}
}

// Breaker is a per-operation circuit breaker. One instance scopes exactly
// one (executor, method) pair, as spec.md §4.3.4 requires ("scoped by
// executor + method") and §5 notes ("breakers are per-process").
type Breaker struct {
	mu sync.Mutex

	cfg   BreakerConfig
	state BreakerState

	total       int
	failures    int
	lastFailure time.Time

	onTransition func(from, to BreakerState)
}

// NewBreaker builds a Breaker in the CLOSED state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// OnTransition registers a callback invoked whenever the breaker changes
// state, used to feed mcp_circuit_breaker_state (spec.md §4.3.4
// "Transition events are surfaced to observability").
func (b *Breaker) OnTransition(fn func(from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// Allow reports whether a call may proceed, transitioning OPEN -> HALF_OPEN
// once resetTimeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) >= b.cfg.ResetTimeout {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordSuccess closes the breaker (from HALF_OPEN) and resets counters.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.total = 0
	b.failures = 0
}

// RecordFailure counts a failure unless isClientFault is true — 4xx-class
// errors are excluded from the failure count (spec.md §4.3.4). Once the
// volume threshold is reached and the failure rate reaches the configured
// threshold, the breaker opens.
func (b *Breaker) RecordFailure(isClientFault bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isClientFault {
		return
	}

	b.total++
	b.failures++
	b.lastFailure = time.Now()

	if b.state == StateHalfOpen {
		b.transition(StateOpen)
		return
	}

	if b.total >= b.cfg.VolumeThreshold {
		rate := float64(b.failures) / float64(b.total)
		if rate >= b.cfg.ErrorRateThresh {
			b.transition(StateOpen)
		}
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.total = 0
		b.failures = 0
	}
	if b.onTransition != nil && from != to {
		b.onTransition(from, to)
	}
}

// Registry holds one Breaker per (executor, operation) pair, created
// lazily on first use.
type Registry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewRegistry builds an empty breaker registry.
func NewRegistry(cfg BreakerConfig) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns (creating if necessary) the breaker scoped to executor+op.
func (r *Registry) Get(executor, operation string) *Breaker {
	key := executor + "::" + operation
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := NewBreaker(r.cfg)
	r.breakers[key] = b
	return b
}
