// Package resilience provides the failure-isolation primitives that sit
// between the gateway and its speech providers.
//
// The central type is [CircuitBreaker], a three-state breaker
// (closed, open, half_open) with a sliding failure window and a jittered,
// exponentially growing cooldown. [STTRouter] and [TTSRouter] compose
// breakers around provider adapters so a failing backend is bypassed instead
// of stalling the conversation, and [RateLimiter] bounds per-connection
// message rates.
//
// All types are safe for concurrent use.
package resilience

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all requests are allowed.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped. Requests are refused
	// until the cooldown timer moves the breaker to half_open.
	StateOpen

	// StateHalfOpen is the probe state entered when the cooldown elapses.
	// Exactly one request is allowed through; its outcome decides whether
	// the breaker closes or re-opens with a longer cooldown.
	StateHalfOpen
)

// String returns the wire-format name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// jitterFraction is the uniform spread applied to every scheduled cooldown.
const jitterFraction = 0.15

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
// Zero-value fields are replaced with defaults by [NewCircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a label used in log messages, e.g. "stt:parakeet".
	Name string

	// FailureThreshold is the number of failures within Window that trips
	// the breaker. Default: 3.
	FailureThreshold int

	// Window is the sliding interval in which failures are counted.
	// Failures older than Window never contribute to a trip. Default: 60s.
	Window time.Duration

	// Cooldown is the base open-state duration before a recovery probe is
	// allowed. Default: 5s.
	Cooldown time.Duration

	// MaxCooldown caps the exponential cooldown growth. Default: 120s.
	MaxCooldown time.Duration

	// BackoffMultiplier scales the cooldown after each failed probe.
	// Default: 2.
	BackoffMultiplier float64

	// OnStateChange, if set, is called after every state transition, on the
	// goroutine that caused it (the cooldown timer's for open → half_open).
	OnStateChange func(from, to State)
}

// CircuitBreaker implements a three-state breaker with a sliding failure
// window. The open-state cooldown is driven by a timer (scheduled with
// uniform ±15% jitter), so the half_open transition happens without traffic.
//
// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	name          string
	threshold     int
	window        time.Duration
	baseCooldown  time.Duration
	maxCooldown   time.Duration
	multiplier    float64
	onStateChange func(from, to State)

	mu            sync.Mutex
	state         State
	failures      []time.Time
	cooldown      time.Duration
	probeInFlight bool
	timer         *time.Timer
	stopped       bool
}

// NewCircuitBreaker creates a [CircuitBreaker] in the closed state.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Second
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = 120 * time.Second
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		threshold:     cfg.FailureThreshold,
		window:        cfg.Window,
		baseCooldown:  cfg.Cooldown,
		maxCooldown:   cfg.MaxCooldown,
		multiplier:    cfg.BackoffMultiplier,
		onStateChange: cfg.OnStateChange,
		state:         StateClosed,
		cooldown:      cfg.Cooldown,
	}
}

// CanRequest reports whether a call may be attempted right now. In the closed
// state it always returns true. In half_open it returns true exactly once
// (the recovery probe) until RecordSuccess or RecordFailure resolves the
// probe. In the open state it always returns false.
func (cb *CircuitBreaker) CanRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess informs the breaker that a permitted call succeeded. In the
// closed state it clears the failure window. A successful half_open probe
// closes the breaker and resets the cooldown to its base value.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	switch cb.state {
	case StateClosed:
		cb.failures = cb.failures[:0]
		cb.mu.Unlock()

	case StateHalfOpen:
		cb.failures = cb.failures[:0]
		cb.cooldown = cb.baseCooldown
		cb.probeInFlight = false
		cb.state = StateClosed
		cb.mu.Unlock()
		slog.Info("circuit breaker closed", "name", cb.name)
		cb.notify(StateHalfOpen, StateClosed)

	default:
		// A call that was already in flight when the breaker tripped.
		// The cooldown timer owns recovery from here.
		cb.mu.Unlock()
	}
}

// RecordFailure informs the breaker that a permitted call failed. In the
// closed state the failure joins the sliding window and trips the breaker
// open once the threshold is reached. A failed half_open probe re-opens the
// breaker with the cooldown multiplied, capped at MaxCooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	switch cb.state {
	case StateClosed:
		now := time.Now()
		cb.failures = append(cb.failures, now)
		cb.prune(now)
		if len(cb.failures) < cb.threshold {
			cb.mu.Unlock()
			return
		}
		cb.failures = cb.failures[:0]
		cb.state = StateOpen
		cb.schedule()
		wait := cb.cooldown
		cb.mu.Unlock()
		slog.Warn("circuit breaker opened",
			"name", cb.name, "cooldown", wait)
		cb.notify(StateClosed, StateOpen)

	case StateHalfOpen:
		next := time.Duration(float64(cb.cooldown) * cb.multiplier)
		if next > cb.maxCooldown {
			next = cb.maxCooldown
		}
		cb.cooldown = next
		cb.probeInFlight = false
		cb.state = StateOpen
		cb.schedule()
		cb.mu.Unlock()
		slog.Warn("circuit breaker re-opened after failed probe",
			"name", cb.name, "cooldown", next)
		cb.notify(StateHalfOpen, StateOpen)

	default:
		cb.mu.Unlock()
	}
}

// State returns the current [State] of the breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Cooldown returns the current cooldown duration. It starts at the configured
// base, grows on every failed probe, and resets on a successful one.
func (cb *CircuitBreaker) Cooldown() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.cooldown
}

// Close releases the pending cooldown timer. The breaker must not be used
// after Close.
func (cb *CircuitBreaker) Close() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stopped = true
	if cb.timer != nil {
		cb.timer.Stop()
		cb.timer = nil
	}
}

// prune drops failures older than the window. Must be called with cb.mu held.
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.window)
	keep := cb.failures[:0]
	for _, ts := range cb.failures {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	cb.failures = keep
}

// schedule arms the cooldown timer with the current jittered cooldown.
// Must be called with cb.mu held.
func (cb *CircuitBreaker) schedule() {
	if cb.timer != nil {
		cb.timer.Stop()
	}
	wait := time.Duration(float64(cb.cooldown) * (1 + jitterFraction*(2*rand.Float64()-1)))
	cb.timer = time.AfterFunc(wait, cb.cooldownExpired)
}

// cooldownExpired runs on the timer goroutine when the open cooldown elapses.
func (cb *CircuitBreaker) cooldownExpired() {
	cb.mu.Lock()
	if cb.stopped || cb.state != StateOpen {
		cb.mu.Unlock()
		return
	}
	cb.state = StateHalfOpen
	cb.probeInFlight = false
	cb.mu.Unlock()

	slog.Info("circuit breaker half_open, awaiting probe", "name", cb.name)
	cb.notify(StateOpen, StateHalfOpen)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
