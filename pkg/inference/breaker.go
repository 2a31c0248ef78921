// Package inference routes semantic AI requests to a local or cloud backend
// through a circuit breaker and a bounded-concurrency request queue, with
// multi-stage fallback for text generation.
package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/logging"
)

// CircuitState is the per-endpoint breaker position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"    // CircuitClosed passes calls through and counts failures.
	CircuitOpen     CircuitState = "open"      // CircuitOpen rejects calls until the cooldown elapses.
	CircuitHalfOpen CircuitState = "half_open" // CircuitHalfOpen admits exactly one probe call.
)

// ErrCircuitOpen is returned without invoking the wrapped function while an
// endpoint is cooling down.
var ErrCircuitOpen = errors.New("inference: circuit open")

// BreakerConfig tunes the failure-isolation behavior.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that trips an
	// endpoint from closed to open. Defaults to 5.
	FailureThreshold int

	// Cooldown is the initial open-state duration before a probe is allowed.
	// Defaults to 30s.
	Cooldown time.Duration

	// MaxCooldown caps the backoff growth applied each time a probe fails.
	// Defaults to 5m.
	MaxCooldown time.Duration

	// BackoffFactor multiplies the cooldown after a failed probe. Defaults
	// to 2.
	BackoffFactor float64

	// OnStateChange, when set, observes every transition an endpoint makes.
	// It is called outside the breaker's lock and must not block.
	OnStateChange func(endpoint string, to CircuitState)
}

func (c *BreakerConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 5 * time.Minute
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2
	}
}

// endpointState is the live breaker state for one endpoint.
type endpointState struct {
	state       CircuitState
	failures    int
	lastFailure time.Time
	openedAt    time.Time
	cooldown    time.Duration
	probing     bool // a half-open probe is in flight
}

// EndpointStatus is the externally visible health of one endpoint.
type EndpointStatus struct {
	Endpoint    string       `json:"endpoint"`
	State       CircuitState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure time.Time    `json:"last_failure,omitempty"`
	Cooldown    time.Duration `json:"cooldown,omitempty"`
}

// CircuitBreaker isolates failing inference endpoints. Each endpoint key gets
// its own independent state machine.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *logging.Logger
	clock  func() time.Time

	mu        sync.Mutex
	endpoints map[string]*endpointState
}

// NewCircuitBreaker creates a breaker with the given config.
func NewCircuitBreaker(cfg BreakerConfig, logger *logging.Logger) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{
		cfg:       cfg,
		logger:    logger,
		clock:     time.Now,
		endpoints: make(map[string]*endpointState),
	}
}

// Execute runs fn under the breaker for the given endpoint.
//
// Closed: fn runs; FailureThreshold consecutive failures trip to open.
// Open: fails immediately with ErrCircuitOpen until the cooldown elapses,
// then moves to half-open. Half-open: exactly one probe is admitted; success
// resets to closed and clears the failure count, failure re-opens with the
// cooldown grown by BackoffFactor.
func (b *CircuitBreaker) Execute(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	if err := b.admit(endpoint); err != nil {
		return err
	}

	err := fn(ctx)
	b.report(endpoint, err == nil)
	return err
}

// admit decides whether a call may proceed and advances open -> half-open.
func (b *CircuitBreaker) admit(endpoint string) error {
	var to CircuitState
	defer func() { b.notify(endpoint, to) }()

	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateLocked(endpoint)
	switch st.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if b.clock().Sub(st.openedAt) < st.cooldown {
			return fmt.Errorf("%w: endpoint %q cooling down for %s", ErrCircuitOpen, endpoint, st.cooldown)
		}
		st.state = CircuitHalfOpen
		st.probing = true
		to = CircuitHalfOpen
		if b.logger != nil {
			b.logger.Infof("circuit for %q half-open, admitting probe", endpoint)
		}
		return nil

	case CircuitHalfOpen:
		if st.probing {
			return fmt.Errorf("%w: endpoint %q probe already in flight", ErrCircuitOpen, endpoint)
		}
		st.probing = true
		return nil
	}
	return nil
}

// report feeds a call outcome back into the state machine.
func (b *CircuitBreaker) report(endpoint string, success bool) {
	var to CircuitState
	defer func() { b.notify(endpoint, to) }()

	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateLocked(endpoint)
	switch st.state {
	case CircuitHalfOpen:
		st.probing = false
		if success {
			st.state = CircuitClosed
			st.failures = 0
			st.cooldown = b.cfg.Cooldown
			to = CircuitClosed
			if b.logger != nil {
				b.logger.Infof("circuit for %q closed after successful probe", endpoint)
			}
			return
		}
		// Failed probe: back to open with grown backoff.
		st.state = CircuitOpen
		st.openedAt = b.clock()
		st.lastFailure = st.openedAt
		st.cooldown = time.Duration(float64(st.cooldown) * b.cfg.BackoffFactor)
		if st.cooldown > b.cfg.MaxCooldown {
			st.cooldown = b.cfg.MaxCooldown
		}
		to = CircuitOpen
		if b.logger != nil {
			b.logger.Warnf("circuit for %q re-opened, cooldown now %s", endpoint, st.cooldown)
		}

	case CircuitClosed:
		if success {
			st.failures = 0
			return
		}
		st.failures++
		st.lastFailure = b.clock()
		if st.failures >= b.cfg.FailureThreshold {
			st.state = CircuitOpen
			st.openedAt = b.clock()
			to = CircuitOpen
			if b.logger != nil {
				b.logger.Warnf("circuit for %q opened after %d consecutive failures", endpoint, st.failures)
			}
		}
	}
}

// notify fires the transition hook. Callers arrange for it to run after the
// lock is released; a zero-value state means no transition happened.
func (b *CircuitBreaker) notify(endpoint string, to CircuitState) {
	if to != "" && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(endpoint, to)
	}
}

// stateLocked returns the state for endpoint, creating it closed. Caller must
// hold b.mu.
func (b *CircuitBreaker) stateLocked(endpoint string) *endpointState {
	st, ok := b.endpoints[endpoint]
	if !ok {
		st = &endpointState{state: CircuitClosed, cooldown: b.cfg.Cooldown}
		b.endpoints[endpoint] = st
	}
	return st
}

// State returns the current circuit state for an endpoint.
func (b *CircuitBreaker) State(endpoint string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked(endpoint).state
}

// Status returns the health view for every known endpoint.
func (b *CircuitBreaker) Status() []EndpointStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	statuses := make([]EndpointStatus, 0, len(b.endpoints))
	for name, st := range b.endpoints {
		statuses = append(statuses, EndpointStatus{
			Endpoint:    name,
			State:       st.state,
			Failures:    st.failures,
			LastFailure: st.lastFailure,
			Cooldown:    st.cooldown,
		})
	}
	return statuses
}

// Reset returns an endpoint to closed with a cleared failure count.
func (b *CircuitBreaker) Reset(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.stateLocked(endpoint)
	st.state = CircuitClosed
	st.failures = 0
	st.probing = false
	st.cooldown = b.cfg.Cooldown
}
