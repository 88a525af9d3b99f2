package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"storygen/backend/pkg/logger"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

// State is the position of a breaker.
type State string

const (
	// StateClosed lets every call through.
	StateClosed State = "closed"
	// StateOpen short-circuits every call until the cool-down elapses.
	StateOpen State = "open"
	// StateHalfOpen lets probe calls through to decide whether to close.
	StateHalfOpen State = "half-open"
)

// Config holds the thresholds of a breaker.
type Config struct {
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint
	// SuccessThreshold half-open successes close it again.
	SuccessThreshold uint
	// CoolDown is how long the circuit stays open before probing.
	CoolDown time.Duration
}

// DefaultConfig suits a slow upstream such as an image or speech model.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		CoolDown:         30 * time.Second,
	}
}

// Snapshot is a point-in-time view of a breaker for health reporting.
type Snapshot struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	TotalCalls      uint64    `json:"total_calls"`
	TotalFailures   uint64    `json:"total_failures"`
	OpenCount       uint64    `json:"open_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// CircuitBreaker guards calls to one upstream collaborator. It never retries:
// a failing call is reported to the caller as-is.
type CircuitBreaker struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu           sync.Mutex
	state        State
	failures     uint
	successes    uint
	reopenAt     time.Time
	totalCalls   uint64
	totalFails   uint64
	openCount    uint64
	lastFailedAt time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	return &CircuitBreaker{cfg: cfg, log: log, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the circuit is open. A cancelled context is not
// counted as an upstream failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		cb.log.Warn("Circuit breaker rejected call", "name", cb.cfg.Name)
		return ErrCircuitOpen
	}

	start := cb.now()
	err := fn(ctx)
	if err != nil && ctx.Err() == nil {
		cb.recordFailure()
		cb.log.Warn("Circuit breaker recorded failure",
			"name", cb.cfg.Name,
			"error", err.Error(),
			"duration", cb.now().Sub(start).String(),
		)
		return err
	}
	if err != nil {
		return err
	}

	cb.recordSuccess()
	return nil
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot reports counters for health output.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:            cb.cfg.Name,
		State:           cb.state,
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFails,
		OpenCount:       cb.openCount,
		LastFailureTime: cb.lastFailedAt,
	}
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.reopenAt) {
			return false
		}
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.log.Info("Circuit breaker half-open", "name", cb.cfg.Name)
	case StateHalfOpen:
		if cb.successes >= cb.cfg.SuccessThreshold {
			return false
		}
	}
	cb.totalCalls++
	return true
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.log.Info("Circuit breaker closed", "name", cb.cfg.Name)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFails++
	cb.lastFailedAt = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.open()
		}
	case StateHalfOpen:
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openCount++
	cb.reopenAt = cb.now().Add(cb.cfg.CoolDown)
	cb.log.Info("Circuit breaker opened",
		"name", cb.cfg.Name,
		"failures", cb.failures,
		"reopen_at", cb.reopenAt.Format(time.RFC3339),
	)
}
