package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"sort"
	"sync"
	"time"

	"storygen/backend/pkg/logger"
	"storygen/backend/pkg/resilience"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Component is the last observed state of one dependency.
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical,omitempty"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one dependency. It must honor ctx.
type Check func(ctx context.Context) (Status, string, error)

// Report is the body served on the health endpoints. Status is "ok" when
// everything is up, "degraded" when an optional capability is missing and
// "down" when a critical component is down.
type Report struct {
	Status     string                `json:"status"`
	Timestamp  time.Time             `json:"timestamp"`
	Components map[string]*Component `json:"components"`
}

type registration struct {
	check    Check
	critical bool
}

// Checker probes dependencies on a period and caches the results, so the
// HTTP handler never blocks on an upstream.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]registration
	components   map[string]*Component
	checkPeriod  time.Duration
	checkTimeout time.Duration
	log          *logger.Logger
}

// NewChecker creates a checker that runs every checkPeriod once started.
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	return &Checker{
		checks:       make(map[string]registration),
		components:   make(map[string]*Component),
		checkPeriod:  checkPeriod,
		checkTimeout: 5 * time.Second,
		log:          log,
	}
}

// RegisterCheck adds an optional component. Its failure degrades the
// service but never takes it down.
func (c *Checker) RegisterCheck(name string, check Check) {
	c.register(name, check, false)
}

// RegisterCriticalCheck adds a component the service cannot run without.
func (c *Checker) RegisterCriticalCheck(name string, check Check) {
	c.register(name, check, true)
}

func (c *Checker) register(name string, check Check, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = registration{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Critical:    critical,
		Description: "Not checked yet",
	}
}

// RunChecks executes every check concurrently, each under its own timeout,
// and records the results.
func (c *Checker) RunChecks() {
	c.mu.RLock()
	pending := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		pending[name] = reg
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for name, reg := range pending {
		wg.Add(1)
		go func(name string, reg registration) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.checkTimeout)
			defer cancel()

			status, description, err := reg.check(ctx)
			c.record(name, status, description, err)
		}(name, reg)
	}
	wg.Wait()
}

func (c *Checker) record(name string, status Status, description string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	component, ok := c.components[name]
	if !ok {
		return
	}
	component.Status = status
	component.Description = description
	component.LastChecked = time.Now()
	component.Error = ""
	if err != nil {
		component.Error = err.Error()
	}

	switch {
	case status == StatusDown && component.Critical:
		c.log.Error("Critical component down", "component", name, "error", component.Error)
	case status != StatusUp:
		c.log.Warn("Component not fully available", "component", name, "status", string(status), "error", component.Error)
	default:
		c.log.Debug("Health check completed", "component", name)
	}
}

// Start runs the checks immediately and then every period until ctx ends.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks()

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunChecks()
			}
		}
	}()
}

// GetStatus returns a copy of every component.
func (c *Checker) GetStatus() map[string]*Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*Component, len(c.components))
	for name, component := range c.components {
		cp := *component
		out[name] = &cp
	}
	return out
}

// IsSystemHealthy is false when any critical component is down.
func (c *Checker) IsSystemHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// Report summarizes the cached results.
func (c *Checker) Report() Report {
	components := c.GetStatus()
	overall := "ok"
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		comp := components[name]
		if comp.Critical && comp.Status == StatusDown {
			overall = "down"
			break
		}
		if comp.Status != StatusUp {
			overall = "degraded"
		}
	}
	return Report{Status: overall, Timestamp: time.Now(), Components: components}
}

// HTTPHandler serves the report: 503 when down, 200 otherwise.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Report()

		w.Header().Set("Content-Type", "application/json")
		if report.Status == "down" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		if err := json.NewEncoder(w).Encode(report); err != nil {
			c.log.LogError(err, "Failed to encode health check response")
		}
	}
}

// RegisterDatabaseCheck registers the critical "database" component.
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCriticalCheck("database", func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterAPICheck probes an upstream HTTP endpoint with GET.
func (c *Checker) RegisterAPICheck(name, endpoint string, client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}

	c.RegisterCheck("api-"+name, func(ctx context.Context) (Status, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return StatusDown, "Invalid endpoint", err
		}
		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return StatusDown, "API request failed", err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return StatusDegraded, fmt.Sprintf("API returned status %d", resp.StatusCode),
				fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return StatusUp, fmt.Sprintf("API is responding (latency: %s)", time.Since(start).Round(time.Millisecond)), nil
	})
}

// RegisterBinaryCheck reports whether an executable is resolvable on PATH.
func (c *Checker) RegisterBinaryCheck(name, binary string) {
	c.RegisterCheck(name, func(context.Context) (Status, string, error) {
		path, err := exec.LookPath(binary)
		if err != nil {
			return StatusDegraded, fmt.Sprintf("%s not found on PATH", binary), err
		}
		return StatusUp, "Found at " + path, nil
	})
}

// RegisterCapabilityCheck reports an optional capability that is either
// configured or not.
func (c *Checker) RegisterCapabilityCheck(name string, available func() bool, hint string) {
	c.RegisterCheck(name, func(context.Context) (Status, string, error) {
		if !available() {
			return StatusDegraded, hint, nil
		}
		return StatusUp, "Configured", nil
	})
}

// RegisterBreakerCheck reports the state of an upstream circuit breaker.
func (c *Checker) RegisterBreakerCheck(name string, breaker *resilience.CircuitBreaker) {
	c.RegisterCheck(name, func(context.Context) (Status, string, error) {
		snap := breaker.Snapshot()
		desc := fmt.Sprintf("circuit %s, %d/%d calls failed", snap.State, snap.TotalFailures, snap.TotalCalls)
		switch snap.State {
		case resilience.StateOpen:
			return StatusDegraded, desc, fmt.Errorf("circuit %s is open", snap.Name)
		case resilience.StateHalfOpen:
			return StatusDegraded, desc, nil
		}
		return StatusUp, desc, nil
	})
}
