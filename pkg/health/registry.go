// Package health runs named connectivity checks against storage adapters and
// event bus producers and aggregates their results.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string        `json:"name" yaml:"name"`
	Status    Status        `json:"status" yaml:"status"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Checkable is implemented by every component with a connectivity probe.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

type entry struct {
	target  Checkable
	timeout time.Duration
}

// Registry manages a collection of named checks.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry), now: time.Now}
}

// Register adds target under name, replacing any earlier registration. A
// zero timeout defaults to five seconds.
func (r *Registry) Register(name string, target Checkable, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{target: target, timeout: timeout}
}

// Check runs all registered checks concurrently. Results are ordered by name.
func (r *Registry) Check(ctx context.Context) AggregatedResult {
	type named struct {
		name string
		entry
	}
	r.mu.RLock()
	targets := make([]named, 0, len(r.entries))
	for name, e := range r.entries {
		targets = append(targets, named{name: name, entry: e})
	}
	r.mu.RUnlock()
	sort.Slice(targets, func(i, j int) bool { return targets[i].name < targets[j].name })

	start := r.now()
	results := make([]CheckResult, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t named) {
			defer wg.Done()
			results[i] = r.run(ctx, t.name, t.entry)
		}(i, t)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, res := range results {
		if res.Status == StatusUnhealthy {
			overall = StatusUnhealthy
			break
		}
	}
	return AggregatedResult{
		Status:    overall,
		Checks:    results,
		Timestamp: r.now(),
		Duration:  r.now().Sub(start),
	}
}

func (r *Registry) run(ctx context.Context, name string, e entry) CheckResult {
	start := r.now()
	checkCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res := CheckResult{Name: name, Status: StatusHealthy}
	if err := e.target.HealthCheck(checkCtx); err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
	}
	res.Timestamp = r.now()
	res.Duration = res.Timestamp.Sub(start)
	return res
}

// AggregatedResult represents the aggregated result of all health checks
type AggregatedResult struct {
	Status    Status        `json:"status" yaml:"status"`
	Checks    []CheckResult `json:"checks" yaml:"checks"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// IsHealthy returns true if the overall status is healthy
func (r AggregatedResult) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}
