package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckFunc adapts a ping-style function into a named Checker.
type CheckFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (c CheckFunc) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.Fn(ctx)
	res := CheckResult{Name: c.Name, Healthy: err == nil, Latency: time.Since(start).String()}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// ProbeRunner runs all checks concurrently under a shared timeout. Results
// are reused for cacheTTL so frequent readiness polls do not hammer the
// dependencies.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker

	mu       sync.Mutex
	cachedAt time.Time
	cached   []CheckResult
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	results := p.results(ctx)
	for _, r := range results {
		if !r.Healthy {
			return false, results
		}
	}
	return true, results
}

func (p *ProbeRunner) results(ctx context.Context) []CheckResult {
	if p.cacheTTL > 0 {
		p.mu.Lock()
		if p.cached != nil && time.Since(p.cachedAt) < p.cacheTTL {
			out := append([]CheckResult(nil), p.cached...)
			p.mu.Unlock()
			return out
		}
		p.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]CheckResult, len(p.checkers))
	var g errgroup.Group
	for i, c := range p.checkers {
		g.Go(func() error {
			results[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if p.cacheTTL > 0 {
		p.mu.Lock()
		p.cached = append([]CheckResult(nil), results...)
		p.cachedAt = time.Now()
		p.mu.Unlock()
	}
	return results
}
