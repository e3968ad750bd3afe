// Package health runs readiness checks against the identity and credential
// stores and the optional Redis instance.
package health

import (
	"context"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"

	"golang.org/x/sync/errgroup"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckRunner runs every checker in parallel, each under its own timeout.
type CheckRunner struct {
	checkers    []Checker
	timeout     time.Duration
	gracePeriod time.Duration
	startedAt   time.Time
	now         func() time.Time
}

// NewCheckRunner drops nil checkers so optional dependencies can be passed unconditionally.
func NewCheckRunner(timeout, gracePeriod time.Duration, checkers ...Checker) *CheckRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	active := make([]Checker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			active = append(active, c)
		}
	}
	return &CheckRunner{
		checkers:    active,
		timeout:     timeout,
		gracePeriod: gracePeriod,
		startedAt:   time.Now(),
		now:         time.Now,
	}
}

func (r *CheckRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	if r == nil {
		return true, nil
	}
	if r.gracePeriod > 0 && r.now().Sub(r.startedAt) < r.gracePeriod {
		return false, []CheckResult{{Name: "startup_grace", Healthy: false, Error: "startup grace period active"}}
	}

	results := make([]CheckResult, len(r.checkers))
	var g errgroup.Group
	for i, c := range r.checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			start := time.Now()
			res := c.Check(checkCtx)
			observability.RecordHealthCheckDuration(ctx, res.Name, time.Since(start))
			observability.RecordHealthCheckResult(ctx, res.Name, healthOutcome(res.Healthy))
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, res := range results {
		if !res.Healthy {
			ready = false
		}
	}
	return ready, results
}

func healthOutcome(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}
