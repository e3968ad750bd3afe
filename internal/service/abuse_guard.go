package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/security"
)

// AbuseScope separates the counters of different public endpoints.
type AbuseScope string

const (
	AbuseScopeLogin         AbuseScope = "login"
	AbuseScopePasswordReset AbuseScope = "password_reset"
	AbuseScopePhoneCode     AbuseScope = "phone_code"
)

// AbusePolicy is an exponential cooldown: FreeAttempts failures cost nothing,
// then each failure waits BaseDelay*Multiplier^n, capped at MaxDelay. Counters
// are forgotten after ResetWindow without failures.
type AbusePolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

// AbuseGuard throttles repeated failures per subject (email or phone) and
// per client IP. The returned duration is how long the caller must wait.
type AbuseGuard interface {
	Check(ctx context.Context, scope AbuseScope, subject, ip string) (time.Duration, error)
	RegisterFailure(ctx context.Context, scope AbuseScope, subject, ip string) (time.Duration, error)
	Reset(ctx context.Context, scope AbuseScope, subject, ip string) error
}

type NoopAbuseGuard struct{}

func (NoopAbuseGuard) Check(context.Context, AbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopAbuseGuard) RegisterFailure(context.Context, AbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopAbuseGuard) Reset(context.Context, AbuseScope, string, string) error { return nil }

func normalizeAbusePolicy(p AbusePolicy) AbusePolicy {
	if p.FreeAttempts < 0 {
		p.FreeAttempts = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = 5 * time.Minute
	}
	if p.ResetWindow <= 0 {
		p.ResetWindow = 30 * time.Minute
	}
	return p
}

func (p AbusePolicy) delay(failures int) time.Duration {
	if failures <= p.FreeAttempts {
		return 0
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(failures-p.FreeAttempts-1)))
	if d > p.MaxDelay || d < 0 {
		return p.MaxDelay
	}
	return d
}

// abuseDimensions returns the subject and IP keys for one request. Values are
// digested so raw emails and addresses never become map or Redis keys.
func abuseDimensions(scope AbuseScope, subject, ip string) [2]string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if subject == "" {
		subject = "anonymous"
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return [2]string{
		string(scope) + ":subject:" + security.DigestCode(subject),
		string(scope) + ":ip:" + security.DigestCode(ip),
	}
}

type abuseCounter struct {
	failures      int
	lastFailure   time.Time
	cooldownUntil time.Time
}

// MemoryAbuseGuard keeps counters in process. Suitable for a single replica.
type MemoryAbuseGuard struct {
	mu       sync.Mutex
	policy   AbusePolicy
	now      func() time.Time
	counters map[string]abuseCounter
}

func NewMemoryAbuseGuard(policy AbusePolicy, now func() time.Time) *MemoryAbuseGuard {
	if now == nil {
		now = time.Now
	}
	return &MemoryAbuseGuard{policy: normalizeAbusePolicy(policy), now: now, counters: make(map[string]abuseCounter)}
}

func (g *MemoryAbuseGuard) Check(ctx context.Context, scope AbuseScope, subject, ip string) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	var wait time.Duration
	for _, key := range abuseDimensions(scope, subject, ip) {
		wait = max(wait, g.remainingLocked(key, now))
	}
	recordAbuseCheck(ctx, scope, wait)
	return wait, nil
}

func (g *MemoryAbuseGuard) RegisterFailure(ctx context.Context, scope AbuseScope, subject, ip string) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	var wait time.Duration
	for _, key := range abuseDimensions(scope, subject, ip) {
		c := g.counters[key]
		if c.lastFailure.IsZero() || now.Sub(c.lastFailure) > g.policy.ResetWindow {
			c.failures = 0
		}
		c.failures++
		c.lastFailure = now
		d := g.policy.delay(c.failures)
		c.cooldownUntil = now.Add(d)
		g.counters[key] = c
		wait = max(wait, d)
	}
	recordAbuseFailure(ctx, scope, wait)
	return wait, nil
}

func (g *MemoryAbuseGuard) Reset(ctx context.Context, scope AbuseScope, subject, ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range abuseDimensions(scope, subject, ip) {
		delete(g.counters, key)
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "ok")
	return nil
}

func (g *MemoryAbuseGuard) remainingLocked(key string, now time.Time) time.Duration {
	c, ok := g.counters[key]
	if !ok {
		return 0
	}
	if now.Sub(c.lastFailure) > g.policy.ResetWindow {
		delete(g.counters, key)
		return 0
	}
	if !now.Before(c.cooldownUntil) {
		return 0
	}
	return c.cooldownUntil.Sub(now)
}

func recordAbuseCheck(ctx context.Context, scope AbuseScope, wait time.Duration) {
	if wait > 0 {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "blocked")
		observability.RecordAuthAbuseCooldown(ctx, string(scope), "check", wait)
		return
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "allowed")
}

func recordAbuseFailure(ctx context.Context, scope AbuseScope, wait time.Duration) {
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "failure", "recorded")
	if wait > 0 {
		observability.RecordAuthAbuseCooldown(ctx, string(scope), "failure", wait)
	}
}
