package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/repository"
)

type LockoutPolicy struct {
	credRepo    repository.CredentialRepository
	maxAttempts int
	duration    time.Duration
	logger      *slog.Logger
}

func NewLockoutPolicy(credRepo repository.CredentialRepository, maxAttempts int, duration time.Duration, logger *slog.Logger) *LockoutPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LockoutPolicy{credRepo: credRepo, maxAttempts: maxAttempts, duration: duration, logger: logger}
}

func (p *LockoutPolicy) IsLocked(cred *domain.Credential, now time.Time) bool {
	return cred.LockedUntil != nil && now.Before(*cred.LockedUntil)
}

// Check reports whether cred is locked at now. An elapsed lock leaves the
// counter in place: the next failure re-locks at once, and only a successful
// login or an explicit unlock clears it.
func (p *LockoutPolicy) Check(ctx context.Context, cred *domain.Credential, now time.Time) (bool, error) {
	if p.IsLocked(cred, now) {
		observability.RecordLockoutEvent(ctx, "rejected")
		return true, nil
	}
	if cred.LockedUntil != nil {
		observability.RecordLockoutEvent(ctx, "expired")
	}
	return false, nil
}

// RecordFailure counts one failed password check at the store and reports
// whether that failure locked the account.
func (p *LockoutPolicy) RecordFailure(ctx context.Context, cred *domain.Credential, now time.Time) (bool, error) {
	updated, err := p.credRepo.IncrementFailedLogin(ctx, cred.UserID, p.maxAttempts, now.Add(p.duration))
	if err != nil {
		return false, storeError(err)
	}
	cred.FailedLoginAttempts = updated.FailedLoginAttempts
	cred.LockedUntil = updated.LockedUntil
	observability.RecordLockoutEvent(ctx, "failure")
	if p.IsLocked(cred, now) {
		observability.RecordLockoutEvent(ctx, "locked")
		p.logger.Warn("account locked", "user_id", cred.UserID, "failed_attempts", cred.FailedLoginAttempts, "locked_until", cred.LockedUntil)
		return true, nil
	}
	return false, nil
}

func (p *LockoutPolicy) RecordSuccess(ctx context.Context, cred *domain.Credential) error {
	if cred.FailedLoginAttempts == 0 && cred.LockedUntil == nil {
		return nil
	}
	if err := p.credRepo.ResetLockout(ctx, cred.UserID); err != nil {
		return storeError(err)
	}
	cred.FailedLoginAttempts = 0
	cred.LockedUntil = nil
	return nil
}

func (p *LockoutPolicy) Unlock(ctx context.Context, userID string) error {
	if err := p.credRepo.ResetLockout(ctx, userID); err != nil {
		if isNotFound(err) {
			return autherr.ErrUserNotFound
		}
		return storeError(err)
	}
	observability.RecordLockoutEvent(ctx, "unlocked")
	p.logger.Info("account unlocked", "user_id", userID)
	return nil
}
