package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/repository"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/security"
)

const compensationTimeout = 5 * time.Second

// CodePolicy describes one kind of out-of-band code.
type CodePolicy struct {
	Purpose     domain.CodePurpose
	TTL         time.Duration
	MaxRequests int
	Generate    func() (string, error)
}

func PhoneCodePolicy(ttl time.Duration, maxRequests int) CodePolicy {
	return CodePolicy{
		Purpose:     domain.CodePurposePhone,
		TTL:         ttl,
		MaxRequests: maxRequests,
		Generate:    func() (string, error) { return security.NewNumericCode(6) },
	}
}

func PasswordResetPolicy(ttl time.Duration, maxRequests int) CodePolicy {
	return CodePolicy{
		Purpose:     domain.CodePurposePasswordReset,
		TTL:         ttl,
		MaxRequests: maxRequests,
		Generate:    func() (string, error) { return security.NewRandomString(32) },
	}
}

// IssuedCode is a stored code that has not been delivered yet.
type IssuedCode struct {
	Code      string
	ExpiresAt time.Time
	Requests  int
}

// DeliverFunc sends an issued code to its owner.
type DeliverFunc func(ctx context.Context, code string, expiresAt time.Time) error

type VerificationCodeManager struct {
	credRepo repository.CredentialRepository
	policy   CodePolicy
	now      func() time.Time
	logger   *slog.Logger
}

func NewVerificationCodeManager(credRepo repository.CredentialRepository, policy CodePolicy, now func() time.Time, logger *slog.Logger) *VerificationCodeManager {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationCodeManager{credRepo: credRepo, policy: policy, now: now, logger: logger}
}

// Issue generates a code and stores its digest, counting the request against
// the window. The raw code is only ever returned here.
func (m *VerificationCodeManager) Issue(ctx context.Context, cred *domain.Credential) (*IssuedCode, error) {
	code, err := m.policy.Generate()
	if err != nil {
		return nil, autherr.Internal(err)
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.policy.TTL)
	digest := security.DigestCode(code)
	requests, err := m.credRepo.StartCodeRequest(ctx, cred.UserID, m.policy.Purpose, digest, now, expiresAt, m.policy.MaxRequests)
	if err != nil {
		if errors.Is(err, repository.ErrLimitReached) {
			m.record(ctx, "rate_limited")
			return nil, autherr.ErrRateLimited
		}
		return nil, storeError(err)
	}
	cred.SetSlot(m.policy.Purpose, domain.CodeSlot{Digest: &digest, ExpiresAt: &expiresAt, Attempts: requests})
	m.record(ctx, "issued")
	return &IssuedCode{Code: code, ExpiresAt: expiresAt, Requests: requests}, nil
}

// Rollback gives back the request counted by Issue. It runs detached from the
// caller's cancellation so an aborted request still undoes its increment.
func (m *VerificationCodeManager) Rollback(ctx context.Context, cred *domain.Credential, issued *IssuedCode) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	err := m.credRepo.RollbackCodeRequest(ctx, cred.UserID, m.policy.Purpose, security.DigestCode(issued.Code))
	if err != nil {
		observability.RecordCompensation(ctx, string(m.policy.Purpose)+"_rollback", "error")
		m.logger.Error("verification code rollback failed", "user_id", cred.UserID, "purpose", m.policy.Purpose, "error", err)
		return err
	}
	observability.RecordCompensation(ctx, string(m.policy.Purpose)+"_rollback", "success")
	return nil
}

// Request issues a code and hands it to deliver. When delivery fails the
// request is rolled back and the failure is reported as EXTERNAL_SERVICE_ERROR.
func (m *VerificationCodeManager) Request(ctx context.Context, cred *domain.Credential, deliver DeliverFunc) error {
	issued, err := m.Issue(ctx, cred)
	if err != nil {
		return err
	}
	if err := deliver(ctx, issued.Code, issued.ExpiresAt); err != nil {
		m.record(ctx, "delivery_failed")
		m.logger.Warn("verification code delivery failed", "user_id", cred.UserID, "purpose", m.policy.Purpose, "error", err)
		_ = m.Rollback(ctx, cred, issued)
		var typed *autherr.Error
		if errors.As(err, &typed) {
			return err
		}
		return autherr.External(err)
	}
	m.logger.Info("verification code issued", "user_id", cred.UserID, "purpose", m.policy.Purpose, "expires_at", issued.ExpiresAt)
	return nil
}

// Match checks submitted against the stored code without spending it and
// returns the stored digest. An expired code is cleared. The caller must spend
// the digest itself, normally in the same statement as the change it allows.
func (m *VerificationCodeManager) Match(ctx context.Context, cred *domain.Credential, submitted string) (string, error) {
	slot := cred.Slot(m.policy.Purpose)
	if slot.Digest == nil || *slot.Digest == "" {
		m.record(ctx, "not_requested")
		return "", autherr.ErrNoCodeRequested
	}
	if slot.ExpiresAt == nil || m.now().After(*slot.ExpiresAt) {
		if err := m.credRepo.ClearCode(ctx, cred.UserID, m.policy.Purpose); err != nil {
			return "", storeError(err)
		}
		cred.SetSlot(m.policy.Purpose, domain.CodeSlot{Attempts: slot.Attempts})
		m.record(ctx, "expired")
		return "", autherr.ErrCodeExpired
	}
	if !security.ConstantTimeEqual(security.DigestCode(submitted), *slot.Digest) {
		m.record(ctx, "mismatch")
		return "", autherr.ErrCodeMismatch
	}
	return *slot.Digest, nil
}

// Spent records the outcome of spending a matched code. ErrConflict from the
// store means another request spent or replaced it first.
func (m *VerificationCodeManager) Spent(ctx context.Context, cred *domain.Credential, err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		m.record(ctx, "superseded")
		return autherr.ErrNoCodeRequested
	case err != nil:
		return storeError(err)
	}
	cred.SetSlot(m.policy.Purpose, domain.CodeSlot{})
	m.record(ctx, "verified")
	return nil
}

// Verify checks submitted and spends the code on a match. A mismatch leaves
// the stored code and counter as they are.
func (m *VerificationCodeManager) Verify(ctx context.Context, cred *domain.Credential, submitted string) error {
	digest, err := m.Match(ctx, cred, submitted)
	if err != nil {
		return err
	}
	return m.Spent(ctx, cred, m.credRepo.ConsumeCode(ctx, cred.UserID, m.policy.Purpose, digest))
}

func (m *VerificationCodeManager) record(ctx context.Context, outcome string) {
	observability.RecordVerificationCodeEvent(ctx, string(m.policy.Purpose), outcome)
}
