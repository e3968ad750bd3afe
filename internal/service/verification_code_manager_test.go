package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/repository"
)

func TestVerificationCodeManagerMismatchKeepsState(t *testing.T) {
	fx := newAuthServiceFixture(t)
	ctx := context.Background()
	identity := fx.register(t, "vc@x.com", "")
	mgr := NewVerificationCodeManager(fx.creds, PhoneCodePolicy(10*time.Minute, 3), fx.clock.Now, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cred := fx.credential(t, identity.ID)
	issued, err := mgr.Issue(ctx, cred)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Requests != 1 || !issued.ExpiresAt.Equal(fx.clock.Now().Add(10*time.Minute)) {
		t.Fatalf("unexpected issued code %+v", issued)
	}

	for i := 0; i < 3; i++ {
		if err := mgr.Verify(ctx, cred, "999999x"); !errors.Is(err, autherr.ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
	}
	stored := fx.credential(t, identity.ID)
	if stored.PhoneVerificationAttempts != 1 || stored.PhoneVerificationCode == nil {
		t.Fatalf("mismatch must leave state untouched, got attempts=%d code=%v", stored.PhoneVerificationAttempts, stored.PhoneVerificationCode)
	}

	if err := mgr.Verify(ctx, stored, issued.Code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	after := fx.credential(t, identity.ID)
	if after.PhoneVerificationCode != nil || after.PhoneVerificationExpiresAt != nil || after.PhoneVerificationAttempts != 0 {
		t.Fatalf("expected code fields cleared, got %+v", after)
	}
}

func TestVerificationCodeManagerStaleCopyCannotConsumeTwice(t *testing.T) {
	fx := newAuthServiceFixture(t)
	ctx := context.Background()
	identity := fx.register(t, "stale@x.com", "")
	mgr := NewVerificationCodeManager(fx.creds, PhoneCodePolicy(10*time.Minute, 3), fx.clock.Now, nil)

	issued, err := mgr.Issue(ctx, fx.credential(t, identity.ID))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	a := fx.credential(t, identity.ID)
	b := fx.credential(t, identity.ID)
	if err := mgr.Verify(ctx, a, issued.Code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if err := mgr.Verify(ctx, b, issued.Code); !errors.Is(err, autherr.ErrNoCodeRequested) {
		t.Fatalf("second verify from stale copy: expected no code requested, got %v", err)
	}
}

func TestVerificationCodeManagerRollbackSurvivesCancelledContext(t *testing.T) {
	fx := newAuthServiceFixture(t)
	identity := fx.register(t, "cancel@x.com", "")
	mgr := NewVerificationCodeManager(fx.creds, PasswordResetPolicy(time.Hour, 3), fx.clock.Now, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := mgr.Request(ctx, fx.credential(t, identity.ID), func(context.Context, string, time.Time) error {
		cancel()
		return context.Canceled
	})
	if !autherr.IsCode(err, autherr.CodeExternalServiceError) {
		t.Fatalf("expected external service error, got %v", err)
	}
	cred := fx.credential(t, identity.ID)
	if cred.PasswordResetAttempts != 0 || cred.PasswordResetToken != nil {
		t.Fatalf("expected rollback despite cancellation, got attempts=%d token=%v", cred.PasswordResetAttempts, cred.PasswordResetToken)
	}
}

func TestVerificationCodeManagerMatchLeavesCodeForCaller(t *testing.T) {
	fx := newAuthServiceFixture(t)
	ctx := context.Background()
	identity := fx.register(t, "match@x.com", "")
	mgr := NewVerificationCodeManager(fx.creds, PasswordResetPolicy(time.Hour, 3), fx.clock.Now, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cred := fx.credential(t, identity.ID)
	issued, err := mgr.Issue(ctx, cred)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	digest, err := mgr.Match(ctx, cred, issued.Code)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	stored := fx.credential(t, identity.ID)
	if stored.PasswordResetToken == nil || *stored.PasswordResetToken != digest {
		t.Fatalf("match must not spend the code, got %v", stored.PasswordResetToken)
	}

	if err := mgr.Spent(ctx, cred, repository.ErrConflict); !errors.Is(err, autherr.ErrNoCodeRequested) {
		t.Fatalf("expected a lost spend to read as no code requested, got %v", err)
	}
	if err := mgr.Spent(ctx, cred, nil); err != nil {
		t.Fatalf("spent: %v", err)
	}
	if cred.PasswordResetToken != nil {
		t.Fatal("expected in-memory slot cleared after spend")
	}
}
