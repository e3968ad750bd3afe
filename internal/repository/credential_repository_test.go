package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
)

func TestCredentialRepositoryFailedLoginLocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newRepositoryDBForTest(t, &domain.Credential{}))
	c := newCredentialForTest(t, repo)
	lockUntil := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)

	for i := 1; i <= 4; i++ {
		got, err := repo.IncrementFailedLogin(ctx, c.UserID, 5, lockUntil)
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if got.FailedLoginAttempts != i || got.LockedUntil != nil {
			t.Fatalf("attempt %d: unexpected state attempts=%d locked=%v", i, got.FailedLoginAttempts, got.LockedUntil)
		}
	}
	got, err := repo.IncrementFailedLogin(ctx, c.UserID, 5, lockUntil)
	if err != nil {
		t.Fatalf("increment 5: %v", err)
	}
	if got.FailedLoginAttempts != 5 || got.LockedUntil == nil || !got.LockedUntil.Equal(lockUntil) {
		t.Fatalf("expected lock at threshold, got attempts=%d locked=%v", got.FailedLoginAttempts, got.LockedUntil)
	}

	if err := repo.ResetLockout(ctx, c.UserID); err != nil {
		t.Fatalf("reset lockout: %v", err)
	}
	got, _ = repo.FindByUserID(ctx, c.UserID)
	if got.FailedLoginAttempts != 0 || got.LockedUntil != nil {
		t.Fatalf("expected cleared lockout, got %+v", got)
	}
}

func TestCredentialRepositoryConcurrentFailuresAreNotLost(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newRepositoryDBForTest(t, &domain.Credential{}))
	c := newCredentialForTest(t, repo)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.IncrementFailedLogin(ctx, c.UserID, 100, time.Now().Add(time.Hour))
		}()
	}
	wg.Wait()
	got, err := repo.FindByUserID(ctx, c.UserID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.FailedLoginAttempts != 8 {
		t.Fatalf("expected 8 recorded failures, got %d", got.FailedLoginAttempts)
	}
}

func TestCredentialRepositoryRefreshHashCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newRepositoryDBForTest(t, &domain.Credential{}))
	c := newCredentialForTest(t, repo)

	if err := repo.SetRefreshTokenHash(ctx, c.UserID, "h1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.SwapRefreshTokenHash(ctx, c.UserID, "h1", "h2"); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if err := repo.SwapRefreshTokenHash(ctx, c.UserID, "h1", "h3"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on stale swap, got %v", err)
	}

	cleared, err := repo.ClearRefreshTokenHash(ctx, c.UserID, "h1")
	if err != nil || cleared {
		t.Fatalf("expected stale clear to be a no-op, got cleared=%v err=%v", cleared, err)
	}
	cleared, err = repo.ClearRefreshTokenHash(ctx, c.UserID, "h2")
	if err != nil || !cleared {
		t.Fatalf("expected clear, got cleared=%v err=%v", cleared, err)
	}
	got, _ := repo.FindByUserID(ctx, c.UserID)
	if got.RefreshTokenHash != nil {
		t.Fatalf("expected nil refresh hash, got %q", *got.RefreshTokenHash)
	}
	cleared, err = repo.ClearRefreshTokenHash(ctx, c.UserID, "")
	if err != nil || cleared {
		t.Fatalf("expected nothing to clear, got cleared=%v err=%v", cleared, err)
	}
}

func TestCredentialRepositoryCodeRequestWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newRepositoryDBForTest(t, &domain.Credential{}))
	c := newCredentialForTest(t, repo)
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ttl := 10 * time.Minute

	for i := 1; i <= 3; i++ {
		now := t0.Add(time.Duration(i-1) * time.Minute)
		n, err := repo.StartCodeRequest(ctx, c.UserID, domain.CodePurposePhone, "d", now, now.Add(ttl), 3)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if n != i {
			t.Fatalf("request %d: attempts=%d", i, n)
		}
	}
	if _, err := repo.StartCodeRequest(ctx, c.UserID, domain.CodePurposePhone, "d4", t0.Add(3*time.Minute), t0.Add(13*time.Minute), 3); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected limit reached, got %v", err)
	}

	// Purposes are independent.
	if _, err := repo.StartCodeRequest(ctx, c.UserID, domain.CodePurposePasswordReset, "r", t0, t0.Add(time.Hour), 3); err != nil {
		t.Fatalf("reset request must not share the phone counter: %v", err)
	}

	// After the last code expires a new window starts at 1.
	later := t0.Add(30 * time.Minute)
	n, err := repo.StartCodeRequest(ctx, c.UserID, domain.CodePurposePhone, "d5", later, later.Add(ttl), 3)
	if err != nil {
		t.Fatalf("request after expiry: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected new window, attempts=%d", n)
	}
}

func TestCredentialRepositoryRollbackAndConsume(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newRepositoryDBForTest(t, &domain.Credential{}))
	c := newCredentialForTest(t, repo)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	if _, err := repo.StartCodeRequest(ctx, c.UserID, domain.CodePurposePhone, "first", now, now.Add(10*time.Minute), 3); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := repo.StartCodeRequest(ctx, c.UserID, domain.CodePurposePhone, "second", now, now.Add(10*time.Minute), 3); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if err := repo.RollbackCodeRequest(ctx, c.UserID, domain.CodePurposePhone, "second"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	got, _ := repo.FindByUserID(ctx, c.UserID)
	if got.PhoneVerificationAttempts != 1 || got.PhoneVerificationCode != nil {
		t.Fatalf("expected attempts=1 and undelivered code dropped, got attempts=%d code=%v", got.PhoneVerificationAttempts, got.PhoneVerificationCode)
	}

	if _, err := repo.StartCodeRequest(ctx, c.UserID, domain.CodePurposePhone, "third", now, now.Add(10*time.Minute), 3); err != nil {
		t.Fatalf("third request: %v", err)
	}
	if err := repo.ConsumeCode(ctx, c.UserID, domain.CodePurposePhone, "stale"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for wrong digest, got %v", err)
	}
	if err := repo.ConsumeCode(ctx, c.UserID, domain.CodePurposePhone, "third"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := repo.ConsumeCode(ctx, c.UserID, domain.CodePurposePhone, "third"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected second consume to conflict, got %v", err)
	}
	got, _ = repo.FindByUserID(ctx, c.UserID)
	slot := got.Slot(domain.CodePurposePhone)
	if slot.Digest != nil || slot.ExpiresAt != nil || slot.Attempts != 0 {
		t.Fatalf("expected cleared slot, got %+v", slot)
	}
}

func TestCredentialRepositoryResetDigestLookupAndPasswordReset(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newRepositoryDBForTest(t, &domain.Credential{}))
	c := newCredentialForTest(t, repo)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	if _, err := repo.StartCodeRequest(ctx, c.UserID, domain.CodePurposePasswordReset, "reset-digest", now, now.Add(time.Hour), 3); err != nil {
		t.Fatalf("request: %v", err)
	}
	found, err := repo.FindByResetDigest(ctx, "reset-digest")
	if err != nil || found.UserID != c.UserID {
		t.Fatalf("find by digest: %v %+v", err, found)
	}
	if _, err := repo.FindByResetDigest(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_ = repo.SetRefreshTokenHash(ctx, c.UserID, "live")
	_, _ = repo.IncrementFailedLogin(ctx, c.UserID, 1, now.Add(time.Hour))
	if err := repo.ResetPassword(ctx, c.UserID, "stale-digest", "new-hash", "new-salt", now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for a digest that is not stored, got %v", err)
	}
	if got, _ := repo.FindByUserID(ctx, c.UserID); got.PasswordHash == "new-hash" || got.PasswordResetToken == nil {
		t.Fatalf("conflicting reset must change nothing: %+v", got)
	}
	if err := repo.ResetPassword(ctx, c.UserID, "reset-digest", "new-hash", "new-salt", now); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if err := repo.ResetPassword(ctx, c.UserID, "reset-digest", "other-hash", "other-salt", now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected a spent code to conflict, got %v", err)
	}
	got, _ := repo.FindByUserID(ctx, c.UserID)
	if got.PasswordHash != "new-hash" || got.Salt != "new-salt" {
		t.Fatalf("password not replaced: %+v", got)
	}
	if got.RefreshTokenHash != nil || got.FailedLoginAttempts != 0 || got.LockedUntil != nil || got.PasswordResetToken != nil || got.PasswordResetAttempts != 0 {
		t.Fatalf("expected sessions, lockout and reset code cleared: %+v", got)
	}
	if got.PasswordChangedAt == nil || !got.PasswordChangedAt.Equal(now) {
		t.Fatalf("unexpected password_changed_at %v", got.PasswordChangedAt)
	}
}

func TestCredentialRepositoryOAuthLinking(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newRepositoryDBForTest(t, &domain.Credential{}))
	a := newCredentialForTest(t, repo)
	b := newCredentialForTest(t, repo)

	if err := repo.LinkOAuth(ctx, a.UserID, "google:123", []byte("enc-a"), nil); err != nil {
		t.Fatalf("link: %v", err)
	}
	found, err := repo.FindByOAuthExternalID(ctx, "google:123")
	if err != nil || found.UserID != a.UserID {
		t.Fatalf("find by external id: %v %+v", err, found)
	}
	if string(found.OAuthAccessTokenEnc) != "enc-a" {
		t.Fatalf("unexpected token blob %q", found.OAuthAccessTokenEnc)
	}
	if err := repo.LinkOAuth(ctx, b.UserID, "google:123", nil, nil); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate external id, got %v", err)
	}
	if err := repo.UpdateOAuthTokens(ctx, a.UserID, []byte("enc-a2"), []byte("enc-r2")); err != nil {
		t.Fatalf("update tokens: %v", err)
	}
}

func TestCredentialRepositoryRejectsUnknownCodePurpose(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newRepositoryDBForTest(t, &domain.Credential{}))
	c := newCredentialForTest(t, repo)

	if err := repo.ClearCode(ctx, c.UserID, domain.CodePurpose("email_change")); err == nil {
		t.Fatal("expected an unknown purpose to be rejected")
	}
	if _, err := repo.StartCodeRequest(ctx, c.UserID, "", "d", time.Now(), time.Now().Add(time.Minute), 3); err == nil {
		t.Fatal("expected an empty purpose to be rejected")
	}
}
