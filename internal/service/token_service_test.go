package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
)

func TestTokenServiceVerifyKinds(t *testing.T) {
	fx := newAuthServiceFixture(t)
	access, err := fx.tokens.Issue("user-1", "u@x.com", domain.TokenKindAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := fx.tokens.Verify(access, domain.TokenKindAccess)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "u@x.com" || claims.Type != domain.TokenKindAccess {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := fx.tokens.Verify(access, domain.TokenKindRefresh); !errors.Is(err, autherr.ErrWrongTokenType) {
		t.Fatalf("expected wrong token type, got %v", err)
	}
	if _, err := fx.tokens.Verify(access+"x", domain.TokenKindAccess); !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	fx.clock.Advance(2 * time.Minute)
	if _, err := fx.tokens.Verify(access, domain.TokenKindAccess); !errors.Is(err, autherr.ErrExpiredToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestTokenServiceStoresOnlyRefreshHash(t *testing.T) {
	fx := newAuthServiceFixture(t)
	identity := fx.register(t, "hash@x.com", "")

	pair, err := fx.tokens.IssuePair(context.Background(), identity)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	cred := fx.credential(t, identity.ID)
	if cred.RefreshTokenHash == nil || *cred.RefreshTokenHash == pair.RefreshToken {
		t.Fatalf("expected a hash of the refresh token to be stored, got %v", cred.RefreshTokenHash)
	}
	if !pair.AccessExpiresAt.Equal(fx.clock.Now().Add(fx.cfg.JWTAccessTTL)) {
		t.Fatalf("unexpected access expiry %v", pair.AccessExpiresAt)
	}
}

func TestTokenServiceConcurrentRotateSucceedsOnce(t *testing.T) {
	fx := newAuthServiceFixture(t)
	identity := fx.register(t, "rotate@x.com", "")
	pair, err := fx.tokens.IssuePair(context.Background(), identity)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	const n = 6
	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.tokens.Rotate(context.Background(), pair.RefreshToken)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, autherr.ErrInvalidToken):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || rejected.Load() != n-1 {
		t.Fatalf("expected exactly one rotation, got ok=%d rejected=%d", ok.Load(), rejected.Load())
	}
}
