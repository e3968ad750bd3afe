package service

import (
	"context"
	"errors"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/repository"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/security"
)

// TokenPair is an access/refresh pair issued together. Only the refresh
// token's HMAC is persisted, on the owner's credential.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type TokenService struct {
	jwtMgr     *security.JWTManager
	credRepo   repository.CredentialRepository
	pepper     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(jwtMgr *security.JWTManager, credRepo repository.CredentialRepository, pepper string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, credRepo: credRepo, pepper: pepper, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Issue signs a single token without touching the credential store.
func (s *TokenService) Issue(subject, email string, kind domain.TokenKind, ttl time.Duration) (string, error) {
	token, err := s.jwtMgr.Sign(subject, email, kind, ttl)
	if err != nil {
		return "", autherr.Internal(err)
	}
	return token, nil
}

// Verify checks signature, expiry and that the token is of the expected kind.
func (s *TokenService) Verify(raw string, expected domain.TokenKind) (*security.Claims, error) {
	claims, err := s.jwtMgr.Parse(raw)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, autherr.ErrExpiredToken
		}
		return nil, autherr.ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, autherr.ErrInvalidToken
	}
	if claims.Type != expected {
		return nil, autherr.ErrWrongTokenType
	}
	return claims, nil
}

// IssuePair signs a fresh pair and stores the refresh hash, replacing any
// earlier session for the identity.
func (s *TokenService) IssuePair(ctx context.Context, identity *domain.Identity) (*TokenPair, error) {
	pair, err := s.sign(identity.ID, identity.Email)
	if err != nil {
		return nil, err
	}
	if err := s.credRepo.SetRefreshTokenHash(ctx, identity.ID, s.hash(pair.RefreshToken)); err != nil {
		observability.RecordTokenEvent(ctx, "pair", "store_error")
		return nil, storeError(err)
	}
	observability.RecordTokenEvent(ctx, "pair", "issued")
	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. The swap is conditional on
// the stored hash still being the one presented, so a token can be rotated
// at most once.
func (s *TokenService) Rotate(ctx context.Context, oldRefresh string) (*TokenPair, error) {
	claims, err := s.Verify(oldRefresh, domain.TokenKindRefresh)
	if err != nil {
		observability.RecordTokenEvent(ctx, "refresh", "rejected")
		return nil, err
	}
	pair, err := s.sign(claims.Subject, claims.Email)
	if err != nil {
		return nil, err
	}
	err = s.credRepo.SwapRefreshTokenHash(ctx, claims.Subject, s.hash(oldRefresh), s.hash(pair.RefreshToken))
	switch {
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrNotFound):
		observability.RecordTokenEvent(ctx, "refresh", "replayed")
		return nil, autherr.ErrInvalidToken
	case err != nil:
		return nil, storeError(err)
	}
	observability.RecordTokenEvent(ctx, "refresh", "rotated")
	return pair, nil
}

// Revoke clears the session bound to refresh. It reports false when the token
// is unusable or no longer the current one.
func (s *TokenService) Revoke(ctx context.Context, refresh string) (bool, error) {
	claims, err := s.Verify(refresh, domain.TokenKindRefresh)
	if err != nil {
		return false, nil
	}
	cleared, err := s.credRepo.ClearRefreshTokenHash(ctx, claims.Subject, s.hash(refresh))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storeError(err)
	}
	if cleared {
		observability.RecordTokenEvent(ctx, "refresh", "revoked")
	}
	return cleared, nil
}

// RevokeAll drops whatever session the identity holds.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	if _, err := s.credRepo.ClearRefreshTokenHash(ctx, userID, ""); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeError(err)
	}
	return nil
}

func (s *TokenService) sign(subject, email string) (*TokenPair, error) {
	now := s.jwtMgr.Now()
	access, err := s.Issue(subject, email, domain.TokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Issue(subject, email, domain.TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

func (s *TokenService) hash(token string) string {
	return security.HashRefreshToken(token, s.pepper)
}
