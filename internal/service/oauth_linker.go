package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/repository"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/security"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Assertion is a provider-verified statement about an external account.
type Assertion struct {
	Provider      string `json:"provider"`
	Subject       string `json:"subject"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name,omitempty"`
	AccessToken   string `json:"-"`
	RefreshToken  string `json:"-"`
}

// ExternalID namespaces the subject by provider.
func (a Assertion) ExternalID() string {
	return a.Provider + ":" + a.Subject
}

type LinkResult struct {
	Identity  *domain.Identity
	IsNewUser bool
}

type OAuthLinker struct {
	identityRepo repository.IdentityRepository
	credRepo     repository.CredentialRepository
	cipher       *security.TokenCipher
	group        singleflight.Group
	logger       *slog.Logger
}

// NewOAuthLinker builds a linker. A nil cipher means provider tokens are not stored.
func NewOAuthLinker(identityRepo repository.IdentityRepository, credRepo repository.CredentialRepository, cipher *security.TokenCipher, logger *slog.Logger) *OAuthLinker {
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthLinker{identityRepo: identityRepo, credRepo: credRepo, cipher: cipher, logger: logger}
}

// Resolve maps an assertion to an Identity: first by external id, then by
// email (linking the account), otherwise by creating a pre-verified one.
func (l *OAuthLinker) Resolve(ctx context.Context, a Assertion) (*LinkResult, error) {
	a.Email = normalizeEmail(a.Email)
	a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
	if a.Provider == "" || strings.TrimSpace(a.Subject) == "" || a.Email == "" {
		return nil, autherr.ErrInvalidToken
	}
	if !a.EmailVerified {
		observability.RecordOAuthLinkEvent(ctx, a.Provider, "unverified_email")
		return nil, autherr.ErrUnverifiedEmail
	}

	// Concurrent logins for one external id share one resolution, detached from
	// any single caller. Only the caller whose closure ran it can see IsNewUser.
	var created bool
	ch := l.group.DoChan(a.ExternalID(), func() (any, error) {
		res, err := l.resolve(context.WithoutCancel(ctx), a)
		if err != nil {
			return nil, err
		}
		created = res.IsNewUser
		return res.Identity, nil
	})
	select {
	case <-ctx.Done():
		return nil, autherr.Internal(ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		identity := *r.Val.(*domain.Identity)
		return &LinkResult{Identity: &identity, IsNewUser: created}, nil
	}
}

func (l *OAuthLinker) resolve(ctx context.Context, a Assertion) (*LinkResult, error) {
	accessEnc, refreshEnc, err := l.seal(a)
	if err != nil {
		return nil, err
	}

	cred, err := l.credRepo.FindByOAuthExternalID(ctx, a.ExternalID())
	switch {
	case err == nil:
		return l.returning(ctx, a, cred, accessEnc, refreshEnc)
	case !isNotFound(err):
		return nil, storeError(err)
	}

	identity, err := l.identityRepo.FindByEmail(ctx, a.Email)
	switch {
	case err == nil:
		return l.link(ctx, a, identity, accessEnc, refreshEnc)
	case !isNotFound(err):
		return nil, storeError(err)
	}

	result, err := l.create(ctx, a, accessEnc, refreshEnc)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with a password registration for the same email.
		identity, findErr := l.identityRepo.FindByEmail(ctx, a.Email)
		if findErr != nil {
			return nil, storeError(findErr)
		}
		return l.link(ctx, a, identity, accessEnc, refreshEnc)
	}
	return result, err
}

func (l *OAuthLinker) returning(ctx context.Context, a Assertion, cred *domain.Credential, accessEnc, refreshEnc []byte) (*LinkResult, error) {
	identity, err := l.identityRepo.FindByID(ctx, cred.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, autherr.ErrUserNotFound
		}
		return nil, storeError(err)
	}
	if accessEnc != nil || refreshEnc != nil {
		if err := l.credRepo.UpdateOAuthTokens(ctx, cred.UserID, accessEnc, refreshEnc); err != nil {
			return nil, storeError(err)
		}
	}
	observability.RecordOAuthLinkEvent(ctx, a.Provider, "returning")
	return &LinkResult{Identity: identity}, nil
}

func (l *OAuthLinker) link(ctx context.Context, a Assertion, identity *domain.Identity, accessEnc, refreshEnc []byte) (*LinkResult, error) {
	if err := l.credRepo.LinkOAuth(ctx, identity.ID, a.ExternalID(), accessEnc, refreshEnc); err != nil {
		if isNotFound(err) {
			return nil, autherr.Internal(errors.New("identity has no credential record"))
		}
		return nil, storeError(err)
	}
	if !identity.EmailVerified {
		if err := l.identityRepo.MarkEmailVerified(ctx, identity.ID); err != nil {
			return nil, storeError(err)
		}
		identity.EmailVerified = true
		identity.IsVerified = true
	}
	observability.RecordOAuthLinkEvent(ctx, a.Provider, "linked")
	l.logger.Info("oauth account linked by email", "user_id", identity.ID, "provider", a.Provider)
	return &LinkResult{Identity: identity}, nil
}

func (l *OAuthLinker) create(ctx context.Context, a Assertion, accessEnc, refreshEnc []byte) (*LinkResult, error) {
	identity := &domain.Identity{
		ID:            uuid.NewString(),
		Email:         a.Email,
		DisplayName:   displayNameOrDefault(a.DisplayName, a.Email),
		IsActive:      true,
		IsVerified:    true,
		EmailVerified: true,
	}
	if err := l.identityRepo.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		return nil, storeError(err)
	}
	externalID := a.ExternalID()
	cred := &domain.Credential{
		UserID:               identity.ID,
		OAuthExternalID:      &externalID,
		OAuthAccessTokenEnc:  accessEnc,
		OAuthRefreshTokenEnc: refreshEnc,
	}
	if err := l.credRepo.Create(ctx, cred); err != nil {
		compensateIdentity(ctx, l.identityRepo, identity.ID, "oauth_create", l.logger)
		return nil, storeError(err)
	}
	observability.RecordOAuthLinkEvent(ctx, a.Provider, "created")
	l.logger.Info("identity created from oauth assertion", "user_id", identity.ID, "provider", a.Provider)
	return &LinkResult{Identity: identity, IsNewUser: true}, nil
}

func (l *OAuthLinker) seal(a Assertion) (accessEnc, refreshEnc []byte, err error) {
	if l.cipher == nil {
		return nil, nil, nil
	}
	if a.AccessToken != "" {
		if accessEnc, err = l.cipher.Seal([]byte(a.AccessToken)); err != nil {
			return nil, nil, autherr.Internal(err)
		}
	}
	if a.RefreshToken != "" {
		if refreshEnc, err = l.cipher.Seal([]byte(a.RefreshToken)); err != nil {
			return nil, nil, autherr.Internal(err)
		}
	}
	return accessEnc, refreshEnc, nil
}

// compensateIdentity deletes an Identity whose Credential could not be
// written. It runs on a detached context so a cancelled request still cleans up.
func compensateIdentity(ctx context.Context, identityRepo repository.IdentityRepository, id, step string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := identityRepo.Delete(ctx, id); err != nil {
		observability.RecordCompensation(ctx, step, "error")
		logger.Error("compensating identity delete failed", "user_id", id, "step", step, "error", err)
		return
	}
	observability.RecordCompensation(ctx, step, "success")
	logger.Warn("identity removed after credential write failed", "user_id", id, "step", step)
}
