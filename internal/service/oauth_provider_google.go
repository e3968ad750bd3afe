package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const googleProviderName = "google"

var errMissingIDToken = errors.New("token response has no id_token")

// GoogleOAuthProvider verifies Google ID tokens through the tokeninfo API
// and exchanges authorization codes for them.
type GoogleOAuthProvider struct {
	cfg      *oauth2.Config
	clientID string
	api      *oauth2api.Service
	http     *http.Client
}

// NewGoogleOAuthProvider builds the provider. Extra client options are
// applied after the instrumented HTTP client.
func NewGoogleOAuthProvider(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (*GoogleOAuthProvider, error) {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.OAuthProviderCallTimeout,
	}
	api, err := oauth2api.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("google tokeninfo client: %w", err)
	}
	return &GoogleOAuthProvider{
		cfg: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		clientID: cfg.GoogleClientID,
		api:      api,
		http:     client,
	}, nil
}

func (p *GoogleOAuthProvider) Name() string { return googleProviderName }

func (p *GoogleOAuthProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (p *GoogleOAuthProvider) VerifyAssertion(ctx context.Context, rawToken string) (*Assertion, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, autherr.ErrInvalidToken
	}
	start := time.Now()
	info, err := p.api.Tokeninfo().IdToken(rawToken).Context(ctx).Do()
	observability.RecordOAuthProviderRequestDuration(ctx, googleProviderName, "tokeninfo", oauthStatus(err), time.Since(start))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
			return nil, autherr.ErrInvalidToken
		}
		return nil, autherr.External(fmt.Errorf("google tokeninfo (%s): %w", classifyOAuthError(err), err))
	}
	if info.Audience != p.clientID || info.UserId == "" || info.Email == "" {
		return nil, autherr.ErrInvalidToken
	}
	return &Assertion{
		Provider:      googleProviderName,
		Subject:       info.UserId,
		Email:         info.Email,
		EmailVerified: info.VerifiedEmail,
	}, nil
}

// ExchangeCode runs the authorization code flow and verifies the returned
// ID token. Provider tokens are carried on the assertion for storage.
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*Assertion, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	start := time.Now()
	tok, err := p.cfg.Exchange(ctx, code)
	observability.RecordOAuthProviderRequestDuration(ctx, googleProviderName, "exchange", oauthStatus(err), time.Since(start))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return nil, autherr.ErrInvalidToken
		}
		return nil, autherr.External(fmt.Errorf("google exchange (%s): %w", classifyOAuthError(err), err))
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, autherr.External(errMissingIDToken)
	}
	assertion, err := p.VerifyAssertion(ctx, idToken)
	if err != nil {
		return nil, err
	}
	assertion.AccessToken = tok.AccessToken
	assertion.RefreshToken = tok.RefreshToken
	return assertion, nil
}

func oauthStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func classifyOAuthError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.Canceled) {
		return "context_canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("http_%d", apiErr.Code)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return "oauth2_exchange"
	}
	return "other"
}
