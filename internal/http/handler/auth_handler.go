package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/middleware"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/response"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/security"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/service"
)

var errMalformedBody = autherr.Validation("malformed request body")

type AuthHandler struct {
	authSvc service.AuthServiceInterface
	guard   service.AbuseGuard
	logger  *slog.Logger
}

func NewAuthHandler(authSvc service.AuthServiceInterface, guard service.AbuseGuard, logger *slog.Logger) *AuthHandler {
	if guard == nil {
		guard = service.NoopAbuseGuard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{authSvc: authSvc, guard: guard, logger: logger}
}

// endpointFunc writes its own success body and returns the failure to map.
type endpointFunc func(w http.ResponseWriter, r *http.Request) error

func (h *AuthHandler) endpoint(name string, fn endpointFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		err := fn(w, r)
		status := "success"
		if err != nil {
			status = strings.ToLower(string(autherr.GetCode(err)))
			if autherr.GetCode(err) == autherr.CodeInternal {
				h.logger.ErrorContext(r.Context(), "auth endpoint failed", "endpoint", name, "error", err)
			}
			response.FromError(w, r, err)
		}
		observability.RecordAuthRequestDuration(r.Context(), name, status, time.Since(start))
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errMalformedBody
	}
	return nil
}

// throttled asks the guard for a cooldown and answers 429 when one applies.
// Guard failures are logged and the request proceeds.
func (h *AuthHandler) throttled(w http.ResponseWriter, r *http.Request, scope service.AbuseScope, subject string) bool {
	wait, err := h.guard.Check(r.Context(), scope, subject, middleware.ClientIP(r))
	if err != nil {
		h.logger.WarnContext(r.Context(), "abuse guard check failed", "scope", scope, "error", err)
		return false
	}
	if wait <= 0 {
		return false
	}
	w.Header().Set("Retry-After", middleware.RetryAfter(wait))
	response.Error(w, r, http.StatusTooManyRequests, string(autherr.CodeRateLimited), "too many attempts, retry later", map[string]any{
		"retry_after_seconds": int(wait.Round(time.Second).Seconds()),
	})
	return true
}

func (h *AuthHandler) registerFailure(ctx context.Context, r *http.Request, scope service.AbuseScope, subject string) {
	if _, err := h.guard.RegisterFailure(ctx, scope, subject, middleware.ClientIP(r)); err != nil {
		h.logger.WarnContext(ctx, "abuse guard failure registration failed", "scope", scope, "error", err)
	}
}

func guardSubject(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.endpoint("register", func(w http.ResponseWriter, r *http.Request) error {
		var body service.RegisterInput
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		identity, err := h.authSvc.Register(r.Context(), body)
		if err != nil {
			return err
		}
		response.JSON(w, r, http.StatusCreated, map[string]any{"user": identity})
		return nil
	})(w, r)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.endpoint("login", func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		subject := guardSubject(body.Email)
		if h.throttled(w, r, service.AbuseScopeLogin, subject) {
			return nil
		}
		result, err := h.authSvc.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			if autherr.IsCode(err, autherr.CodeInvalidCredentials) || autherr.IsCode(err, autherr.CodeAccountLocked) {
				h.registerFailure(r.Context(), r, service.AbuseScopeLogin, subject)
			}
			return err
		}
		if err := h.guard.Reset(r.Context(), service.AbuseScopeLogin, subject, middleware.ClientIP(r)); err != nil {
			h.logger.WarnContext(r.Context(), "abuse guard reset failed", "error", err)
		}
		response.JSON(w, r, http.StatusOK, result)
		return nil
	})(w, r)
}

type refreshTokenBody struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.endpoint("refresh", func(w http.ResponseWriter, r *http.Request) error {
		var body refreshTokenBody
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		result, err := h.authSvc.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			return err
		}
		response.JSON(w, r, http.StatusOK, result)
		return nil
	})(w, r)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.endpoint("logout", func(w http.ResponseWriter, r *http.Request) error {
		var body refreshTokenBody
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		revoked, err := h.authSvc.Logout(r.Context(), body.RefreshToken)
		if err != nil {
			return err
		}
		response.JSON(w, r, http.StatusOK, map[string]bool{"revoked": revoked})
		return nil
	})(w, r)
}

// PasswordForgot always answers with the same body. Every request counts
// against the caller's cooldown because success and failure look alike.
func (h *AuthHandler) PasswordForgot(w http.ResponseWriter, r *http.Request) {
	h.endpoint("password_forgot", func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		subject := guardSubject(body.Email)
		if h.throttled(w, r, service.AbuseScopePasswordReset, subject) {
			return nil
		}
		h.registerFailure(r.Context(), r, service.AbuseScopePasswordReset, subject)
		message, err := h.authSvc.RequestPasswordReset(r.Context(), body.Email)
		if err != nil {
			return err
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"message": message})
		return nil
	})(w, r)
}

func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	h.endpoint("password_reset", func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Token       string `json:"token"`
			NewPassword string `json:"new_password"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		if err := h.authSvc.ConfirmPasswordReset(r.Context(), body.Token, body.NewPassword); err != nil {
			return err
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_reset"})
		return nil
	})(w, r)
}

func (h *AuthHandler) PhoneSend(w http.ResponseWriter, r *http.Request) {
	h.endpoint("phone_send", func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Phone string `json:"phone"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		if h.throttled(w, r, service.AbuseScopePhoneCode, body.Phone) {
			return nil
		}
		h.registerFailure(r.Context(), r, service.AbuseScopePhoneCode, body.Phone)
		if err := h.authSvc.SendPhoneVerification(r.Context(), body.Phone); err != nil {
			return err
		}
		response.JSON(w, r, http.StatusAccepted, map[string]string{"status": "code_sent"})
		return nil
	})(w, r)
}

func (h *AuthHandler) PhoneVerify(w http.ResponseWriter, r *http.Request) {
	h.endpoint("phone_verify", func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Phone string `json:"phone"`
			Code  string `json:"code"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		if h.throttled(w, r, service.AbuseScopePhoneCode, body.Phone) {
			return nil
		}
		if err := h.authSvc.VerifyPhoneCode(r.Context(), body.Phone, body.Code); err != nil {
			if autherr.IsCode(err, autherr.CodeCodeMismatch) {
				h.registerFailure(r.Context(), r, service.AbuseScopePhoneCode, body.Phone)
			}
			return err
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "phone_verified"})
		return nil
	})(w, r)
}

// OAuthURL hands out a fresh state value with the consent URL. The client
// keeps the state and compares it with the one returned on redirect.
func (h *AuthHandler) OAuthURL(w http.ResponseWriter, r *http.Request) {
	h.endpoint("oauth_url", func(w http.ResponseWriter, r *http.Request) error {
		state, err := security.NewRandomString(24)
		if err != nil {
			return autherr.Internal(err)
		}
		url, err := h.authSvc.OAuthLoginURL(state)
		if err != nil {
			return err
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"url": url, "state": state})
		return nil
	})(w, r)
}

func (h *AuthHandler) OAuthToken(w http.ResponseWriter, r *http.Request) {
	h.endpoint("oauth_token", func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			IDToken string `json:"id_token"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		result, err := h.authSvc.LoginWithOAuthToken(r.Context(), body.IDToken)
		if err != nil {
			return err
		}
		response.JSON(w, r, oauthStatus(result), result)
		return nil
	})(w, r)
}

func (h *AuthHandler) OAuthCode(w http.ResponseWriter, r *http.Request) {
	h.endpoint("oauth_code", func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Code string `json:"code"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		if body.Code == "" {
			return autherr.Validation("code is required")
		}
		result, err := h.authSvc.LoginWithOAuthCode(r.Context(), body.Code)
		if err != nil {
			return err
		}
		response.JSON(w, r, oauthStatus(result), result)
		return nil
	})(w, r)
}

func oauthStatus(result *service.AuthResult) int {
	if result.IsNewUser {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	h.endpoint("me", func(w http.ResponseWriter, r *http.Request) error {
		raw, ok := middleware.AccessTokenFromContext(r.Context())
		if !ok {
			return autherr.ErrInvalidToken
		}
		identity, err := h.authSvc.Me(r.Context(), raw)
		if err != nil {
			return err
		}
		response.JSON(w, r, http.StatusOK, map[string]any{"user": identity})
		return nil
	})(w, r)
}

