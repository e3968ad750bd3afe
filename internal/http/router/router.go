package router

import (
	"log/slog"
	"net/http"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/health"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/handler"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/middleware"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/response"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	Readiness      *health.CheckRunner
	Logger         *slog.Logger
	CORSOrigins    []string
	BodyLimitBytes int64
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	bodyLimit := dep.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = 1 << 16
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(bodyLimit))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", dep.AuthHandler.Register)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.Post("/password/forgot", dep.AuthHandler.PasswordForgot)
			r.Post("/password/reset", dep.AuthHandler.PasswordReset)
			r.Post("/phone/send", dep.AuthHandler.PhoneSend)
			r.Post("/phone/verify", dep.AuthHandler.PhoneVerify)
			r.Get("/oauth/url", dep.AuthHandler.OAuthURL)
			r.Post("/oauth/token", dep.AuthHandler.OAuthToken)
			r.Post("/oauth/code", dep.AuthHandler.OAuthCode)
		})
		r.With(middleware.RequireBearer).Get("/me", dep.AuthHandler.Me)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
