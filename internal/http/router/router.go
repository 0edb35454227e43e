// Package router arma el árbol de rutas del API de identidad.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/vetsecure/internal/http"
	"github.com/dropDatabas3/vetsecure/internal/http/handlers"
	mw "github.com/dropDatabas3/vetsecure/internal/http/middlewares"
	jwtx "github.com/dropDatabas3/vetsecure/internal/jwt"
	"github.com/dropDatabas3/vetsecure/internal/rate"
	"github.com/dropDatabas3/vetsecure/internal/service/auth"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
)

type Deps struct {
	Auth    *auth.Service
	Issuer  *jwtx.Issuer
	Repo    core.Repository
	Metrics http.Handler // nil si las métricas van en otro listener

	// Limiters por endpoint; nil deshabilita el límite en ese scope.
	LoginLimiter rate.Limiter
	MFALimiter   rate.Limiter

	CORSOrigins []string
}

// New construye el router. Orden de middlewares: request id -> métricas ->
// logging; el rate limit y la autenticación se aplican por ruta.
func New(d Deps) *chi.Mux {
	authH := handlers.NewAuth(d.Auth)
	healthH := handlers.NewHealth(d.Repo)

	r := chi.NewRouter()
	r.Use(mw.WithRequestID())
	if len(d.CORSOrigins) > 0 {
		r.Use(mw.WithCORS(d.CORSOrigins))
	}
	r.Use(httpx.WithMetrics)
	r.Use(mw.WithLogging())

	r.Get("/healthz", healthH.Live)
	r.Get("/readyz", healthH.Ready)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	requireAuth := mw.RequireAuth(d.Issuer, d.Repo)

	r.Route("/v1/auth", func(r chi.Router) {
		r.With(limit(d.LoginLimiter, "login")).Post("/login", authH.Login)
		r.With(limit(d.LoginLimiter, "login")).Post("/google", authH.GoogleLogin)
		r.With(limit(d.MFALimiter, "mfa")).Post("/mfa/verify", authH.VerifyMFA)
		r.Post("/refresh", authH.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authH.Me)
			r.Post("/mfa/setup", authH.SetupMFA)
			r.With(limit(d.MFALimiter, "mfa")).Post("/mfa/setup/verify", authH.VerifySetupMFA)
			r.With(limit(d.MFALimiter, "mfa")).Post("/mfa/disable", authH.DisableMFA)
		})
	})

	return r
}

// limit devuelve un no-op cuando el limiter está apagado.
func limit(l rate.Limiter, scope string) mw.Middleware {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw.WithRateLimit(l, scope)
}
