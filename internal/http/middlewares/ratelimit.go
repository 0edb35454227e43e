package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	httpx "github.com/dropDatabas3/vetsecure/internal/http"
	"github.com/dropDatabas3/vetsecure/internal/observability/logger"
	"github.com/dropDatabas3/vetsecure/internal/rate"
)

// clientIP resuelve la IP del cliente: primer hop de X-Forwarded-For si
// está, si no el host de RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithRateLimit limita por IP dentro de una ventana fija. scope separa los
// contadores por endpoint (login y mfa tienen presupuestos distintos).
// Si el backend del limiter falla, el request PASA: rate limiting caído no
// puede tirar el login.
func WithRateLimit(l rate.Limiter, scope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)
			res, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter no disponible", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "demasiados intentos, probá más tarde", httpx.ErrCodeRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
