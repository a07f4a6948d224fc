package api

import (
	"net"
	"net/http"

	"github.com/concurhq/consent-exchange/internal/engine"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterDeps carries everything the router wires together. RateLimiter
// may be nil (Redis not configured), which disables throttling.
type RouterDeps struct {
	Webhooks    *WebhookHandler
	Health      http.HandlerFunc
	RateLimiter *engine.RateLimiter
	RateLimit   int
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Get("/api/v1/health", deps.Health)

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil && deps.RateLimit > 0 {
			r.Use(rateLimitMiddleware(deps.RateLimiter, deps.RateLimit))
		}

		r.Post("/webhook", deps.Webhooks.Receive("WEBHOOK_SECRET"))
		r.Post("/webhook/dpr1", deps.Webhooks.Receive("DPR1_WEBHOOK_SECRET"))
		r.Post("/webhook/dpr2", deps.Webhooks.Receive("DPR2_WEBHOOK_SECRET"))
	})

	return r
}

// rateLimitMiddleware throttles ingress per caller IP via the sliding
// window limiter. The limiter fails open on Redis errors.
func rateLimitMiddleware(rl *engine.RateLimiter, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := r.RemoteAddr
			if host, _, err := net.SplitHostPort(caller); err == nil {
				caller = host
			}

			if !rl.Allow(r.Context(), caller, limit) {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
