package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyKeyMiddleware)

	r.Post("/v1/holds", h.CreateHold)
	r.Post("/v1/slots", h.ProvisionSlot)
	r.Post("/v1/payments/settlement", h.ApplySettlement)
	r.Post("/v1/payments/refund", h.ApplyRefund)
	r.Post("/v1/reminders/sweep", h.SweepReminders)
	r.Get("/v1/bookings/{id}", h.GetBooking)
	r.Get("/v1/slots/{id}", h.GetSlot)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
