/*
router.go - HTTP router and middleware configuration

PURPOSE:
  Wires URLs to handlers with the chi router. Middleware stack: request
  logging, panic recovery, request IDs, CORS for the frontend, and
  per-IP rate limiting to keep polling views from hammering the store.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	AllowedOrigins  []string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewRouter creates the router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if opts.RateLimitPerSec <= 0 {
		opts.RateLimitPerSec = 20
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 40
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(RateLimit(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst))

	r.Route("/api", func(r chi.Router) {
		r.Route("/residents", func(r chi.Router) {
			r.Get("/", h.ListResidents)
			r.Post("/", h.CreateResident)
			r.Get("/{id}", h.GetResident)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Post("/{id}/allocate", h.Allocate)
			r.Put("/{id}/credit", h.AdjustCredit)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/aggregate", h.GetAggregateLedger)
		})

		r.Route("/timelines", func(r chi.Router) {
			r.Post("/", h.CreateTimeline)
			r.Get("/active", h.GetActiveTimeline)
			r.Put("/{id}", h.UpdateTimeline)
			r.Put("/{id}/holidays", h.SetHolidays)
			r.Post("/{id}/simulation", h.SetSimulation)
			r.Delete("/{id}/simulation", h.ClearSimulation)
			r.Post("/{id}/settle/{periodKey}", h.SettlePeriod)
			r.Post("/{id}/reset", h.ResetPayments)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/recompute", h.RecomputeStatuses)
		})
	})

	return r
}
