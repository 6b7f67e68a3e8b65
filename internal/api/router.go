/**
 * @description
 * This file sets up the HTTP router for the billing-service using the
 * go-chi/chi router. It defines the pass-trigger and account-operation
 * routes and applies middleware for logging, panic recovery and timeouts.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new Chi router and registers the billing-service routes.
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute)) // passes can be slow on large account sets

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Billing service is healthy"))
	})

	r.Route("/billing", func(r chi.Router) {
		r.Post("/run", h.RunCombinedHandler)
		r.Post("/run/{pass}", h.RunPassHandler)
	})

	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Post("/payments", h.PaymentHandler)
		r.Post("/adjust", h.AdjustHandler)
		r.Post("/status", h.StatusHandler)
		r.Post("/session-cost", h.SessionCostHandler)
	})

	return r
}
