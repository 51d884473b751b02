/**
 * @description
 * This file sets up the HTTP router for the credits-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// CreditRoutes creates and returns a new router for the credits service.
func CreditRoutes(h *CreditHandlers, webhook *EntitlementWebhookHandler, jwksURL, internalKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Entitlement webhook from the subscription platform. Auth is the shared
	// bearer token inside the handler, not the user JWT.
	r.Post("/webhooks/entitlements", webhook.ServeHTTP)

	// User-facing read endpoints require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Get("/credits/balance", h.GetBalanceHandler)
		r.Get("/credits/transactions", h.ListTransactionsHandler)
		r.Get("/credits/tier", h.GetTierHandler)
	})

	// Server-to-server endpoints sit behind the internal API key.
	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))

		r.Post("/credits/grant", h.GrantCreditsHandler)
		r.Post("/credits/charge", h.ChargeCreditsHandler)
		r.Post("/checkouts/completed", h.CheckoutCompletedHandler)
		r.Post("/checkouts/eligible", h.CheckoutEligibleHandler)
		r.Post("/usages", h.RecordUsageHandler)
		r.Post("/payouts/run", h.RunPayoutsHandler)
	})

	return r
}
