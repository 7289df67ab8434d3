// SPDX-License-Identifier: AGPL-3.0-or-later
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/btouchard/dispatchd/internal/presentation/api/accounts"
	"github.com/btouchard/dispatchd/internal/presentation/api/emails"
	"github.com/btouchard/dispatchd/internal/presentation/api/health"
	"github.com/btouchard/dispatchd/internal/presentation/api/shared"
)

// RouterConfig wires the handlers and credentials the router needs.
type RouterConfig struct {
	APIKey          string
	EmailsHandler   *emails.Handler
	AccountsHandler *accounts.Handler
	HealthHandler   *health.Handler
}

// NewRouter builds the HTTP router exposing the dispatch API.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", cfg.HealthHandler.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiKeyAuth(cfg.APIKey))

		r.Route("/emails", func(r chi.Router) {
			r.Post("/", cfg.EmailsHandler.HandleCreate)
			r.Get("/{id}", cfg.EmailsHandler.HandleGet)
			r.Get("/status/{status}", cfg.EmailsHandler.HandleListByStatus)
		})

		r.Route("/smtp-configs", func(r chi.Router) {
			r.Post("/", cfg.AccountsHandler.HandleCreate)
			r.Get("/", cfg.AccountsHandler.HandleList)
			r.Get("/{id}", cfg.AccountsHandler.HandleGet)
			r.Put("/{id}", cfg.AccountsHandler.HandleUpdate)
		})
	})

	return r
}

// apiKeyAuth rejects requests whose X-API-KEY header does not match key.
func apiKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-KEY") != key {
				shared.WriteUnauthorized(w, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
