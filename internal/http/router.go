package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/commonpurse/commonpurse/internal/http/activity"
	"github.com/commonpurse/commonpurse/internal/http/auth"
	"github.com/commonpurse/commonpurse/internal/http/community"
	"github.com/commonpurse/commonpurse/internal/http/export"
	"github.com/commonpurse/commonpurse/internal/http/importcsv"
	"github.com/commonpurse/commonpurse/internal/http/proposal"
	"github.com/commonpurse/commonpurse/internal/http/respond"
	"github.com/commonpurse/commonpurse/internal/http/transaction"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Communities  *community.Handler
	Proposals    *proposal.Handler
	Transactions *transaction.Handler
	Activities   *activity.Handler
	Roster       *importcsv.Handler
	Export       *export.Handler
}

type Options struct {
	AllowedOrigins []string
	Auth           *auth.Authenticator
	Health         Pinger
}

func New(opts Options, h Handlers) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/health", health(opts.Health))

	router.Route("/api/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.Middleware)
		}

		r.Route("/communities", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				h.Communities.Routes(r)
			})

			r.Route("/{id}/members/import", h.Roster.Routes)
			r.Route("/{id}/export", h.Export.Routes)
		})

		r.Route("/proposals", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			h.Proposals.Routes(r)
		})

		r.Route("/transactions", h.Transactions.Routes)
		r.Route("/activities", h.Activities.Routes)
	})

	return router
}

func health(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Ping(r.Context()); err != nil {
				respond.Fail(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
				return
			}
		}

		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
