/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog request logger, also attached to the request
                 context so components log with the request id
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/accounts/*       Accounts and categories, balances, registers
  /api/reports/*        Category analysis and net worth
  /api/transactions/*   Transactions and their line items
  /api/line-items/*     Single line-item edits and tags
  /api/tags/*           Tag index
  /api/templates/*      Transaction templates, YAML export/import
  /api/rules/*          Import rules and matching
  /api/schedules/*      Scheduled transactions
  /api/admin/*          Maintenance (running-balance rebuild)
  /api/scenarios/*      Demo data for an empty ledger

SECURITY NOTE:
  No authentication middleware. Run bound to localhost or behind a proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/warp/ledger-engine/logger"
)

// RouterOptions configure NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Patch("/{id}", h.UpdateAccount)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/register", h.GetRegister)
			r.Post("/{id}/recalculate", h.RecalculateAccount)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/categories", h.CategoryAnalysis)
			r.Get("/net-worth", h.NetWorth)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Patch("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
			r.Post("/{id}/line-items", h.AddLineItem)
			r.Post("/{id}/tags/{tagID}", h.TagTransaction)
			r.Delete("/{id}/tags/{tagID}", h.UntagTransaction)
		})

		r.Route("/line-items", func(r chi.Router) {
			r.Patch("/{id}", h.UpdateLineItem)
			r.Delete("/{id}", h.DeleteLineItem)
			r.Get("/{id}/tags", h.LineItemTags)
			r.Post("/{id}/tags/{tagID}", h.TagLineItem)
			r.Delete("/{id}/tags/{tagID}", h.UntagLineItem)
		})

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", h.ListTags)
			r.Post("/", h.CreateTag)
			r.Delete("/{id}", h.DeleteTag)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Post("/import", h.ImportTemplate)
			r.Get("/{id}", h.GetTemplate)
			r.Delete("/{id}", h.DeleteTemplate)
			r.Get("/{id}/export", h.ExportTemplate)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Post("/match", h.MatchRules)
			r.Delete("/{id}", h.DeleteRule)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
			r.Get("/due", h.DueSchedules)
			r.Get("/{id}", h.GetSchedule)
			r.Patch("/{id}", h.UpdateSchedule)
			r.Delete("/{id}", h.DeleteSchedule)
			r.Post("/{id}/advance", h.AdvanceSchedule)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/recalculate", h.RecalculateAll)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger logs one line per request and hands a request-scoped
// logger to the handlers through the context.
func requestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			l := base.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), l)))

			l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
