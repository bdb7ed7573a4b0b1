package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/slotkeeper/server/internal/activity"
	"github.com/slotkeeper/server/internal/auth"
	"github.com/slotkeeper/server/internal/channel"
	"github.com/slotkeeper/server/internal/http/handlers"
	"github.com/slotkeeper/server/internal/middleware"
	"github.com/slotkeeper/server/internal/notify"
	"github.com/slotkeeper/server/internal/pool"
)

// Deps are the services the router exposes
type Deps struct {
	Pool         *pool.Service
	Channels     *channel.Registry
	Warnings     *notify.Checker
	Activity     *activity.Bus
	Tokens       middleware.TokenVerifier
	AllocLimiter *middleware.RateLimiter
	AllowOrigins []string
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	stock := handlers.NewStockHandler(d.Pool)
	allocations := handlers.NewAllocationHandler(d.Pool)
	accounts := handlers.NewAccountHandler(d.Pool)
	reports := handlers.NewReportHandler(d.Pool)
	feed := handlers.NewFeedHandler(d.Channels, d.Warnings, d.Activity)
	stream := activity.NewStreamHandler(d.Activity, d.AllowOrigins)

	// Protected routes (require valid operator JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.Tokens))

		r.Get("/stock", stock.HandleCount)
		r.Get("/stock/summary", stock.HandleSummary)

		r.With(middleware.RateLimitMiddleware(d.AllocLimiter, middleware.GetOperatorKey)).
			Post("/allocations", allocations.HandleAllocate)
		r.Get("/assignments", allocations.HandleAssignments)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", accounts.HandleList)
			r.Get("/{id}", accounts.HandleGet)
			r.Get("/{id}/assignments", accounts.HandleAssignments)
			r.Post("/{id}/reports", reports.HandleReport)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleAdmin))
				r.Post("/", accounts.HandleCreate)
				r.Post("/import", accounts.HandleImport)
				r.Delete("/{id}", accounts.HandleDelete)
			})
		})

		r.Get("/reports", reports.HandleList)
		r.With(middleware.RequireRole(auth.RoleAdmin)).
			Post("/reports/{id}/resolve", reports.HandleResolve)

		r.Get("/channels", feed.HandleChannels)
		r.Get("/warnings", feed.HandleWarnings)
		r.Get("/activity", feed.HandleActivity)
	})

	// Browser clients pass the token as ?access_token= on the upgrade request
	r.With(middleware.StreamAuthMiddleware(d.Tokens)).Handle("/activity/ws", stream)

	return r
}
