package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	SLARules       *handlers.SLARulesHandler
	SLASweeps      *handlers.SLASweepHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics; nil leaves the endpoint unregistered.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireRole())

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", auth.RequireStaff(), cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/comments", cfg.Tickets.ListComments)

	rules := api.Group("/sla-rules", auth.RequireAdmin())
	rules.Get("/", cfg.SLARules.ListRules)
	rules.Post("/", cfg.SLARules.CreateRule)
	rules.Get("/:id", cfg.SLARules.GetRule)
	rules.Put("/:id", cfg.SLARules.UpdateRule)
	rules.Delete("/:id", cfg.SLARules.DeleteRule)

	sweeps := api.Group("/sla/sweeps", auth.RequireAdmin())
	sweeps.Post("/", cfg.SLASweeps.RunSweep)
	sweeps.Get("/next", cfg.SLASweeps.Schedule)
}
