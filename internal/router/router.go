package router // package router defines how HTTP routes are registered for the API

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/senhas/internal/handler"
	"github.com/iliyamo/senhas/internal/middleware"
	"github.com/iliyamo/senhas/internal/repository"
)

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, db repository.Pinger, log *slog.Logger) {
	e.GET("/healthz", handler.Health)
	e.GET("/v1/check-connection", handler.CheckConnection(db, log))
}

// RegisterAuth registers registration and login (public, rate limited) and
// the tenant's own account endpoints (JWT protected).
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	pub := e.Group("/v1", limiter)
	pub.POST("/register", a.Register)
	pub.POST("/login", a.Login)

	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleTenant),
		limiter,
	)
	g.GET("/me", a.Me)
	g.PUT("/me/config", a.UpdateConfig)
}

// RegisterTickets registers the tenant-scoped ticket endpoints. The limiter
// runs after JWTAuth so keys carry the tenant; statsCache fronts only the
// statistics view.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, jwtSecret string, limiter, statsCache echo.MiddlewareFunc) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleTenant),
		limiter,
	)

	g.POST("/tickets", t.Create)
	g.GET("/tickets", t.List)
	g.POST("/tickets/call-next", t.CallNext)
	g.GET("/tickets/:id", t.Get)
	g.GET("/tickets/:id/position", t.Position)
	g.PUT("/tickets/:id", t.Update)

	g.GET("/stats", t.Stats, statsCache)
	g.POST("/purge", t.Purge)
}
