package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/jehyuk/seatgate/internal/config"
	"github.com/jehyuk/seatgate/internal/handler"
	"github.com/jehyuk/seatgate/internal/middleware"
)

// RegisterHealth registers the unauthenticated liveness and readiness
// endpoints.  Load balancers poll these, so they carry no middleware.
func RegisterHealth(e *echo.Echo, rdb *redis.Client, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(rdb, db))
}

// RegisterAdmission registers the waiting-room surface under /v1/events.
// All routes require a valid access token; queue entry additionally runs
// through the shared token bucket so one client cannot hammer the queue.
func RegisterAdmission(e *echo.Echo, a *handler.AdmissionHandler, rt *handler.RealtimeHandler, cfg config.Config, rdb *redis.Client) {
	g := e.Group("/v1/events")
	g.Use(middleware.JWTAuth(cfg.JWTSecret))

	g.POST("/:id/queue", a.Enter, middleware.NewTokenBucket(cfg.RateLimit, rdb))
	g.GET("/:id/queue/status", a.Status)
	g.PATCH("/:id/session", a.Extend)
	g.DELETE("/:id/session", a.Leave)

	// Websocket push channel for queued and admitted clients.
	g.GET("/:id/stream", rt.Stream)
}

// RegisterSeats registers the seat map and hold endpoints.  The map itself
// is readable by anyone holding an account token (waiting users preview
// it); holding and releasing additionally require a live access grant,
// which the handler enforces.
func RegisterSeats(e *echo.Echo, s *handler.SeatHandler, jwtSecret string) {
	g := e.Group("/v1/events")
	g.Use(middleware.JWTAuth(jwtSecret))

	g.GET("/:id/seats", s.List)
	g.POST("/:id/seats/:seat/hold", s.Hold)
	g.DELETE("/:id/seats/:seat/hold", s.Release)
}
