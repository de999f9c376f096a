// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-booking-core/internal/handler"
	"github.com/iliyamo/seat-booking-core/internal/middleware"
)

// Deps carries what the routes need.  RateLimit and Cache may be nil.
type Deps struct {
	Booking   *handler.BookingHandler
	SeatFeed  *handler.SeatEventsHandler
	Health    *handler.HealthHandler
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// Register mounts every route on e.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health.Health)
	RegisterPublic(e, d)
	RegisterSessions(e, d)
}

// RegisterPublic mounts the unauthenticated showing endpoints.  The event
// stream accepts an optional token so viewers can be attributed in logs.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1/showings")
	g.GET("/:id/seats", d.Booking.SeatMap)
	g.GET("/:id/layout", d.Booking.Layout, orNoop(d.Cache))
	g.GET("/:id/events", d.SeatFeed.Stream, middleware.OptionalJWT(d.JWTSecret))
}

// RegisterSessions mounts the booking session endpoints behind JWTAuth.
// Mutations share the rate limit.
func RegisterSessions(e *echo.Echo, d Deps) {
	auth := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	limited := orNoop(d.RateLimit)

	auth.POST("/showings/:id/sessions", d.Booking.StartSession, limited)
	auth.GET("/sessions/:id", d.Booking.GetSession)
	auth.GET("/sessions/:id/remaining", d.Booking.RemainingSeconds)
	auth.POST("/sessions/:id/seats", d.Booking.SelectSeats, limited)
	auth.PUT("/sessions/:id/seats", d.Booking.ReplaceSeats, limited)
	auth.DELETE("/sessions/:id/seats/:row/:col", d.Booking.DeselectSeat, limited)
	auth.POST("/sessions/:id/confirm", d.Booking.ConfirmSession, limited)
	auth.POST("/sessions/:id/cancel", d.Booking.CancelSession, limited)
}

func orNoop(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return mw
}
