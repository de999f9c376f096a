package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-booking-core/internal/sweeper"
)

// HealthHandler reports liveness of the store and the background sweeper.
type HealthHandler struct {
	ping    func(ctx context.Context) error
	sweeper interface{ Stats() sweeper.Stats }
	rooms   func() int
}

// NewHealthHandler builds the handler.  ping may be nil for the memory
// store; sweeper and rooms may be nil as well.
func NewHealthHandler(ping func(ctx context.Context) error, sw interface{ Stats() sweeper.Stats }, rooms func() int) *HealthHandler {
	return &HealthHandler{ping: ping, sweeper: sw, rooms: rooms}
}

// Health handles GET /healthz.  It answers 503 when the store does not
// respond.
func (h *HealthHandler) Health(c echo.Context) error {
	body := echo.Map{"status": "ok"}
	status := http.StatusOK

	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			body["status"] = "degraded"
			body["store"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.sweeper != nil {
		body["sweeper"] = h.sweeper.Stats()
	}
	if h.rooms != nil {
		body["live_showings"] = h.rooms()
	}
	return c.JSON(status, body)
}
