package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SeatMap handles GET /v1/showings/:id/seats: layout plus the current
// claim on every seat.
func (h *BookingHandler) SeatMap(c echo.Context) error {
	showingID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showing id")
	}
	m, err := h.svc.SeatMap(c.Request().Context(), showingID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Layout handles GET /v1/showings/:id/layout.  The response does not
// depend on bookings and is served through the response cache.
func (h *BookingHandler) Layout(c echo.Context) error {
	showingID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showing id")
	}
	layout, err := h.svc.Layout(c.Request().Context(), showingID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, layout)
}
