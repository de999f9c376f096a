package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking-core/internal/middleware"
	"github.com/iliyamo/seat-booking-core/internal/model"
	"github.com/iliyamo/seat-booking-core/internal/service"
)

// Booking is the subset of the booking service the HTTP layer calls.
type Booking interface {
	StartSession(ctx context.Context, userID, showingID uint64) (*service.SessionView, error)
	GetSession(ctx context.Context, userID uint64, sessionID string) (*service.SessionView, error)
	SelectSeats(ctx context.Context, userID uint64, sessionID string, seats []model.Coordinate) (*service.SessionView, error)
	ReplaceSeats(ctx context.Context, userID uint64, sessionID string, seats []model.Coordinate) (*service.SessionView, error)
	DeselectSeat(ctx context.Context, userID uint64, sessionID string, seat model.Coordinate) (*service.SessionView, error)
	ConfirmSession(ctx context.Context, userID uint64, sessionID string) (*service.SessionView, error)
	CancelSession(ctx context.Context, userID uint64, sessionID string) (*service.SessionView, error)
	RemainingSeconds(ctx context.Context, userID uint64, sessionID string) (int, error)
	SeatMap(ctx context.Context, showingID uint64) (*service.SeatMap, error)
	Layout(ctx context.Context, showingID uint64) (model.SeatLayout, error)
}

// BookingHandler serves the session endpoints.  Every route expects
// JWTAuth in front of it.
type BookingHandler struct {
	svc Booking
	log *zap.Logger
}

// NewBookingHandler returns a handler backed by svc.
func NewBookingHandler(svc Booking, log *zap.Logger) *BookingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{svc: svc, log: log}
}

// StartSession handles POST /v1/showings/:id/sessions.
func (h *BookingHandler) StartSession(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	showingID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showing id")
	}
	v, err := h.svc.StartSession(c.Request().Context(), uid, showingID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// GetSession handles GET /v1/sessions/:id.
func (h *BookingHandler) GetSession(c echo.Context) error {
	return h.view(c, h.svc.GetSession)
}

// SelectSeats handles POST /v1/sessions/:id/seats.  Seats are added to
// the session; all of them are held or none.
func (h *BookingHandler) SelectSeats(c echo.Context) error {
	return h.withSeats(c, h.svc.SelectSeats)
}

// ReplaceSeats handles PUT /v1/sessions/:id/seats.  The body is the full
// desired selection; an empty list releases everything.
func (h *BookingHandler) ReplaceSeats(c echo.Context) error {
	return h.withSeats(c, h.svc.ReplaceSeats)
}

// DeselectSeat handles DELETE /v1/sessions/:id/seats/:row/:col.  :row
// may be a number or a row label.
func (h *BookingHandler) DeselectSeat(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	row, ok := parsePositive(c.Param("row"))
	if !ok {
		if row, ok = model.ParseRowLabel(c.Param("row")); !ok {
			return badRequest(c, "invalid row")
		}
	}
	col, ok := parsePositive(c.Param("col"))
	if !ok {
		return badRequest(c, "invalid column")
	}
	v, err := h.svc.DeselectSeat(c.Request().Context(), uid, c.Param("id"), model.Coordinate{Row: row, Col: col})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// ConfirmSession handles POST /v1/sessions/:id/confirm.
func (h *BookingHandler) ConfirmSession(c echo.Context) error {
	return h.view(c, h.svc.ConfirmSession)
}

// CancelSession handles POST /v1/sessions/:id/cancel.
func (h *BookingHandler) CancelSession(c echo.Context) error {
	return h.view(c, h.svc.CancelSession)
}

// RemainingSeconds handles GET /v1/sessions/:id/remaining.
func (h *BookingHandler) RemainingSeconds(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	secs, err := h.svc.RemainingSeconds(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": c.Param("id"), "remaining_seconds": secs})
}

func (h *BookingHandler) view(c echo.Context,
	op func(ctx context.Context, userID uint64, sessionID string) (*service.SessionView, error)) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	v, err := op(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *BookingHandler) withSeats(c echo.Context,
	op func(ctx context.Context, userID uint64, sessionID string, seats []model.Coordinate) (*service.SessionView, error)) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var body seatsRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	v, err := op(c.Request().Context(), uid, c.Param("id"), body.coordinates())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, v)
}
