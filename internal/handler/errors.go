package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking-core/internal/model"
)

// statusFor maps the booking taxonomy to HTTP status codes.  ok is false
// for errors outside the taxonomy.
func statusFor(err error) (status int, ok bool) {
	switch {
	case errors.Is(err, model.ErrSeatUnavailable):
		return http.StatusConflict, true
	case errors.Is(err, model.ErrExpired):
		return http.StatusGone, true
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict, true
	case errors.Is(err, model.ErrCapacityExceeded):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, true
	case errors.Is(err, model.ErrInvalidSeat):
		return http.StatusBadRequest, true
	}
	return http.StatusInternalServerError, false
}

// writeError renders err as {"error": ...}.  Errors outside the booking
// taxonomy are logged and reported as an opaque internal error.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	status, ok := statusFor(err)
	if !ok {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Error(err),
		)
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}
