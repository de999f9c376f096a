package model

import "errors"

// Booking errors returned by the orchestrator.  Handlers translate them
// to HTTP status codes; anything else is reported as an internal error.
var (
	// ErrSeatUnavailable means the seat was lost to another user or is
	// already sold.  The client should pick another seat.
	ErrSeatUnavailable = errors.New("seat unavailable")
	// ErrExpired means the session's five minute window has passed.
	ErrExpired = errors.New("session expired")
	// ErrInvalidState means the session no longer accepts this action.
	ErrInvalidState = errors.New("invalid session state")
	// ErrCapacityExceeded means the session would exceed its seat limit.
	ErrCapacityExceeded = errors.New("too many seats in session")
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// ErrInvalidSeat is returned for coordinates that are malformed.
var ErrInvalidSeat = errors.New("invalid seat coordinate")

// IsBookingError reports whether err belongs to the booking taxonomy.
func IsBookingError(err error) bool {
	return errors.Is(err, ErrSeatUnavailable) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidSeat)
}
