package model

import "time"

// EventKind discriminates seat-map change events.
type EventKind string

const (
	EventOccupied  EventKind = "occupied"
	EventReleased  EventKind = "released"
	EventConfirmed EventKind = "confirmed"

	// EventKeepAlive carries no seat; it keeps idle streams open and lets
	// the hub notice dead subscribers.
	EventKeepAlive EventKind = "keepalive"
	// EventResync tells a viewer that events were dropped and the seat
	// map must be refetched.
	EventResync EventKind = "resync"
)

// SeatEvent is one ledger mutation broadcast to viewers of a showing.
type SeatEvent struct {
	Kind      EventKind   `json:"kind"`
	ShowingID uint64      `json:"showing_id"`
	Seat      *Coordinate `json:"seat,omitempty"`
	Grade     string      `json:"grade,omitempty"`
	At        time.Time   `json:"at"`
}

// NewSeatEvent builds a seat event for kind at time at.
func NewSeatEvent(kind EventKind, showingID uint64, seat Coordinate, grade string, at time.Time) SeatEvent {
	s := seat
	return SeatEvent{Kind: kind, ShowingID: showingID, Seat: &s, Grade: grade, At: at}
}
