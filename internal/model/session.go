package model

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a reservation session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionConfirmed SessionStatus = "CONFIRMED"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionExpired   SessionStatus = "EXPIRED"
)

// DefaultMaxSeats is the number of seats one session may hold.
const DefaultMaxSeats = 4

// LineItem is one seat a session believes it holds.
type LineItem struct {
	Seat       Coordinate `json:"seat"`
	Grade      string     `json:"grade"`
	PriceCents uint32     `json:"price_cents"`
}

// Session groups the seats one user is buying for one showing.  It is
// stored in reservation_sessions with its items in reservation_items.
//
// Fields:
//  ID               – opaque identifier (UUID).
//  OwnerID          – user who started the session.
//  ShowingID        – showing being booked.
//  ConfirmationCode – short code printed on the tickets.
//  Status           – PENDING, CONFIRMED, CANCELLED or EXPIRED.
//  Items            – at most MaxSeats line items.
//  TotalCents       – always the sum of Items prices.
//  CreatedAt        – creation timestamp.
//  ExpiresAt        – absolute deadline for mutations and confirm.
//  UpdatedAt        – last mutation.
type Session struct {
	ID               string
	OwnerID          uint64
	ShowingID        uint64
	ConfirmationCode string
	Status           SessionStatus
	Items            []LineItem
	TotalCents       uint32
	MaxSeats         int
	CreatedAt        time.Time
	ExpiresAt        time.Time
	UpdatedAt        time.Time
}

// NewSession returns an empty PENDING session expiring ttl after now.
func NewSession(id string, ownerID, showingID uint64, code string, now time.Time, ttl time.Duration, maxSeats int) *Session {
	if maxSeats <= 0 {
		maxSeats = DefaultMaxSeats
	}
	return &Session{
		ID:               id,
		OwnerID:          ownerID,
		ShowingID:        showingID,
		ConfirmationCode: code,
		Status:           SessionPending,
		Items:            []LineItem{},
		MaxSeats:         maxSeats,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
		UpdatedAt:        now,
	}
}

// CheckMutable returns nil when items may still change: the session is
// PENDING and now is before ExpiresAt.
func (s *Session) CheckMutable(now time.Time) error {
	if s.Status != SessionPending {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, s.Status)
	}
	if !now.Before(s.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

// Has reports whether seat is one of the session's items.
func (s *Session) Has(seat Coordinate) bool {
	return s.indexOf(seat) >= 0
}

func (s *Session) indexOf(seat Coordinate) int {
	for i, it := range s.Items {
		if it.Seat == seat {
			return i
		}
	}
	return -1
}

// AddItem appends a line item.  Adding a seat already present is a no-op.
func (s *Session) AddItem(item LineItem, now time.Time) error {
	if err := s.CheckMutable(now); err != nil {
		return err
	}
	if s.Has(item.Seat) {
		return nil
	}
	if len(s.Items) >= s.Limit() {
		return ErrCapacityExceeded
	}
	s.Items = append(s.Items, item)
	s.recompute(now)
	return nil
}

// RemoveItem drops the line item for seat.  It reports whether an item
// was removed.
func (s *Session) RemoveItem(seat Coordinate, now time.Time) (bool, error) {
	if err := s.CheckMutable(now); err != nil {
		return false, err
	}
	i := s.indexOf(seat)
	if i < 0 {
		return false, nil
	}
	s.Items = append(s.Items[:i], s.Items[i+1:]...)
	s.recompute(now)
	return true, nil
}

// Seats returns the coordinates of all items, sorted.
func (s *Session) Seats() []Coordinate {
	out := make([]Coordinate, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, it.Seat)
	}
	SortCoordinates(out)
	return out
}

// Item returns the line item for seat.
func (s *Session) Item(seat Coordinate) (LineItem, bool) {
	if i := s.indexOf(seat); i >= 0 {
		return s.Items[i], true
	}
	return LineItem{}, false
}

// Diff splits requested against the current items into seats to release,
// seats to keep and seats to hold.  All three slices are sorted.
func (s *Session) Diff(requested []Coordinate) (removed, kept, added []Coordinate) {
	want := make(map[Coordinate]struct{}, len(requested))
	for _, c := range requested {
		want[c] = struct{}{}
	}
	for _, it := range s.Items {
		if _, ok := want[it.Seat]; ok {
			kept = append(kept, it.Seat)
		} else {
			removed = append(removed, it.Seat)
		}
	}
	for c := range want {
		if !s.Has(c) {
			added = append(added, c)
		}
	}
	SortCoordinates(removed)
	SortCoordinates(kept)
	SortCoordinates(added)
	return removed, kept, added
}

// Confirm moves a mutable session with at least one seat to CONFIRMED.
func (s *Session) Confirm(now time.Time) error {
	if err := s.CheckMutable(now); err != nil {
		return err
	}
	if len(s.Items) == 0 {
		return fmt.Errorf("%w: no seats selected", ErrInvalidState)
	}
	s.Status = SessionConfirmed
	s.UpdatedAt = now
	return nil
}

// Cancel is accepted from PENDING (even past expiry) and CONFIRMED.
func (s *Session) Cancel(now time.Time) error {
	switch s.Status {
	case SessionPending, SessionConfirmed:
		s.Status = SessionCancelled
		s.UpdatedAt = now
		return nil
	default:
		return fmt.Errorf("%w: session is %s", ErrInvalidState, s.Status)
	}
}

// Expire marks a PENDING session whose deadline has passed as EXPIRED.
// It reports false, leaving the session untouched, in every other case.
func (s *Session) Expire(now time.Time) bool {
	if s.Status != SessionPending || now.Before(s.ExpiresAt) {
		return false
	}
	s.Status = SessionExpired
	s.UpdatedAt = now
	return true
}

// RemainingSeconds is the whole number of seconds left before expiry,
// rounded up, or zero once the session stopped being PENDING.
func (s *Session) RemainingSeconds(now time.Time) int {
	if s.Status != SessionPending || !now.Before(s.ExpiresAt) {
		return 0
	}
	left := s.ExpiresAt.Sub(now)
	secs := int(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Items = append([]LineItem(nil), s.Items...)
	if c.Items == nil {
		c.Items = []LineItem{}
	}
	return &c
}

// Limit is the maximum number of line items.
func (s *Session) Limit() int {
	if s.MaxSeats <= 0 {
		return DefaultMaxSeats
	}
	return s.MaxSeats
}

func (s *Session) recompute(now time.Time) {
	var total uint32
	for _, it := range s.Items {
		total += it.PriceCents
	}
	s.TotalCents = total
	s.UpdatedAt = now
}
