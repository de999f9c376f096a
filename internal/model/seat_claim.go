package model

import "time"

// ClaimState is the occupancy of one seat in one showing.  FREE is never
// stored: the absence of a seat_claims row means the seat is free.
type ClaimState string

const (
	ClaimFree ClaimState = "FREE"
	ClaimHeld ClaimState = "HELD"
	ClaimSold ClaimState = "SOLD"
)

// SeatClaim mirrors a row of the seat_claims table, keyed by
// (ShowingID, Seat).  The primary key on that triple is what prevents two
// users from holding the same seat.
//
// Fields:
//  ShowingID – showing the claim belongs to.
//  Seat      – row/column of the seat.
//  State     – HELD or SOLD.
//  HolderID  – user holding or owning the seat.
//  HeldUntil – lease expiry while HELD; nil once SOLD.
//  Grade     – seat grade at the time of the claim (STANDARD, VIP, ...).
type SeatClaim struct {
	ShowingID uint64     `json:"showing_id"`
	Seat      Coordinate `json:"seat"`
	State     ClaimState `json:"state"`
	HolderID  *uint64    `json:"-"`
	HeldUntil *time.Time `json:"held_until,omitempty"`
	Grade     string     `json:"grade"`
}

// Elapsed reports whether the claim is a hold whose lease has run out.
func (c SeatClaim) Elapsed(now time.Time) bool {
	return c.State == ClaimHeld && c.HeldUntil != nil && !now.Before(*c.HeldUntil)
}

// HeldBy reports whether userID holds the claim.
func (c SeatClaim) HeldBy(userID uint64) bool {
	return c.HolderID != nil && *c.HolderID == userID
}

// SeatInfo is the catalog's description of a seat for one showing.
type SeatInfo struct {
	Seat       Coordinate `json:"seat"`
	Label      string     `json:"label"`
	Grade      string     `json:"grade"`
	PriceCents uint32     `json:"price_cents"`
}

// SeatLayout is the static geometry of a showing: every sellable seat
// with its grade and price.
type SeatLayout struct {
	ShowingID uint64     `json:"showing_id"`
	Rows      int        `json:"rows"`
	Cols      int        `json:"cols"`
	Seats     []SeatInfo `json:"seats"`
}
