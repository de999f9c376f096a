// Package repository holds the storage layer of the booking core: the
// seat-claim ledger, the reservation session store and the read-only
// catalog.  Two implementations exist, MySQL for production and an
// in-memory one for tests and demos.  Both report the sentinel errors
// below so the service layer can translate them without caring which
// store is behind the interface.
package repository

import "errors"

// ErrAlreadyClaimed is returned by Hold when another live claim exists on
// the seat.  In MySQL it is the translation of a duplicate primary key
// (error 1062) on seat_claims.
var ErrAlreadyClaimed = errors.New("seat already claimed")

// ErrNotHeld is returned when a seat is expected to be HELD by a given
// user but is free, sold or held by someone else.
var ErrNotHeld = errors.New("seat not held by user")

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrShowingNotFound = errors.New("showing not found")
	ErrSeatNotFound    = errors.New("seat not found")
)

// ErrConflict is returned when an update cannot be performed because the
// row changed underneath the caller, for example a session that is no
// longer PENDING when the store tries to save it as such.
var ErrConflict = errors.New("conflict")
