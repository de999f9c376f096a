package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/seat-booking-core/internal/model"
)

// Ledger is the authoritative record of seat claims.  Every method is a
// single conditional statement (or a locked read followed by one), so
// concurrent callers are serialised by the store rather than by the
// application.
type Ledger interface {
	// Hold creates a HELD claim for userID that lasts until until.  An
	// elapsed hold on the same seat is vacated and the insert retried
	// once.  A live claim yields ErrAlreadyClaimed.
	Hold(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64, grade string, until time.Time) error
	// Extend moves the lease of a hold owned by userID to until.
	Extend(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64, until time.Time) error
	// Release deletes a hold owned by userID.  It reports whether a row
	// was removed.
	Release(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64) (bool, error)
	// Confirm locks the claim and turns a hold owned by userID into SOLD.
	// Any other state yields ErrNotHeld.
	Confirm(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64, grade string) error
	// Revoke frees a SOLD claim owned by userID.
	Revoke(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64) (bool, error)
	// ReleaseElapsed deletes the claim only if it is a hold whose lease
	// has run out.
	ReleaseElapsed(ctx context.Context, showingID uint64, seat model.Coordinate) (bool, error)
	// Claims lists the non-free seats of a showing ordered by coordinate.
	Claims(ctx context.Context, showingID uint64) ([]model.SeatClaim, error)
	// ElapsedOrphans lists elapsed holds that no live session refers to.
	ElapsedOrphans(ctx context.Context, limit int) ([]model.SeatClaim, error)
}

// SessionRepository persists reservation sessions and their line items.
type SessionRepository interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	// GetForUpdate reads a session and locks it until the unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*model.Session, error)
	// PendingFor returns the PENDING sessions of a user for one showing,
	// locked for update.
	PendingFor(ctx context.Context, userID, showingID uint64) ([]*model.Session, error)
	// Save writes status, total and items back.
	Save(ctx context.Context, s *model.Session) error
	// ListExpiredPending returns ids of PENDING sessions whose expiry is
	// at or before now, oldest first.
	ListExpiredPending(ctx context.Context, limit int) ([]string, error)
}

// Catalog answers geometry and pricing questions about a showing.  It is
// read-only from the booking core's point of view.
type Catalog interface {
	Seat(ctx context.Context, showingID uint64, seat model.Coordinate) (model.SeatInfo, error)
	Layout(ctx context.Context, showingID uint64) (model.SeatLayout, error)
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Ledger() Ledger
	Sessions() SessionRepository
}

// Store runs units of work.  fn's changes are committed when it returns
// nil and discarded otherwise.  The embedded Tx gives non-transactional
// access for snapshot reads.
type Store interface {
	Tx
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// querier is satisfied by both *sql.DB and *sql.Tx so the same statements
// run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
