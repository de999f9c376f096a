package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/model"
)

// ClaimRepo is the MySQL seat ledger.  Rows live in seat_claims whose
// primary key (show_id, seat_row, seat_col) guarantees at most one claim
// per seat; a missing row means the seat is FREE.  All timestamps are UTC.
type ClaimRepo struct {
	q     querier
	clock clock.Clock
}

// NewClaimRepo returns a ClaimRepo bound to db.
func NewClaimRepo(db *sql.DB, clk clock.Clock) *ClaimRepo {
	if clk == nil {
		clk = clock.Real()
	}
	return &ClaimRepo{q: db, clock: clk}
}

const insertHold = `INSERT INTO seat_claims (show_id, seat_row, seat_col, state, holder_id, held_until, grade)
                    VALUES (?, ?, ?, 'HELD', ?, ?, ?)`

const vacateElapsed = `DELETE FROM seat_claims
                       WHERE show_id = ? AND seat_row = ? AND seat_col = ? AND state = 'HELD' AND held_until <= ?`

// Hold inserts a HELD row.  A duplicate key means somebody else got there
// first unless their lease has elapsed, in which case the stale row is
// removed with a conditional delete and the insert is attempted once more.
// Whoever loses the second race also sees ErrAlreadyClaimed.
func (r *ClaimRepo) Hold(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64, grade string, until time.Time) error {
	args := []interface{}{showingID, seat.Row, seat.Col, userID, until.UTC(), grade}
	_, err := r.q.ExecContext(ctx, insertHold, args...)
	if err == nil {
		return nil
	}
	if !isDuplicate(err) {
		return err
	}

	res, err := r.q.ExecContext(ctx, vacateElapsed, showingID, seat.Row, seat.Col, r.clock.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyClaimed
	}

	if _, err = r.q.ExecContext(ctx, insertHold, args...); err != nil {
		if isDuplicate(err) {
			return ErrAlreadyClaimed
		}
		return err
	}
	return nil
}

// Extend moves held_until of the caller's hold.
func (r *ClaimRepo) Extend(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64, until time.Time) error {
	const q = `UPDATE seat_claims SET held_until = ?
               WHERE show_id = ? AND seat_row = ? AND seat_col = ? AND state = 'HELD' AND holder_id = ?`
	res, err := r.q.ExecContext(ctx, q, until.UTC(), showingID, seat.Row, seat.Col, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release deletes the caller's hold.  Rows held by others are untouched.
func (r *ClaimRepo) Release(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64) (bool, error) {
	const q = `DELETE FROM seat_claims
               WHERE show_id = ? AND seat_row = ? AND seat_col = ? AND state = 'HELD' AND holder_id = ?`
	return r.deleteOne(ctx, q, showingID, seat.Row, seat.Col, userID)
}

// Confirm locks the claim row and flips it to SOLD.  Callers confirming
// several seats must call it in coordinate order so concurrent confirms
// acquire row locks in the same sequence.
func (r *ClaimRepo) Confirm(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64, grade string) error {
	const sel = `SELECT state, holder_id FROM seat_claims
                 WHERE show_id = ? AND seat_row = ? AND seat_col = ? FOR UPDATE`
	var (
		state  string
		holder sql.NullInt64
	)
	err := r.q.QueryRowContext(ctx, sel, showingID, seat.Row, seat.Col).Scan(&state, &holder)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotHeld
	}
	if err != nil {
		return err
	}
	if model.ClaimState(state) != model.ClaimHeld || !holder.Valid || uint64(holder.Int64) != userID {
		return ErrNotHeld
	}

	const upd = `UPDATE seat_claims SET state = 'SOLD', held_until = NULL, grade = ?
                 WHERE show_id = ? AND seat_row = ? AND seat_col = ?`
	_, err = r.q.ExecContext(ctx, upd, grade, showingID, seat.Row, seat.Col)
	return err
}

// Revoke frees a sold seat when its confirmed reservation is cancelled.
func (r *ClaimRepo) Revoke(ctx context.Context, showingID uint64, seat model.Coordinate, userID uint64) (bool, error) {
	const q = `DELETE FROM seat_claims
               WHERE show_id = ? AND seat_row = ? AND seat_col = ? AND state = 'SOLD' AND holder_id = ?`
	return r.deleteOne(ctx, q, showingID, seat.Row, seat.Col, userID)
}

// ReleaseElapsed is the sweeper's conditional delete.  A hold renewed or
// sold since it was listed no longer matches and is left alone.
func (r *ClaimRepo) ReleaseElapsed(ctx context.Context, showingID uint64, seat model.Coordinate) (bool, error) {
	return r.deleteOne(ctx, vacateElapsed, showingID, seat.Row, seat.Col, r.clock.Now().UTC())
}

func (r *ClaimRepo) deleteOne(ctx context.Context, q string, args ...interface{}) (bool, error) {
	res, err := r.q.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Claims returns every HELD or SOLD seat of a showing.
func (r *ClaimRepo) Claims(ctx context.Context, showingID uint64) ([]model.SeatClaim, error) {
	const q = `SELECT show_id, seat_row, seat_col, state, holder_id, held_until, grade
               FROM seat_claims
               WHERE show_id = ?
               ORDER BY seat_row, seat_col`
	rows, err := r.q.QueryContext(ctx, q, showingID)
	if err != nil {
		return nil, err
	}
	return scanClaims(rows)
}

// ElapsedOrphans finds holds whose lease ran out and that are not an item
// of a PENDING, unexpired session.  Such rows are left behind by crashed
// requests or by sessions whose own cleanup failed.
func (r *ClaimRepo) ElapsedOrphans(ctx context.Context, limit int) ([]model.SeatClaim, error) {
	const q = `SELECT c.show_id, c.seat_row, c.seat_col, c.state, c.holder_id, c.held_until, c.grade
               FROM seat_claims c
               WHERE c.state = 'HELD' AND c.held_until <= ?
                 AND NOT EXISTS (
                     SELECT 1 FROM reservation_items i
                     JOIN reservation_sessions s ON s.id = i.session_id
                     WHERE i.show_id = c.show_id AND i.seat_row = c.seat_row AND i.seat_col = c.seat_col
                       AND s.status = 'PENDING' AND s.expires_at > ?)
               ORDER BY c.held_until
               LIMIT ?`
	now := r.clock.Now().UTC()
	rows, err := r.q.QueryContext(ctx, q, now, now, limit)
	if err != nil {
		return nil, err
	}
	return scanClaims(rows)
}

func scanClaims(rows *sql.Rows) ([]model.SeatClaim, error) {
	defer rows.Close()
	var out []model.SeatClaim
	for rows.Next() {
		var (
			c      model.SeatClaim
			state  string
			holder sql.NullInt64
			until  sql.NullTime
		)
		if err := rows.Scan(&c.ShowingID, &c.Seat.Row, &c.Seat.Col, &state, &holder, &until, &c.Grade); err != nil {
			return nil, err
		}
		c.State = model.ClaimState(state)
		if holder.Valid {
			h := uint64(holder.Int64)
			c.HolderID = &h
		}
		if until.Valid {
			t := until.Time.UTC()
			c.HeldUntil = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
