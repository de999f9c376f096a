package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/seat-booking-core/internal/clock"
	"github.com/iliyamo/seat-booking-core/internal/model"
)

// SessionRepo persists reservation sessions in reservation_sessions and
// their line items in reservation_items.  Items are rewritten as a whole on
// Save; a session never has more than a handful of them.
type SessionRepo struct {
	q     querier
	clock clock.Clock
}

// NewSessionRepo returns a SessionRepo bound to db.
func NewSessionRepo(db *sql.DB, clk clock.Clock) *SessionRepo {
	if clk == nil {
		clk = clock.Real()
	}
	return &SessionRepo{q: db, clock: clk}
}

const sessionColumns = `id, user_id, show_id, confirmation_code, status, total_amount_cents, max_seats,
                        created_at, expires_at, updated_at`

// Create inserts the session row and any items it already carries.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `INSERT INTO reservation_sessions (` + sessionColumns + `)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q,
		s.ID, s.OwnerID, s.ShowingID, s.ConfirmationCode, string(s.Status), s.TotalCents, s.MaxSeats,
		s.CreatedAt.UTC(), s.ExpiresAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	return r.insertItems(ctx, s)
}

// Get loads a session with its items.
func (r *SessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate is Get with a row lock on the session.  Two requests for
// the same session are therefore applied one after the other.
func (r *SessionRepo) GetForUpdate(ctx context.Context, id string) (*model.Session, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *SessionRepo) get(ctx context.Context, id, suffix string) (*model.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM reservation_sessions WHERE id = ?` + suffix
	s, err := scanSession(r.q.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// PendingFor returns the user's PENDING sessions for a showing, locked.
func (r *SessionRepo) PendingFor(ctx context.Context, userID, showingID uint64) ([]*model.Session, error) {
	const q = `SELECT ` + sessionColumns + `
               FROM reservation_sessions
               WHERE user_id = ? AND show_id = ? AND status = 'PENDING'
               ORDER BY created_at
               FOR UPDATE`
	rows, err := r.q.QueryContext(ctx, q, userID, showingID)
	if err != nil {
		return nil, err
	}
	var out []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	for _, s := range out {
		if err := r.loadItems(ctx, s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Save updates status, total and timestamp, then replaces the items.
func (r *SessionRepo) Save(ctx context.Context, s *model.Session) error {
	const q = `UPDATE reservation_sessions
               SET status = ?, total_amount_cents = ?, updated_at = ?
               WHERE id = ?`
	res, err := r.q.ExecContext(ctx, q, string(s.Status), s.TotalCents, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrConflict
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM reservation_items WHERE session_id = ?`, s.ID); err != nil {
		return err
	}
	return r.insertItems(ctx, s)
}

// ListExpiredPending returns PENDING sessions past their deadline.
func (r *SessionRepo) ListExpiredPending(ctx context.Context, limit int) ([]string, error) {
	const q = `SELECT id FROM reservation_sessions
               WHERE status = 'PENDING' AND expires_at <= ?
               ORDER BY expires_at
               LIMIT ?`
	rows, err := r.q.QueryContext(ctx, q, r.clock.Now().UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// insertItems writes all items in one multi-row INSERT.
func (r *SessionRepo) insertItems(ctx context.Context, s *model.Session) error {
	if len(s.Items) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO reservation_items (session_id, show_id, seat_row, seat_col, grade, price_cents) VALUES `)
	args := make([]interface{}, 0, len(s.Items)*6)
	for i, it := range s.Items {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, s.ID, s.ShowingID, it.Seat.Row, it.Seat.Col, it.Grade, it.PriceCents)
	}
	_, err := r.q.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *SessionRepo) loadItems(ctx context.Context, s *model.Session) error {
	const q = `SELECT seat_row, seat_col, grade, price_cents
               FROM reservation_items
               WHERE session_id = ?
               ORDER BY seat_row, seat_col`
	rows, err := r.q.QueryContext(ctx, q, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	s.Items = []model.LineItem{}
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.Seat.Row, &it.Seat.Col, &it.Grade, &it.PriceCents); err != nil {
			return err
		}
		s.Items = append(s.Items, it)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		s      model.Session
		status string
	)
	err := row.Scan(&s.ID, &s.OwnerID, &s.ShowingID, &s.ConfirmationCode, &status, &s.TotalCents, &s.MaxSeats,
		&s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}
