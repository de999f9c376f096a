package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/iliyamo/seat-booking-core/internal/model"
)

// CatalogRepo reads showing geometry and prices from the catalog tables
// (shows, seats, show_seats).  Rows are addressed by their alphabetical
// row label and seat number; the booking core works with 1-based numeric
// coordinates, so row labels are converted with model.RowLabel.
//
// A seat's price is the show_seats override when present and the show's
// base price otherwise.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo constructs a CatalogRepo given a DB handle.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

const catalogSeats = `SELECT se.row_label, se.seat_number, se.seat_type,
                             COALESCE(ss.price_cents, sh.base_price_cents)
                      FROM shows sh
                      JOIN seats se ON se.hall_id = sh.hall_id AND se.is_active = 1
                      LEFT JOIN show_seats ss ON ss.show_id = sh.id AND ss.seat_id = se.id
                      WHERE sh.id = ?`

// Seat resolves grade and price of one seat.
func (r *CatalogRepo) Seat(ctx context.Context, showingID uint64, seat model.Coordinate) (model.SeatInfo, error) {
	if !seat.Valid() {
		return model.SeatInfo{}, ErrSeatNotFound
	}
	q := catalogSeats + ` AND se.row_label = ? AND se.seat_number = ?`
	var (
		info  model.SeatInfo
		label string
		num   int
	)
	err := r.db.QueryRowContext(ctx, q, showingID, model.RowLabel(seat.Row), seat.Col).
		Scan(&label, &num, &info.Grade, &info.PriceCents)
	if errors.Is(err, sql.ErrNoRows) {
		if exists, exErr := r.showExists(ctx, showingID); exErr != nil {
			return model.SeatInfo{}, exErr
		} else if !exists {
			return model.SeatInfo{}, ErrShowingNotFound
		}
		return model.SeatInfo{}, ErrSeatNotFound
	}
	if err != nil {
		return model.SeatInfo{}, err
	}
	info.Seat = seat
	info.Label = seat.Label()
	return info, nil
}

// Layout returns every active seat of the showing's hall.
func (r *CatalogRepo) Layout(ctx context.Context, showingID uint64) (model.SeatLayout, error) {
	exists, err := r.showExists(ctx, showingID)
	if err != nil {
		return model.SeatLayout{}, err
	}
	if !exists {
		return model.SeatLayout{}, ErrShowingNotFound
	}
	rows, err := r.db.QueryContext(ctx, catalogSeats, showingID)
	if err != nil {
		return model.SeatLayout{}, err
	}
	defer rows.Close()

	layout := model.SeatLayout{ShowingID: showingID, Seats: []model.SeatInfo{}}
	for rows.Next() {
		var (
			info  model.SeatInfo
			label string
			num   int
		)
		if err := rows.Scan(&label, &num, &info.Grade, &info.PriceCents); err != nil {
			return model.SeatLayout{}, err
		}
		row, ok := model.ParseRowLabel(label)
		if !ok || num <= 0 {
			// non-alphabetical row labels have no coordinate
			continue
		}
		info.Seat = model.Coordinate{Row: row, Col: num}
		info.Label = info.Seat.Label()
		layout.Seats = append(layout.Seats, info)
		if row > layout.Rows {
			layout.Rows = row
		}
		if num > layout.Cols {
			layout.Cols = num
		}
	}
	if err := rows.Err(); err != nil {
		return model.SeatLayout{}, err
	}
	sortSeatInfos(layout.Seats)
	return layout, nil
}

func (r *CatalogRepo) showExists(ctx context.Context, showingID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM shows WHERE id = ?`, showingID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func sortSeatInfos(seats []model.SeatInfo) {
	sort.Slice(seats, func(i, j int) bool { return seats[i].Seat.Less(seats[j].Seat) })
}
