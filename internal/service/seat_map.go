package service

import (
	"context"
	"time"

	"github.com/iliyamo/seat-booking-core/internal/model"
)

// SeatStatus is one seat of the seat map with its current occupancy.
type SeatStatus struct {
	model.SeatInfo
	State     model.ClaimState `json:"state"`
	HeldUntil *time.Time       `json:"held_until,omitempty"`
}

// SeatMap is a point-in-time snapshot of a showing.  Clients fetch it on
// connect and after a resync event, then apply live events on top.
type SeatMap struct {
	ShowingID   uint64       `json:"showing_id"`
	Rows        int          `json:"rows"`
	Cols        int          `json:"cols"`
	Seats       []SeatStatus `json:"seats"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Layout returns the static geometry of a showing.
func (s *BookingService) Layout(ctx context.Context, showingID uint64) (model.SeatLayout, error) {
	layout, err := s.catalog.Layout(ctx, showingID)
	if err != nil {
		return model.SeatLayout{}, catalogErr(err)
	}
	return layout, nil
}

// SeatMap merges the layout with the ledger.  Holds whose lease has
// elapsed are reported FREE: the next Hold on them will succeed.
func (s *BookingService) SeatMap(ctx context.Context, showingID uint64) (*SeatMap, error) {
	layout, err := s.Layout(ctx, showingID)
	if err != nil {
		return nil, err
	}
	claims, err := s.store.Ledger().Claims(ctx, showingID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	byCoord := make(map[model.Coordinate]model.SeatClaim, len(claims))
	for _, c := range claims {
		if c.Elapsed(now) {
			continue
		}
		byCoord[c.Seat] = c
	}

	m := &SeatMap{
		ShowingID:   showingID,
		Rows:        layout.Rows,
		Cols:        layout.Cols,
		Seats:       make([]SeatStatus, 0, len(layout.Seats)),
		GeneratedAt: now,
	}
	for _, info := range layout.Seats {
		st := SeatStatus{SeatInfo: info, State: model.ClaimFree}
		if c, ok := byCoord[info.Seat]; ok {
			st.State = c.State
			st.HeldUntil = c.HeldUntil
		}
		m.Seats = append(m.Seats, st)
	}
	return m, nil
}
