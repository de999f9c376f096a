package repository

import (
	"context"
	"sync"

	"github.com/iliyamo/seat-booking-core/internal/model"
)

// MemoryCatalog serves layouts registered with Put.
type MemoryCatalog struct {
	mu      sync.RWMutex
	layouts map[uint64]model.SeatLayout
}

// NewMemoryCatalog returns a catalog preloaded with layouts.
func NewMemoryCatalog(layouts ...model.SeatLayout) *MemoryCatalog {
	c := &MemoryCatalog{layouts: make(map[uint64]model.SeatLayout)}
	for _, l := range layouts {
		c.Put(l)
	}
	return c
}

// Put registers or replaces the layout of l.ShowingID.
func (c *MemoryCatalog) Put(l model.SeatLayout) {
	seats := append([]model.SeatInfo(nil), l.Seats...)
	for i := range seats {
		seats[i].Label = seats[i].Seat.Label()
		if seats[i].Seat.Row > l.Rows {
			l.Rows = seats[i].Seat.Row
		}
		if seats[i].Seat.Col > l.Cols {
			l.Cols = seats[i].Seat.Col
		}
	}
	sortSeatInfos(seats)
	l.Seats = seats
	c.mu.Lock()
	c.layouts[l.ShowingID] = l
	c.mu.Unlock()
}

func (c *MemoryCatalog) Seat(_ context.Context, showingID uint64, seat model.Coordinate) (model.SeatInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.layouts[showingID]
	if !ok {
		return model.SeatInfo{}, ErrShowingNotFound
	}
	for _, s := range l.Seats {
		if s.Seat == seat {
			return s, nil
		}
	}
	return model.SeatInfo{}, ErrSeatNotFound
}

func (c *MemoryCatalog) Layout(_ context.Context, showingID uint64) (model.SeatLayout, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.layouts[showingID]
	if !ok {
		return model.SeatLayout{}, ErrShowingNotFound
	}
	l.Seats = append([]model.SeatInfo(nil), l.Seats...)
	return l, nil
}

// GridLayout builds a rows x cols layout in which every seat has the same
// grade and price.
func GridLayout(showingID uint64, rows, cols int, grade string, priceCents uint32) model.SeatLayout {
	l := model.SeatLayout{ShowingID: showingID, Rows: rows, Cols: cols}
	for r := 1; r <= rows; r++ {
		for col := 1; col <= cols; col++ {
			seat := model.Coordinate{Row: r, Col: col}
			l.Seats = append(l.Seats, model.SeatInfo{Seat: seat, Label: seat.Label(), Grade: grade, PriceCents: priceCents})
		}
	}
	return l
}
