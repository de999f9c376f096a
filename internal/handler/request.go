package handler

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-booking-core/internal/model"
)

// seatRef is a seat in a request body: either {"row":3,"col":4} or the
// printed label "C4".
type seatRef model.Coordinate

func (s *seatRef) UnmarshalJSON(b []byte) error {
	var label string
	if err := json.Unmarshal(b, &label); err == nil {
		c, err := model.ParseLabel(label)
		if err != nil {
			return err
		}
		*s = seatRef(c)
		return nil
	}
	var c model.Coordinate
	if err := json.Unmarshal(b, &c); err != nil {
		return errors.New("seat must be an object or a label")
	}
	*s = seatRef(c)
	return nil
}

type seatsRequest struct {
	Seats []seatRef `json:"seats"`
}

func (r seatsRequest) coordinates() []model.Coordinate {
	out := make([]model.Coordinate, len(r.Seats))
	for i, s := range r.Seats {
		out[i] = model.Coordinate(s)
	}
	return out
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func parsePositive(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil && n > 0
}
