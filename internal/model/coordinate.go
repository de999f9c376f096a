package model

import (
	"fmt"
	"sort"
	"strings"
)

// Coordinate identifies a seat inside a showing's seat map.  Rows and
// columns are 1-based; row 1 is printed as "A", row 27 as "AA".
type Coordinate struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Valid reports whether both components are positive.
func (c Coordinate) Valid() bool { return c.Row > 0 && c.Col > 0 }

// Less orders coordinates row-major.  Confirm locks rows in this order.
func (c Coordinate) Less(o Coordinate) bool {
	if c.Row != o.Row {
		return c.Row < o.Row
	}
	return c.Col < o.Col
}

// Label renders the coordinate the way tickets print it, e.g. "C4".
func (c Coordinate) Label() string { return fmt.Sprintf("%s%d", RowLabel(c.Row), c.Col) }

func (c Coordinate) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// SortCoordinates sorts in place using Less.
func SortCoordinates(cs []Coordinate) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
}

// UniqueCoordinates returns cs without duplicates, keeping first occurrence order.
func UniqueCoordinates(cs []Coordinate) []Coordinate {
	seen := make(map[Coordinate]struct{}, len(cs))
	out := make([]Coordinate, 0, len(cs))
	for _, c := range cs {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// RowLabel converts a 1-based row number to an alphabetical label like A, B, AA.
func RowLabel(row int) string {
	i := row - 1
	if i < 0 {
		return ""
	}
	res := []rune{}
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// ParseRowLabel is the inverse of RowLabel.  It accepts lower case input.
func ParseRowLabel(label string) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(label))
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 'A' || ch > 'Z' {
			return 0, false
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n, true
}

// ParseLabel is the inverse of Coordinate.Label: "C4" is row 3, column 4.
func ParseLabel(label string) (Coordinate, error) {
	s := strings.TrimSpace(label)
	i := 0
	for i < len(s) && (s[i] < '0' || s[i] > '9') {
		i++
	}
	row, ok := ParseRowLabel(s[:i])
	if !ok || i == len(s) {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidSeat, label)
	}
	col := 0
	for _, ch := range s[i:] {
		if ch < '0' || ch > '9' || col > 1<<20 {
			return Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidSeat, label)
		}
		col = col*10 + int(ch-'0')
	}
	c := Coordinate{Row: row, Col: col}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidSeat, label)
	}
	return c, nil
}
