// Package grid holds the tabular mapping a reviewer edits.
//
// Row 0 is the header; rows 1..N are data rows whose length always equals
// the header length. Overlays (warnings, flags) are derived from the grid
// and the server's mapping metadata on demand and are never stored in it.
package grid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEmptyHeader is returned when the header row has no columns.
	ErrEmptyHeader = errors.New("grid header has no columns")
	// ErrRaggedRow is returned when a data row's length differs from the header's.
	ErrRaggedRow = errors.New("grid row length does not match header")
)

// Grid is an immutable-by-convention table of cell values. Mutation goes
// through Engine so editability is always enforced.
type Grid struct {
	rows [][]string
}

// New validates the shape invariant and returns a grid holding a copy of rows.
// Zero rows yields an empty grid.
func New(rows [][]string) (Grid, error) {
	if len(rows) == 0 {
		return Grid{}, nil
	}
	width := len(rows[0])
	if width == 0 {
		return Grid{}, ErrEmptyHeader
	}
	for i := 1; i < len(rows); i++ {
		if len(rows[i]) != width {
			return Grid{}, fmt.Errorf("%w: row %d has %d cells, header has %d", ErrRaggedRow, i, len(rows[i]), width)
		}
	}
	return Grid{rows: cloneRows(rows)}, nil
}

// MustNew is New for literals in tests and fixtures.
func MustNew(rows [][]string) Grid {
	g, err := New(rows)
	if err != nil {
		panic(err)
	}
	return g
}

// Decode parses the wire form of a grid: an array of rows of scalar cells.
// null cells become "", other non-string scalars keep their JSON text.
func Decode(raw json.RawMessage) (Grid, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Grid{}, nil
	}
	var wire [][]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Grid{}, fmt.Errorf("decode grid: %w", err)
	}
	rows := make([][]string, len(wire))
	for i, r := range wire {
		rows[i] = make([]string, len(r))
		for j, cell := range r {
			rows[i][j] = cellText(cell)
		}
	}
	return New(rows)
}

func cellText(cell json.RawMessage) string {
	cell = bytes.TrimSpace(cell)
	if len(cell) == 0 || bytes.Equal(cell, []byte("null")) {
		return ""
	}
	if cell[0] == '"' {
		var s string
		if err := json.Unmarshal(cell, &s); err == nil {
			return s
		}
	}
	return string(cell)
}

// IsEmpty reports whether the grid has no data rows.
func (g Grid) IsEmpty() bool {
	return len(g.rows) < 2
}

// Len returns the number of rows including the header.
func (g Grid) Len() int {
	return len(g.rows)
}

// Width returns the number of columns.
func (g Grid) Width() int {
	if len(g.rows) == 0 {
		return 0
	}
	return len(g.rows[0])
}

// Header returns a copy of the header row.
func (g Grid) Header() []string {
	if len(g.rows) == 0 {
		return nil
	}
	return append([]string(nil), g.rows[0]...)
}

// Row returns a copy of row r, or nil when r is out of range.
func (g Grid) Row(r int) []string {
	if r < 0 || r >= len(g.rows) {
		return nil
	}
	return append([]string(nil), g.rows[r]...)
}

// Cell returns the value at (r, c).
func (g Grid) Cell(r, c int) (string, bool) {
	if !g.contains(r, c) {
		return "", false
	}
	return g.rows[r][c], true
}

// Values returns a deep copy of all rows.
func (g Grid) Values() [][]string {
	return cloneRows(g.rows)
}

// Clone returns an independent copy.
func (g Grid) Clone() Grid {
	return Grid{rows: cloneRows(g.rows)}
}

// MarshalJSON encodes the grid in its wire form.
func (g Grid) MarshalJSON() ([]byte, error) {
	if g.rows == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(g.rows)
}

// UnmarshalJSON accepts the wire form and enforces the shape invariant.
func (g *Grid) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*g = decoded
	return nil
}

func (g Grid) contains(r, c int) bool {
	return r >= 0 && r < len(g.rows) && c >= 0 && c < len(g.rows[r])
}

// set writes a cell in place. Callers enforce editability.
func (g Grid) set(r, c int, v string) bool {
	if !g.contains(r, c) {
		return false
	}
	g.rows[r][c] = v
	return true
}

func cloneRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
