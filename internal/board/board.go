// Package board holds the grid model shared by the classifier, the solver
// and the runtime loop: tile boards, per-cell confidence maps, and the
// screen geometry that maps cells to pixels.
package board

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Cell values stored in a Board. Positive values are tile type ids
// assigned by the template catalog.
const (
	Obstacle = -1 // unremovable blocker
	Empty    = 0  // empty or unresolved cell
)

// Cell addresses one board position.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Less orders cells row-major: by row, then by column.
func (c Cell) Less(o Cell) bool {
	if c.Row != o.Row {
		return c.Row < o.Row
	}
	return c.Col < o.Col
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Pair is a candidate move: two cells holding the same tile.
type Pair struct {
	A Cell `json:"a"`
	B Cell `json:"b"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%s-%s", p.A, p.B)
}

// Board is a rows x cols grid of tile ids stored row-major in a flat
// slice. Values are Obstacle, Empty, or positive tile ids.
type Board struct {
	rows, cols int
	cells      []int
}

// New returns an all-Empty board. Dimensions must be positive; the
// config layer validates them before any board is built.
func New(rows, cols int) *Board {
	return &Board{
		rows:  rows,
		cols:  cols,
		cells: make([]int, rows*cols),
	}
}

// FromRows builds a board from row slices. All rows must have the same
// length.
func FromRows(rows [][]int) (*Board, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("board needs at least one row and one column")
	}
	b := New(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != b.cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", r, len(row), b.cols)
		}
		copy(b.cells[r*b.cols:(r+1)*b.cols], row)
	}
	return b, nil
}

func (b *Board) Rows() int { return b.rows }
func (b *Board) Cols() int { return b.cols }

// InBounds reports whether (r, c) addresses a real cell.
func (b *Board) InBounds(r, c int) bool {
	return r >= 0 && r < b.rows && c >= 0 && c < b.cols
}

// At returns the value at (r, c). Callers are expected to stay in
// bounds; the flat index will panic otherwise, same as a slice access.
func (b *Board) At(r, c int) int {
	return b.cells[r*b.cols+c]
}

// Set stores v at (r, c).
func (b *Board) Set(r, c, v int) {
	b.cells[r*b.cols+c] = v
}

// Clone returns a deep copy. The solver never mutates boards, but the
// bot loop clears cells optimistically after a click and keeps the
// previous board for mismatch checks.
func (b *Board) Clone() *Board {
	nb := New(b.rows, b.cols)
	copy(nb.cells, b.cells)
	return nb
}

// CountPositive returns how many cells hold a tile id.
func (b *Board) CountPositive() int {
	n := 0
	for _, v := range b.cells {
		if v > 0 {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the board as nested row arrays, which is what the
// status API and snapshot dumps serve.
func (b *Board) MarshalJSON() ([]byte, error) {
	rows := make([][]int, b.rows)
	for r := 0; r < b.rows; r++ {
		rows[r] = b.cells[r*b.cols : (r+1)*b.cols]
	}
	return json.Marshal(rows)
}

// UnmarshalJSON decodes nested row arrays produced by MarshalJSON.
func (b *Board) UnmarshalJSON(data []byte) error {
	var rows [][]int
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	nb, err := FromRows(rows)
	if err != nil {
		return err
	}
	*b = *nb
	return nil
}

// ConfidenceMap is a rows x cols grid of classifier confidences in
// [0, 1], stored like Board.
type ConfidenceMap struct {
	rows, cols int
	vals       []float64
}

// NewConfidenceMap returns an all-zero confidence map.
func NewConfidenceMap(rows, cols int) *ConfidenceMap {
	return &ConfidenceMap{
		rows: rows,
		cols: cols,
		vals: make([]float64, rows*cols),
	}
}

func (m *ConfidenceMap) Rows() int { return m.rows }
func (m *ConfidenceMap) Cols() int { return m.cols }

// At returns the confidence at (r, c).
func (m *ConfidenceMap) At(r, c int) float64 {
	return m.vals[r*m.cols+c]
}

// Set stores v at (r, c), clamped to [0, 1]. NCC scores range over
// [-1, 1]; clamping here keeps the map's invariant in one place.
func (m *ConfidenceMap) Set(r, c int, v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	m.vals[r*m.cols+c] = v
}

// Empty reports whether the map is nil or has no cells.
func (m *ConfidenceMap) Empty() bool {
	return m == nil || len(m.vals) == 0
}

// Mean returns the average confidence, or 0 for an empty map.
func (m *ConfidenceMap) Mean() float64 {
	if m.Empty() {
		return 0
	}
	return stat.Mean(m.vals, nil)
}

// Min returns the lowest confidence, or 0 for an empty map.
func (m *ConfidenceMap) Min() float64 {
	if m.Empty() {
		return 0
	}
	return floats.Min(m.vals)
}

// MarshalJSON encodes the map as nested row arrays.
func (m *ConfidenceMap) MarshalJSON() ([]byte, error) {
	rows := make([][]float64, m.rows)
	for r := 0; r < m.rows; r++ {
		rows[r] = m.vals[r*m.cols : (r+1)*m.cols]
	}
	return json.Marshal(rows)
}

// UnmarshalJSON decodes nested row arrays produced by MarshalJSON.
func (m *ConfidenceMap) UnmarshalJSON(data []byte) error {
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return fmt.Errorf("confidence map needs at least one row and one column")
	}
	nm := NewConfidenceMap(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != nm.cols {
			return fmt.Errorf("row %d has %d columns, want %d", r, len(row), nm.cols)
		}
		for c, v := range row {
			nm.Set(r, c, v)
		}
	}
	*m = *nm
	return nil
}
