package board

import (
	"fmt"
	"image"
)

// Geometry places the board on screen. The model is center-based: the
// caller calibrates the center of the whole grid plus per-cell size and
// spacing, and everything else is derived. All values are pixels in
// screen coordinates.
type Geometry struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`

	BoardCenterX int `json:"board_center_x"`
	BoardCenterY int `json:"board_center_y"`

	CellW int `json:"cell_w"`
	CellH int `json:"cell_h"`
	GapX  int `json:"gap_x"`
	GapY  int `json:"gap_y"`
}

// Validate rejects geometries that cannot address any pixels.
func (g Geometry) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("grid must have positive dimensions, got %dx%d", g.Rows, g.Cols)
	}
	if g.CellW <= 0 || g.CellH <= 0 {
		return fmt.Errorf("cell size must be positive, got %dx%d", g.CellW, g.CellH)
	}
	if g.GapX < 0 || g.GapY < 0 {
		return fmt.Errorf("cell gaps must be non-negative, got %d,%d", g.GapX, g.GapY)
	}
	return nil
}

// pitch is the stride from one cell's left/top edge to the next.
func (g Geometry) pitchX() int { return g.CellW + g.GapX }
func (g Geometry) pitchY() int { return g.CellH + g.GapY }

// gridW and gridH span the outer edges of the grid. Gaps sit between
// cells only, so n cells contribute n-1 gaps.
func (g Geometry) gridW() int { return g.Cols*g.CellW + (g.Cols-1)*g.GapX }
func (g Geometry) gridH() int { return g.Rows*g.CellH + (g.Rows-1)*g.GapY }

// origin returns the screen position of the grid's top-left corner.
func (g Geometry) origin() (x, y int) {
	return g.BoardCenterX - g.gridW()/2, g.BoardCenterY - g.gridH()/2
}

// CellCenter returns the screen pixel at the middle of cell (r, c).
// This is where the clicker aims.
func (g Geometry) CellCenter(r, c int) (x, y int) {
	ox, oy := g.origin()
	return ox + c*g.pitchX() + g.CellW/2, oy + r*g.pitchY() + g.CellH/2
}

// CellRect returns the screen rectangle covering cell (r, c), excluding
// the gap around it.
func (g Geometry) CellRect(r, c int) image.Rectangle {
	ox, oy := g.origin()
	x0 := ox + c*g.pitchX()
	y0 := oy + r*g.pitchY()
	return image.Rect(x0, y0, x0+g.CellW, y0+g.CellH)
}

// BoardRect returns the screen rectangle covering the whole grid. The
// capture layer uses it as the region of interest.
func (g Geometry) BoardRect() image.Rectangle {
	ox, oy := g.origin()
	return image.Rect(ox, oy, ox+g.gridW(), oy+g.gridH())
}
