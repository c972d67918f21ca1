package actuate

import (
	"context"
	"fmt"
	"time"

	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/monitoring"
	"github.com/linkclear/linkclear/internal/timeutil"
)

// CellClicker turns board cells into screen clicks. It validates cells
// against the grid, resolves their centers, and in dry-run mode logs
// what it would have clicked instead of clicking.
type CellClicker struct {
	geom   board.Geometry
	click  Clicker
	clock  timeutil.Clock
	pause  time.Duration
	settle time.Duration
	dryRun bool
}

// NewCellClicker builds a CellClicker over geom. pause is the wait
// between the two clicks of a pair and settle the wait after each
// completed pair; both apply in dry-run mode too so replayed runs keep
// real pacing.
func NewCellClicker(geom board.Geometry, click Clicker, clock timeutil.Clock, pause, settle time.Duration, dryRun bool) *CellClicker {
	return &CellClicker{geom: geom, click: click, clock: clock, pause: pause, settle: settle, dryRun: dryRun}
}

// ClickCell clicks the center of one cell.
func (c *CellClicker) ClickCell(ctx context.Context, cell board.Cell) error {
	if cell.Row < 0 || cell.Row >= c.geom.Rows {
		return fmt.Errorf("row %d out of range [0, %d]", cell.Row, c.geom.Rows-1)
	}
	if cell.Col < 0 || cell.Col >= c.geom.Cols {
		return fmt.Errorf("col %d out of range [0, %d]", cell.Col, c.geom.Cols-1)
	}
	x, y := c.geom.CellCenter(cell.Row, cell.Col)
	if c.dryRun {
		monitoring.Logf("[dry-run] click_cell row=%d col=%d -> x=%d y=%d", cell.Row, cell.Col, x, y)
		return nil
	}
	return c.click.Click(ctx, x, y)
}

// ClickPair clicks both cells of a move in order, pausing between the
// two clicks so the game registers the first selection, then waits for
// the clear animation before the caller rescans.
func (c *CellClicker) ClickPair(ctx context.Context, p board.Pair) error {
	if err := c.ClickCell(ctx, p.A); err != nil {
		return err
	}
	if err := timeutil.SleepContext(ctx, c.clock, c.pause); err != nil {
		return err
	}
	if err := c.ClickCell(ctx, p.B); err != nil {
		return err
	}
	return timeutil.SleepContext(ctx, c.clock, c.settle)
}
