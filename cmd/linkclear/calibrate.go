package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/linkclear/linkclear/internal/board"
)

// cursorSampler reports the pointer's absolute screen position.
type cursorSampler interface {
	Position(ctx context.Context) (image.Point, error)
}

// xdotoolSampler reads the pointer through xdotool, the same tool the
// clicker drives, so calibration and clicks share one coordinate space.
type xdotoolSampler struct{}

func (xdotoolSampler) Position(ctx context.Context) (image.Point, error) {
	out, err := exec.CommandContext(ctx, "xdotool", "getmouselocation").CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return image.Point{}, fmt.Errorf("xdotool getmouselocation: %w: %s", err, msg)
		}
		return image.Point{}, fmt.Errorf("xdotool getmouselocation: %w", err)
	}
	return parseMouseLocation(string(out))
}

// parseMouseLocation extracts the coordinates from xdotool's
// "x:123 y:456 screen:0 window:789" output.
func parseMouseLocation(s string) (image.Point, error) {
	var (
		p              image.Point
		foundX, foundY bool
	)
	for _, field := range strings.Fields(s) {
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch key {
		case "x":
			p.X, foundX = v, true
		case "y":
			p.Y, foundY = v, true
		}
	}
	if !foundX || !foundY {
		return image.Point{}, fmt.Errorf("unexpected xdotool output: %q", strings.TrimSpace(s))
	}
	return p, nil
}

// deriveGeometry builds a gap-free geometry from the playable board's
// outer corners: cells divide the region evenly, matching how the
// classifier slices frames. Corners may be given in either order.
func deriveGeometry(a, b image.Point, rows, cols int) (board.Geometry, error) {
	if rows <= 0 || cols <= 0 {
		return board.Geometry{}, fmt.Errorf("grid must have positive dimensions, got %dx%d", rows, cols)
	}

	x0, x1 := a.X, b.X
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	y0, y1 := a.Y, b.Y
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	w, h := x1-x0, y1-y0
	if w <= 0 || h <= 0 {
		return board.Geometry{}, fmt.Errorf("board corners describe an empty region (%dx%d)", w, h)
	}

	cellW, cellH := w/cols, h/rows
	if cellW <= 0 || cellH <= 0 {
		return board.Geometry{}, fmt.Errorf("region %dx%d is too small for a %dx%d grid", w, h, rows, cols)
	}

	g := board.Geometry{
		Rows: rows, Cols: cols,
		BoardCenterX: x0 + w/2,
		BoardCenterY: y0 + h/2,
		CellW:        cellW,
		CellH:        cellH,
	}
	return g, g.Validate()
}

// runCalibration prompts for the board's top-left and bottom-right
// corners, samples the cursor at each, and prints a config fragment to
// paste into the config file.
func runCalibration(ctx context.Context, in io.Reader, out io.Writer, sampler cursorSampler, rows, cols int) error {
	fmt.Fprintln(out, "Board calibration")
	fmt.Fprintln(out, "- Keep the game window fixed during calibration.")

	reader := bufio.NewReader(in)
	samplePoint := func(label string) (image.Point, error) {
		fmt.Fprintf(out, "- Move mouse to %s corner of the playable board.\n", label)
		fmt.Fprint(out, "Press Enter to capture current mouse position...")
		if _, err := reader.ReadString('\n'); err != nil {
			return image.Point{}, fmt.Errorf("failed to read input: %w", err)
		}
		p, err := sampler.Position(ctx)
		if err != nil {
			return image.Point{}, err
		}
		fmt.Fprintf(out, "Captured: (%d, %d)\n", p.X, p.Y)
		return p, nil
	}

	topLeft, err := samplePoint("TOP-LEFT")
	if err != nil {
		return err
	}
	bottomRight, err := samplePoint("BOTTOM-RIGHT")
	if err != nil {
		return err
	}

	g, err := deriveGeometry(topLeft, bottomRight, rows, cols)
	if err != nil {
		return err
	}

	// Geometry's JSON tags are the config file's geometry keys, so the
	// fragment pastes in directly.
	fragment, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nPaste these values into your config file:")
	fmt.Fprintln(out, string(fragment))
	return nil
}
