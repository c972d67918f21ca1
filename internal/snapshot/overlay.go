package snapshot

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/linkclear/linkclear/internal/board"
)

var (
	gridLineColor   = color.RGBA{G: 255, A: 255}
	cellCenterColor = color.RGBA{R: 255, A: 255}
)

// DrawGridOverlay copies frame and draws every cell's border and center
// point onto it, mapping screen-space geometry into the frame the same
// way the classifier does. The overlay makes calibration drift obvious
// at a glance.
func DrawGridOverlay(frame image.Image, g board.Geometry) *image.RGBA {
	out := image.NewRGBA(frame.Bounds())
	draw.Draw(out, out.Bounds(), frame, frame.Bounds().Min, draw.Src)

	shift := frame.Bounds().Min.Sub(g.BoardRect().Min)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			drawRectOutline(out, g.CellRect(r, c).Add(shift), gridLineColor)
			cx, cy := g.CellCenter(r, c)
			drawDot(out, image.Pt(cx, cy).Add(shift), 2, cellCenterColor)
		}
	}
	return out
}

func drawRectOutline(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	for x := r.Min.X; x < r.Max.X; x++ {
		setIfIn(img, x, r.Min.Y, col)
		setIfIn(img, x, r.Max.Y-1, col)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		setIfIn(img, r.Min.X, y, col)
		setIfIn(img, r.Max.X-1, y, col)
	}
}

func drawDot(img *image.RGBA, p image.Point, radius int, col color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setIfIn(img, p.X+dx, p.Y+dy, col)
			}
		}
	}
}

func setIfIn(img *image.RGBA, x, y int, col color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, col)
	}
}
