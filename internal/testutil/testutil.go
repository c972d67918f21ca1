// Package testutil provides shared test utilities and fixtures.
//
// Most of it builds synthetic frames and template images so the vision
// and bot tests can run against deterministic pixels instead of real
// screenshots.
package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/linkclear/linkclear/internal/board"
)

// SolidTile returns a w x h image filled with one color. Flat tiles
// exercise the classifier's zero-variance handling.
func SolidTile(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// VSplitTile returns a tile whose left half is one color and right half
// another. Its pixel pattern is orthogonal to HSplitTile's, so the two
// correlate to ~0 under normalized cross-correlation.
func VSplitTile(w, h int, left, right color.Color) *image.RGBA {
	img := SolidTile(w, h, left)
	draw.Draw(img, image.Rect(w/2, 0, w, h), image.NewUniform(right), image.Point{}, draw.Src)
	return img
}

// HSplitTile returns a tile split horizontally.
func HSplitTile(w, h int, top, bottom color.Color) *image.RGBA {
	img := SolidTile(w, h, top)
	draw.Draw(img, image.Rect(0, h/2, w, h), image.NewUniform(bottom), image.Point{}, draw.Src)
	return img
}

// CheckerTile returns a checkerboard with the given square size. Keep
// square at 4px or more so downscaling to the match size does not blur
// it flat.
func CheckerTile(w, h, square int, a, b color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := a
			if (x/square+y/square)%2 == 1 {
				c = b
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// ComposeFrame renders a capture-shaped frame for g: a zero-origin RGBA
// covering exactly g.BoardRect(), with each cell painted from tiles.
// Cells without an entry are filled with bg. Tile images must match the
// geometry's cell size.
func ComposeFrame(t *testing.T, g board.Geometry, tiles map[board.Cell]image.Image, bg color.Color) *image.RGBA {
	t.Helper()

	roi := g.BoardRect()
	frame := image.NewRGBA(image.Rect(0, 0, roi.Dx(), roi.Dy()))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	for cell, img := range tiles {
		if img.Bounds().Dx() != g.CellW || img.Bounds().Dy() != g.CellH {
			t.Fatalf("tile for %v is %dx%d, geometry wants %dx%d",
				cell, img.Bounds().Dx(), img.Bounds().Dy(), g.CellW, g.CellH)
		}
		rect := g.CellRect(cell.Row, cell.Col).Sub(roi.Min)
		draw.Draw(frame, rect, img, img.Bounds().Min, draw.Src)
	}
	return frame
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// WriteTemplateDir writes each image as <name>.png under dir and
// returns dir, ready to hand to the template store.
func WriteTemplateDir(t *testing.T, dir string, templates map[string]image.Image) string {
	t.Helper()
	for name, img := range templates {
		WritePNG(t, filepath.Join(dir, name+".png"), img)
	}
	return dir
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
