// Package capture acquires frames of the board region, either from the
// live screen or from a directory of prerecorded PNGs for dev runs.
package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/vova616/screenshot"
)

// Source produces frames covering the board region of interest.
//
// Capture returns a frame whose Bounds().Min pixel corresponds to the
// top-left of the requested region; callers map screen coordinates into
// the frame relative to that anchor. Implementations must be safe for
// use from a single goroutine; the bot loop is the only caller.
type Source interface {
	Capture(ctx context.Context, roi image.Rectangle) (*image.RGBA, error)
	Close() error
}

// ScreenSource grabs the region of interest from the live screen.
type ScreenSource struct{}

// NewScreenSource returns a Source backed by the default display.
func NewScreenSource() *ScreenSource {
	return &ScreenSource{}
}

// Capture grabs one screenshot of roi in absolute screen coordinates.
func (s *ScreenSource) Capture(ctx context.Context, roi image.Rectangle) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if roi.Dx() <= 0 || roi.Dy() <= 0 {
		return nil, fmt.Errorf("capture region %v has no area", roi)
	}
	img, err := screenshot.CaptureRect(roi)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen region %v: %w", roi, err)
	}
	return img, nil
}

// Close releases nothing; the screenshot library opens its display
// connection per call.
func (s *ScreenSource) Close() error { return nil }
