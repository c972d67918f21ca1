package capture

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/linkclear/linkclear/internal/security"
)

// DirSource serves PNG frames from a directory in lexical filename
// order. It backs dev runs and tests, replaying captures recorded with
// the capture-once flag. With wrap enabled the sequence loops forever;
// otherwise Capture returns io.EOF once the frames run out.
type DirSource struct {
	mu    sync.Mutex
	files []string
	idx   int
	wrap  bool
}

// NewDirSource lists the *.png files under dir. It fails when the
// directory is unreadable or holds no frames.
func NewDirSource(dir string, wrap bool) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			return nil, fmt.Errorf("invalid frame path: %w", err)
		}
		files = append(files, path)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frame images (*.png) found in %s", dir)
	}
	sort.Strings(files)

	return &DirSource{files: files, wrap: wrap}, nil
}

// Capture returns the next recorded frame. The roi argument is ignored
// beyond the Source contract; recorded frames already cover the board
// region, and the classifier clips any mismatch.
func (d *DirSource) Capture(ctx context.Context, roi image.Rectangle) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.idx >= len(d.files) {
		if !d.wrap {
			d.mu.Unlock()
			return nil, io.EOF
		}
		d.idx = 0
	}
	path := d.files[d.idx]
	d.idx++
	d.mu.Unlock()

	return loadFrame(path)
}

// Len reports how many frames the source serves per pass.
func (d *DirSource) Len() int { return len(d.files) }

// Close releases nothing; frames are opened per call.
func (d *DirSource) Close() error { return nil }

func loadFrame(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %s: %w", path, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}
