// Package vision turns captured frames into tile boards. Two classifier
// variants exist: catalog matching scores every cell against a full
// template catalog, while anchor classification only needs block and
// background references and groups the remaining cells by pairwise
// visual similarity.
package vision

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"golang.org/x/image/draw"

	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/config"
	"github.com/linkclear/linkclear/internal/monitoring"
)

var logf = monitoring.Prefixed("vision")

// Classifier converts one frame into a board plus per-cell confidence.
// The frame must cover the geometry's board rectangle; its Bounds().Min
// is treated as the top-left corner of that rectangle, which matches
// both zero-origin capture buffers and SubImage views.
type Classifier interface {
	Classify(frame image.Image, g board.Geometry) (*board.Board, *board.ConfidenceMap, error)
}

// New loads the template store and builds the classifier selected by
// classifier_mode.
func New(cfg *config.Config) (Classifier, error) {
	store, err := LoadStore(cfg.GetTemplateDir())
	if err != nil {
		return nil, err
	}

	switch mode := cfg.GetClassifierMode(); mode {
	case config.ModeCatalog:
		return NewCatalogClassifier(store, CatalogParams{
			MatchThreshold: cfg.GetMatchThreshold(),
			MinMargin:      cfg.GetMinMarginToSecondBest(),
		})
	case config.ModeAnchors:
		return NewAnchorClassifier(store, AnchorParams{
			BlockMatchThreshold:     cfg.GetBlockMatchThreshold(),
			EmptyPinkRatioThreshold: cfg.GetEmptyPinkRatioThreshold(),
			EmptyTextureThreshold:   cfg.GetEmptyTextureThreshold(),
			TileSimilarityThreshold: cfg.GetTileSimilarityThreshold(),
		})
	default:
		return nil, fmt.Errorf("unknown classifier mode %q", mode)
	}
}

// warnFrameCoverage logs when the frame is smaller than the board
// region. Classification still proceeds: cells that fall outside the
// frame crop to zero area and classify as empty with confidence 0, so
// a truncated capture degrades into a low-confidence scan instead of
// an error.
func warnFrameCoverage(frame image.Image, g board.Geometry) {
	need := g.BoardRect()
	have := frame.Bounds()
	if have.Dx() < need.Dx() || have.Dy() < need.Dy() {
		logf("frame is %dx%d but the board region needs %dx%d; uncovered cells classify as empty",
			have.Dx(), have.Dy(), need.Dx(), need.Dy())
	}
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cellCrop returns the frame region for cell (r, c). Standard image
// types share pixels via SubImage; anything else is copied.
func cellCrop(frame image.Image, g board.Geometry, r, c int) image.Image {
	roi := g.BoardRect()
	rect := g.CellRect(r, c).Sub(roi.Min).Add(frame.Bounds().Min)
	rect = rect.Intersect(frame.Bounds())

	if si, ok := frame.(subImager); ok {
		return si.SubImage(rect)
	}
	dst := image.NewRGBA(rect)
	draw.Copy(dst, rect.Min, frame, rect, draw.Src, nil)
	return dst
}

// forEach fans indices 0..n-1 out over a worker pool and waits for all
// of them. Callers hand each index its own output slot, so workers
// never share mutable state.
func forEach(n int, fn func(idx int)) {
	if n <= 0 {
		return
	}
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}

	work := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				fn(idx)
			}
		}()
	}
	for idx := 0; idx < n; idx++ {
		work <- idx
	}
	close(work)
	wg.Wait()
}
