package vision

import (
	"errors"
	"image"
	"math"

	"github.com/linkclear/linkclear/internal/board"
)

// CatalogParams tunes catalog matching.
type CatalogParams struct {
	// MatchThreshold is the minimum NCC score the best candidate must
	// reach; below it the cell stays unknown.
	MatchThreshold float64
	// MinMargin is the minimum lead the best candidate needs over the
	// runner-up. A near-tie means two templates both "match" and the
	// cell is reported unknown rather than guessed.
	MinMargin float64
}

// CatalogClassifier scores every cell against the full template catalog
// and keeps only confident, unambiguous winners.
type CatalogClassifier struct {
	store  *Store
	params CatalogParams
}

// NewCatalogClassifier builds the catalog-mode classifier. The store
// must hold at least one template.
func NewCatalogClassifier(store *Store, params CatalogParams) (*CatalogClassifier, error) {
	if store == nil || store.Len() == 0 {
		return nil, errors.New("catalog classifier requires at least one template image")
	}
	if store.Len() == 1 {
		logf("catalog has a single template (%s); the margin check cannot reject ambiguous cells", store.All()[0].Name)
	}
	return &CatalogClassifier{store: store, params: params}, nil
}

// Classify labels each cell with the best-matching catalog template, or
// 0 when no template matches well enough or two match too closely.
func (c *CatalogClassifier) Classify(frame image.Image, g board.Geometry) (*board.Board, *board.ConfidenceMap, error) {
	warnFrameCoverage(frame, g)

	rows, cols := g.Rows, g.Cols
	b := board.New(rows, cols)
	conf := board.NewConfidenceMap(rows, cols)

	ids := make([]int, rows*cols)
	scores := make([]float64, rows*cols)
	forEach(rows*cols, func(idx int) {
		r, col := idx/cols, idx%cols
		ids[idx], scores[idx] = c.classifyCell(cellCrop(frame, g, r, col))
	})

	for idx := range ids {
		r, col := idx/cols, idx%cols
		b.Set(r, col, ids[idx])
		conf.Set(r, col, scores[idx])
	}
	return b, conf, nil
}

// classifyCell scores one crop against every catalog entry. The best
// score is always reported as the confidence; the id is kept only when
// the score clears MatchThreshold and leads the second-best by
// MinMargin. A single-template catalog has no runner-up, so the margin
// check passes vacuously.
func (c *CatalogClassifier) classifyCell(crop image.Image) (id int, score float64) {
	if crop.Bounds().Empty() {
		return board.Empty, 0
	}
	cell := newPatch(grayValues(normalizeForMatch(crop)))

	bestID := board.Empty
	best := math.Inf(-1)
	second := math.Inf(-1)
	for _, tmpl := range c.store.All() {
		s := tmpl.pat.score(cell)
		switch {
		case s > best:
			second = best
			best, bestID = s, tmpl.ID
		case s > second:
			second = s
		}
	}

	if best < c.params.MatchThreshold {
		return board.Empty, best
	}
	if best-second < c.params.MinMargin {
		return board.Empty, best
	}
	return bestID, best
}
