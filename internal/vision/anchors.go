package vision

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/unionfind"
)

// emptyCenterCropRatio trims the cell to its middle 60% before the
// marked-pixel test, so cell borders and neighbor bleed don't dilute
// the ratio.
const emptyCenterCropRatio = 0.6

// AnchorParams tunes anchor classification.
type AnchorParams struct {
	// BlockMatchThreshold is the minimum similarity to the block
	// reference for a cell to count as an obstacle.
	BlockMatchThreshold float64
	// EmptyPinkRatioThreshold and EmptyTextureThreshold together decide
	// emptiness: enough marked-band pixels AND low texture.
	EmptyPinkRatioThreshold float64
	EmptyTextureThreshold   float64
	// TileSimilarityThreshold is the minimum pairwise NCC for two
	// unresolved cells to join the same tile group.
	TileSimilarityThreshold float64
}

// AnchorClassifier classifies with only two reference images. Blocks
// and empties are recognized directly; everything else is grouped by
// pairwise visual similarity and each viable group becomes a synthetic
// tile type. The background reference must be present at load time, but
// emptiness itself is decided by the marked-ratio/texture heuristic.
type AnchorClassifier struct {
	store  *Store
	params AnchorParams
	block  Template
}

// NewAnchorClassifier builds the anchor-mode classifier. The store must
// hold both the block and background references.
func NewAnchorClassifier(store *Store, params AnchorParams) (*AnchorClassifier, error) {
	if store == nil {
		return nil, errors.New("anchor classifier requires a template store")
	}
	block, ok := store.Block()
	if !ok {
		return nil, fmt.Errorf("anchor classifier requires a %s.png template", blockTemplateName)
	}
	if _, ok := store.Background(); !ok {
		return nil, fmt.Errorf("anchor classifier requires a %s.png template", backgroundTemplateName)
	}
	return &AnchorClassifier{store: store, params: params, block: block}, nil
}

// firstPassResult is one cell's outcome before clustering. Unresolved
// cells carry their prepared patch forward to the pairwise phase and a
// provisional confidence that clustering later replaces.
type firstPassResult struct {
	id         int
	conf       float64
	unresolved bool
	pat        patch
}

func (c *AnchorClassifier) firstPass(crop image.Image) firstPassResult {
	if crop.Bounds().Empty() {
		return firstPassResult{id: board.Empty}
	}

	vals := grayValues(normalizeForMatch(crop))
	blockScore := madScore(vals, c.block.vals)
	if blockScore >= c.params.BlockMatchThreshold {
		return firstPassResult{id: board.Obstacle, conf: blockScore}
	}

	pink := markedRatio(centerCrop(crop, emptyCenterCropRatio))
	if pink >= c.params.EmptyPinkRatioThreshold && textureStd(crop) <= c.params.EmptyTextureThreshold {
		return firstPassResult{id: board.Empty, conf: pink}
	}

	return firstPassResult{
		unresolved: true,
		conf:       math.Max(blockScore, pink),
		pat:        newPatch(vals),
	}
}

// Classify runs the block/empty tests on every cell, then groups the
// leftover cells by pairwise similarity. Groups that cannot be fully
// paired (singletons, odd sizes) demote to empty with zero confidence.
func (c *AnchorClassifier) Classify(frame image.Image, g board.Geometry) (*board.Board, *board.ConfidenceMap, error) {
	warnFrameCoverage(frame, g)

	rows, cols := g.Rows, g.Cols
	n := rows * cols
	ids := make([]int, n)
	confs := make([]float64, n)
	pats := make([]patch, n)
	unresolved := make([]bool, n)

	forEach(n, func(idx int) {
		res := c.firstPass(cellCrop(frame, g, idx/cols, idx%cols))
		ids[idx], confs[idx] = res.id, res.conf
		unresolved[idx], pats[idx] = res.unresolved, res.pat
	})

	c.clusterUnresolved(ids, confs, pats, unresolved)

	b := board.New(rows, cols)
	conf := board.NewConfidenceMap(rows, cols)
	for idx := 0; idx < n; idx++ {
		b.Set(idx/cols, idx%cols, ids[idx])
		conf.Set(idx/cols, idx%cols, confs[idx])
	}
	return b, conf, nil
}

// clusterUnresolved groups unresolved cells by pairwise NCC and writes
// final ids and confidences back into ids/confs. Cell indices are
// row-major, so ascending index order is exactly (row, col) order;
// groups therefore come out ordered by their smallest member, and
// synthetic ids 1, 2, ... are stable for a given board image.
func (c *AnchorClassifier) clusterUnresolved(ids []int, confs []float64, pats []patch, unresolved []bool) {
	var cells []int
	for idx, u := range unresolved {
		if u {
			cells = append(cells, idx)
		}
	}
	m := len(cells)
	if m == 0 {
		return
	}

	type pairIdx struct{ i, j int }
	pairs := make([]pairIdx, 0, m*(m-1)/2)
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			pairs = append(pairs, pairIdx{i, j})
		}
	}

	sims := make([][]float64, m)
	for i := range sims {
		sims[i] = make([]float64, m)
	}
	forEach(len(pairs), func(k int) {
		p := pairs[k]
		s := pats[cells[p.i]].score(pats[cells[p.j]])
		sims[p.i][p.j] = s
		sims[p.j][p.i] = s
	})

	dsu := unionfind.New(m)
	for _, p := range pairs {
		if sims[p.i][p.j] >= c.params.TileSimilarityThreshold {
			dsu.Union(p.i, p.j)
		}
	}

	// Roots are recorded the first time they appear, which is at their
	// group's smallest member.
	groups := make(map[int][]int, m)
	var roots []int
	for i := 0; i < m; i++ {
		root := dsu.Find(i)
		if _, seen := groups[root]; !seen {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], i)
	}

	nextID := 1
	for _, root := range roots {
		members := groups[root]
		if len(members) < 2 || len(members)%2 != 0 {
			for _, i := range members {
				ids[cells[i]] = board.Empty
				confs[cells[i]] = 0
			}
			continue
		}

		id := nextID
		nextID++
		for _, i := range members {
			with := make([]float64, 0, len(members)-1)
			for _, j := range members {
				if j != i {
					with = append(with, sims[i][j])
				}
			}
			ids[cells[i]] = id
			confs[cells[i]] = stat.Mean(with, nil)
		}
	}
}
