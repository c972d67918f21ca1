package vision

import "math"

// flatVarianceEps is the squared-deviation floor below which a patch
// counts as flat. Flat patches carry no correlation signal, so they get
// special-cased instead of dividing by ~0.
const flatVarianceEps = 1e-9

// patch is a pixel vector prepared for repeated normalized
// cross-correlation: the mean is removed and the deviation norm cached.
// The classifiers compare every cell against every template (or every
// other cell), so the preparation pays for itself quickly.
type patch struct {
	mean     float64
	centered []float64
	norm     float64 // sqrt of squared-deviation sum; 0 marks a flat patch
}

func newPatch(vals []float64) patch {
	var mean float64
	for _, v := range vals {
		mean += v
	}
	if len(vals) > 0 {
		mean /= float64(len(vals))
	}

	centered := make([]float64, len(vals))
	var ss float64
	for i, v := range vals {
		d := v - mean
		centered[i] = d
		ss += d * d
	}

	norm := 0.0
	if ss >= flatVarianceEps {
		norm = math.Sqrt(ss)
	}
	return patch{mean: mean, centered: centered, norm: norm}
}

// score returns the zero-mean normalized cross-correlation of two
// equal-size patches, in [-1, 1]. Degenerate patches fall back as
// follows: two flat patches compare by brightness (1 for identical,
// approaching 0 as their means diverge), and a flat patch against a
// textured one scores 0 because there is no correlation evidence
// either way.
func (p patch) score(q patch) float64 {
	if len(p.centered) == 0 || len(p.centered) != len(q.centered) {
		return 0
	}

	flatP := p.norm == 0
	flatQ := q.norm == 0
	switch {
	case flatP && flatQ:
		return 1 - math.Abs(p.mean-q.mean)/255
	case flatP || flatQ:
		return 0
	}

	var num float64
	for i, v := range p.centered {
		num += v * q.centered[i]
	}
	return num / (p.norm * q.norm)
}

// nccScore is the one-shot form for callers that don't reuse patches.
func nccScore(a, b []float64) float64 {
	return newPatch(a).score(newPatch(b))
}

// madScore is the mean-absolute-difference similarity, 1 at identical
// pixels and 0 at maximal disagreement. Unlike NCC it keeps absolute
// brightness, which is what the block-anchor test wants: blocks are a
// fixed sprite, not a pattern family.
func madScore(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var sum float64
	for i, v := range a {
		sum += math.Abs(v - b[i])
	}
	return 1 - sum/float64(len(a))/255
}
