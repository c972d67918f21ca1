package vision

import (
	"image"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// matchSize is the side length every patch is scaled to before
// comparison. Matching at a fixed small size makes scores independent
// of the calibrated cell size and keeps the pairwise phase cheap.
const matchSize = 32

// grayscale converts src to 8-bit grayscale at its native size.
func grayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

// normalizeForMatch produces the canonical patch all comparisons use:
// grayscale scaled to matchSize x matchSize.
func normalizeForMatch(src image.Image) *image.Gray {
	g := grayscale(src)
	dst := image.NewGray(image.Rect(0, 0, matchSize, matchSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), g, g.Bounds(), draw.Src, nil)
	return dst
}

// grayValues flattens a gray image into float64 pixel values.
func grayValues(g *image.Gray) []float64 {
	b := g.Bounds()
	vals := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := g.PixOffset(b.Min.X, y)
		for _, p := range g.Pix[off : off+b.Dx()] {
			vals = append(vals, float64(p))
		}
	}
	return vals
}

// textureStd measures how busy a cell is: the population standard
// deviation of its grayscale pixels at native resolution. Empty cells
// are near flat; tiles and blocks are not.
func textureStd(src image.Image) float64 {
	vals := grayValues(grayscale(src))
	if len(vals) == 0 {
		return 0
	}
	return stat.PopStdDev(vals, nil)
}

// centerCrop trims src to the middle ratio of its width and height,
// cutting away cell borders and the neighbors' bleed.
func centerCrop(src image.Image, ratio float64) image.Image {
	b := src.Bounds()
	w := int(float64(b.Dx()) * ratio)
	h := int(float64(b.Dy()) * ratio)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	rect := image.Rect(x0, y0, x0+w, y0+h)

	if si, ok := src.(subImager); ok {
		return si.SubImage(rect)
	}
	dst := image.NewRGBA(rect)
	draw.Copy(dst, rect.Min, src, rect, draw.Src, nil)
	return dst
}
