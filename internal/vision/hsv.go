package vision

import "image"

// Marked-cell detection works in HSV using the OpenCV convention
// (hue 0..180, saturation and value 0..255) so thresholds tuned against
// OpenCV-based captures carry over unchanged. The marked highlight sits
// in the pink/red band, which wraps around hue 0.
const (
	markedHueLowMax  = 12
	markedHueHighMin = 170
	markedSatMin     = 80
	markedValMin     = 80
)

// rgbToHSV converts 8-bit RGB to OpenCV-scale HSV: h in [0,180),
// s and v in [0,255].
func rgbToHSV(r, g, b uint8) (h, s, v float64) {
	rf := float64(r)
	gf := float64(g)
	bf := float64(b)

	max := rf
	if gf > max {
		max = gf
	}
	if bf > max {
		max = bf
	}
	min := rf
	if gf < min {
		min = gf
	}
	if bf < min {
		min = bf
	}

	v = max
	delta := max - min
	if max > 0 {
		s = delta / max * 255
	}
	if delta == 0 {
		return 0, s, v
	}

	switch max {
	case rf:
		h = 60 * (gf - bf) / delta
	case gf:
		h = 120 + 60*(bf-rf)/delta
	default:
		h = 240 + 60*(rf-gf)/delta
	}
	if h < 0 {
		h += 360
	}
	return h / 2, s, v
}

func isMarked(h, s, v float64) bool {
	if s < markedSatMin || v < markedValMin {
		return false
	}
	return h <= markedHueLowMax || h >= markedHueHighMin
}

// markedRatio reports the fraction of pixels that fall inside the
// marked-highlight band. A solid highlight scores near 1, an ordinary
// tile near 0.
func markedRatio(img image.Image) float64 {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	hits := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			h, s, v := rgbToHSV(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			if isMarked(h, s, v) {
				hits++
			}
		}
	}
	return float64(hits) / float64(total)
}
