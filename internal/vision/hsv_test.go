package vision

import (
	"math"
	"testing"

	"github.com/linkclear/linkclear/internal/testutil"
)

func TestRGBToHSV(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		h, s, v float64
	}{
		{"red", 255, 0, 0, 0, 255, 255},
		{"green", 0, 255, 0, 60, 255, 255},
		{"blue", 0, 0, 255, 120, 255, 255},
		{"white", 255, 255, 255, 0, 0, 255},
		{"black", 0, 0, 0, 0, 0, 0},
		{"mid gray", 128, 128, 128, 0, 0, 128},
		{"highlight pink", 255, 20, 80, 172.34, 235, 255},
	}
	for _, tt := range tests {
		h, s, v := rgbToHSV(tt.r, tt.g, tt.b)
		if math.Abs(h-tt.h) > 0.01 || math.Abs(s-tt.s) > 0.01 || math.Abs(v-tt.v) > 0.01 {
			t.Errorf("%s: rgbToHSV = (%.2f, %.2f, %.2f), want (%.2f, %.2f, %.2f)",
				tt.name, h, s, v, tt.h, tt.s, tt.v)
		}
	}
}

func TestRGBToHSVHueRange(t *testing.T) {
	// Every representable color must land in OpenCV's hue scale.
	for r := 0; r < 256; r += 15 {
		for g := 0; g < 256; g += 15 {
			for b := 0; b < 256; b += 15 {
				h, s, v := rgbToHSV(uint8(r), uint8(g), uint8(b))
				if h < 0 || h >= 180 {
					t.Fatalf("hue out of range for (%d,%d,%d): %v", r, g, b, h)
				}
				if s < 0 || s > 255 || v < 0 || v > 255 {
					t.Fatalf("s/v out of range for (%d,%d,%d): %v, %v", r, g, b, s, v)
				}
			}
		}
	}
}

func TestIsMarked(t *testing.T) {
	tests := []struct {
		name    string
		h, s, v float64
		want    bool
	}{
		{"pink low wrap", 5, 200, 200, true},
		{"pink high wrap", 172, 200, 200, true},
		{"band edge low", 12, 80, 80, true},
		{"band edge high", 170, 80, 80, true},
		{"hue outside band", 90, 255, 255, false},
		{"washed out", 5, 40, 200, false},
		{"too dark", 5, 200, 40, false},
	}
	for _, tt := range tests {
		if got := isMarked(tt.h, tt.s, tt.v); got != tt.want {
			t.Errorf("%s: isMarked(%v, %v, %v) = %v, want %v", tt.name, tt.h, tt.s, tt.v, got, tt.want)
		}
	}
}

func TestMarkedRatio(t *testing.T) {
	if got := markedRatio(testutil.SolidTile(20, 20, testPink)); got != 1 {
		t.Fatalf("solid pink ratio = %v, want 1", got)
	}
	if got := markedRatio(testutil.SolidTile(20, 20, testGray)); got != 0 {
		t.Fatalf("gray ratio = %v, want 0", got)
	}
	if got := markedRatio(testutil.VSplitTile(20, 20, testPink, testGray)); got != 0.5 {
		t.Fatalf("half pink ratio = %v, want 0.5", got)
	}
	if got := markedRatio(testutil.SolidTile(0, 0, testPink)); got != 0 {
		t.Fatalf("empty image ratio = %v, want 0", got)
	}
}
