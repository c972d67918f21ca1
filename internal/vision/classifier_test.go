package vision

import (
	"image"
	"image/draw"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/config"
	"github.com/linkclear/linkclear/internal/testutil"
)

func strp(s string) *string { return &s }

func TestNewSelectsClassifierMode(t *testing.T) {
	dir := testutil.WriteTemplateDir(t, t.TempDir(), map[string]image.Image{
		"block":      testutil.SolidTile(20, 20, testDark),
		"background": testutil.SolidTile(20, 20, testPink),
	})

	t.Run("anchors by default", func(t *testing.T) {
		cls, err := New(&config.Config{TemplateDir: strp(dir)})
		require.NoError(t, err)
		_, ok := cls.(*AnchorClassifier)
		assert.True(t, ok, "got %T", cls)
	})

	t.Run("catalog", func(t *testing.T) {
		cls, err := New(&config.Config{TemplateDir: strp(dir), ClassifierMode: strp(config.ModeCatalog)})
		require.NoError(t, err)
		_, ok := cls.(*CatalogClassifier)
		assert.True(t, ok, "got %T", cls)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := New(&config.Config{TemplateDir: strp(dir), ClassifierMode: strp("psychic")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "psychic")
	})

	t.Run("missing templates", func(t *testing.T) {
		_, err := New(&config.Config{TemplateDir: strp(t.TempDir())})
		require.Error(t, err)
	})
}

// Classification must work on frames whose Bounds().Min is the board
// rect's own top-left, which is what SubImage views of a full-screen
// capture look like.
func TestClassifyOffsetFrame(t *testing.T) {
	g := board.Geometry{
		Rows: 2, Cols: 2,
		BoardCenterX: 120, BoardCenterY: 80,
		CellW: 20, CellH: 20,
	}
	roi := g.BoardRect()
	require.Equal(t, image.Rect(100, 60, 140, 100), roi)

	store := anchorStore(t)
	cls, err := NewAnchorClassifier(store, defaultAnchorParams())
	require.NoError(t, err)

	composed := testutil.ComposeFrame(t, g, map[board.Cell]image.Image{
		{Row: 0, Col: 1}: testutil.SolidTile(20, 20, testDark),
	}, testPink)

	// Paste the board into a larger screen-sized canvas and hand the
	// classifier the board-rect view of it.
	screen := image.NewRGBA(image.Rect(0, 0, 300, 200))
	draw.Draw(screen, roi, composed, composed.Bounds().Min, draw.Src)
	frame := screen.SubImage(roi).(*image.RGBA)

	b, conf, err := cls.Classify(frame, g)
	require.NoError(t, err)

	assert.Equal(t, board.Empty, b.At(0, 0))
	assert.Equal(t, board.Obstacle, b.At(0, 1))
	assert.Equal(t, board.Empty, b.At(1, 0))
	assert.Equal(t, board.Empty, b.At(1, 1))
	assert.InDelta(t, 1.0, conf.At(0, 1), 1e-6)
}

func TestForEachCoversAllIndices(t *testing.T) {
	const n = 137
	var hits [n]int32
	forEach(n, func(idx int) {
		atomic.AddInt32(&hits[idx], 1)
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d executed %d times", i, h)
		}
	}
}

func TestForEachZero(t *testing.T) {
	called := false
	forEach(0, func(int) { called = true })
	forEach(-3, func(int) { called = true })
	if called {
		t.Fatal("callback ran for empty range")
	}
}
