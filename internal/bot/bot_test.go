package bot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkclear/linkclear/internal/actuate"
	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/config"
	"github.com/linkclear/linkclear/internal/monitoring"
	"github.com/linkclear/linkclear/internal/runstate"
	"github.com/linkclear/linkclear/internal/store"
	"github.com/linkclear/linkclear/internal/timeutil"
	"github.com/linkclear/linkclear/internal/vision"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }
func strp(v string) *string     { return &v }

// testConfig is a 2x2 grid centered at (100, 100) with 10px cells and
// no gaps, so cell (0,0) centers at (95, 95) and (0,1) at (105, 95).
func testConfig() *config.Config {
	return &config.Config{
		Rows: intp(2), Cols: intp(2),
		BoardCenterX: intp(100), BoardCenterY: intp(100),
		CellW: intp(10), CellH: intp(10),
		GapX: intp(0), GapY: intp(0),
		TemplateDir:    strp("testdata"),
		ClassifierMode: strp(config.ModeCatalog),
		MatchThreshold: floatp(0.8),
	}
}

// quietLogs redirects the process logger into a slice so halting runs
// do not spam test output. Tests using it must not run in parallel.
func quietLogs(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })
	return &lines
}

// fakeSource serves a fixed frame sequence and then reports io.EOF,
// mirroring a non-wrapping capture.DirSource.
type fakeSource struct {
	frames []*image.RGBA
	idx    int
}

func (f *fakeSource) Capture(ctx context.Context, roi image.Rectangle) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.idx >= len(f.frames) {
		return nil, io.EOF
	}
	frame := f.frames[f.idx]
	f.idx++
	return frame, nil
}

func (f *fakeSource) Close() error { return nil }

// fakeClassifier returns scripted board/confidence fixtures, repeating
// the last one once the script runs out.
type fakeClassifier struct {
	boards []*board.Board
	confs  []*board.ConfidenceMap
	calls  int
}

var _ vision.Classifier = (*fakeClassifier)(nil)

func (f *fakeClassifier) Classify(frame image.Image, g board.Geometry) (*board.Board, *board.ConfidenceMap, error) {
	i := f.calls
	if i >= len(f.boards) {
		i = len(f.boards) - 1
	}
	f.calls++
	return f.boards[i].Clone(), f.confs[i], nil
}

type failClicker struct{ err error }

func (f failClicker) Click(ctx context.Context, x, y int) error { return f.err }

func mustBoard(t *testing.T, rows [][]int) *board.Board {
	t.Helper()
	b, err := board.FromRows(rows)
	require.NoError(t, err)
	return b
}

func uniformConf(rows, cols int, v float64) *board.ConfidenceMap {
	m := board.NewConfidenceMap(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, v)
		}
	}
	return m
}

func frames(n int) []*image.RGBA {
	fs := make([]*image.RGBA, n)
	for i := range fs {
		fs[i] = image.NewRGBA(image.Rect(0, 0, 20, 20))
	}
	return fs
}

// newTestBot wires a bot over the fakes with zero pacing so tests run
// at full speed. rec receives the clicks the loop plays.
func newTestBot(t *testing.T, cfg *config.Config, src *fakeSource, cls *fakeClassifier, rec actuate.Clicker, db *store.DB) *Bot {
	t.Helper()
	cc := actuate.NewCellClicker(cfg.Geometry(), rec, timeutil.RealClock{}, 0, 0, false)
	b, err := New(Options{
		Config:     cfg,
		Source:     src,
		Classifier: cls,
		Clicker:    cc,
		Store:      db,
	})
	require.NoError(t, err)
	return b
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "bot_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func eventNames(events []store.RunEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Event
	}
	return names
}

func TestNewValidatesWiring(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	src := &fakeSource{}
	cls := &fakeClassifier{}
	cc := actuate.NewCellClicker(cfg.Geometry(), &actuate.DryRunClicker{}, timeutil.RealClock{}, 0, 0, false)

	cases := []struct {
		name string
		opts Options
	}{
		{"missing config", Options{Source: src, Classifier: cls, Clicker: cc}},
		{"missing source", Options{Config: cfg, Classifier: cls, Clicker: cc}},
		{"missing classifier", Options{Config: cfg, Source: src, Clicker: cc}},
		{"missing clicker", Options{Config: cfg, Source: src, Classifier: cls}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts)
			assert.Error(t, err)
		})
	}
}

func TestBotClearsBoard(t *testing.T) {
	quietLogs(t)

	cfg := testConfig()
	src := &fakeSource{frames: frames(2)}
	cls := &fakeClassifier{
		boards: []*board.Board{mustBoard(t, [][]int{{1, 1}, {0, 0}})},
		confs:  []*board.ConfidenceMap{uniformConf(2, 2, 0.9)},
	}
	rec := &actuate.DryRunClicker{}
	db := testDB(t)
	b := newTestBot(t, cfg, src, cls, rec, db)

	require.NoError(t, b.Run(context.Background()))

	st := b.Status()
	assert.True(t, st.Halted)
	assert.Equal(t, HaltBoardCleared, st.HaltReason)
	assert.NotEmpty(t, st.RunID)
	assert.Equal(t, 1, st.State.MoveCount)
	assert.Equal(t, 0, st.State.ConsecutiveFailures)
	require.NotNil(t, st.Board)
	assert.Equal(t, 0, st.Board.CountPositive())

	// One move: first the pair's A cell, then its B cell.
	clicks := rec.Clicks()
	require.Len(t, clicks, 2)
	assert.Equal(t, image.Pt(95, 95), clicks[0])
	assert.Equal(t, image.Pt(105, 95), clicks[1])

	run, err := db.GetRun(st.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Moves)
	assert.Equal(t, HaltBoardCleared, run.HaltReason)
	assert.Equal(t, config.ModeCatalog, run.Mode)
	require.NotNil(t, run.EndedAt)

	events, err := db.ListEvents(st.RunID, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"rescan", "move", "halt"}, eventNames(events))
	assert.Equal(t, runstate.ReasonEmptyConfidence, events[0].Reason)
	assert.Equal(t, "(0,0)-(0,1)", events[1].Detail)
	assert.Equal(t, HaltBoardCleared, events[2].Reason)
}

func TestBotHaltsOnMaxFailures(t *testing.T) {
	quietLogs(t)

	cfg := testConfig()
	cfg.MaxConsecutiveFailures = intp(2)
	src := &fakeSource{frames: frames(3)}
	// All tiles distinct, so no pair ever connects.
	cls := &fakeClassifier{
		boards: []*board.Board{mustBoard(t, [][]int{{1, 2}, {3, 4}})},
		confs:  []*board.ConfidenceMap{uniformConf(2, 2, 0.9)},
	}
	db := testDB(t)
	b := newTestBot(t, cfg, src, cls, &actuate.DryRunClicker{}, db)

	require.NoError(t, b.Run(context.Background()))

	st := b.Status()
	assert.Equal(t, HaltMaxFailures, st.HaltReason)
	assert.Equal(t, 0, st.State.MoveCount)
	assert.Equal(t, 2, st.State.ConsecutiveFailures)

	// Each failed cycle requests a rescan, so the trail alternates until
	// the failure bound trips.
	events, err := db.ListEvents(st.RunID, 0)
	require.NoError(t, err)
	require.Equal(t,
		[]string{"rescan", "no_pairs", "rescan", "no_pairs", "halt"},
		eventNames(events))
	assert.Equal(t, runstate.ReasonEmptyConfidence, events[0].Reason)
	assert.Equal(t, runstate.ReasonFailureOrMismatch, events[2].Reason)
	assert.Equal(t, HaltMaxFailures, events[4].Reason)
}

func TestBotHaltsOnMaxMoves(t *testing.T) {
	quietLogs(t)

	cfg := testConfig()
	cfg.MaxMoves = intp(1)
	src := &fakeSource{frames: frames(2)}
	cls := &fakeClassifier{
		boards: []*board.Board{mustBoard(t, [][]int{{1, 1}, {1, 1}})},
		confs:  []*board.ConfidenceMap{uniformConf(2, 2, 0.9)},
	}
	rec := &actuate.DryRunClicker{}
	b := newTestBot(t, cfg, src, cls, rec, nil)

	require.NoError(t, b.Run(context.Background()))

	st := b.Status()
	assert.Equal(t, HaltMaxMoves, st.HaltReason)
	assert.Equal(t, 1, st.State.MoveCount)
	assert.Len(t, rec.Clicks(), 2)
}

func TestBotFramesExhausted(t *testing.T) {
	quietLogs(t)

	cfg := testConfig()
	src := &fakeSource{frames: frames(1)}
	cls := &fakeClassifier{
		boards: []*board.Board{mustBoard(t, [][]int{{1, 2}, {3, 4}})},
		confs:  []*board.ConfidenceMap{uniformConf(2, 2, 0.9)},
	}
	b := newTestBot(t, cfg, src, cls, &actuate.DryRunClicker{}, nil)

	// Cycle one scans and finds no pairs; cycle two's rescan runs out of
	// frames, which ends a dev replay without an error.
	require.NoError(t, b.Run(context.Background()))

	st := b.Status()
	assert.Equal(t, HaltNoFrames, st.HaltReason)
	assert.Equal(t, runstate.EventNoPairs, st.State.LastEvent)
}

func TestBotClickFailure(t *testing.T) {
	quietLogs(t)

	cfg := testConfig()
	cfg.MaxConsecutiveFailures = intp(1)
	src := &fakeSource{frames: frames(2)}
	cls := &fakeClassifier{
		boards: []*board.Board{mustBoard(t, [][]int{{1, 1}, {0, 0}})},
		confs:  []*board.ConfidenceMap{uniformConf(2, 2, 0.9)},
	}
	db := testDB(t)
	b := newTestBot(t, cfg, src, cls, failClicker{err: errors.New("pointer grab failed")}, db)

	require.NoError(t, b.Run(context.Background()))

	st := b.Status()
	assert.Equal(t, HaltMaxFailures, st.HaltReason)
	assert.Equal(t, runstate.EventClickFailed, st.State.LastEvent)
	assert.Equal(t, 1, st.State.ConsecutiveFailures)
	assert.Equal(t, 0, st.State.MoveCount)

	events, err := db.ListEvents(st.RunID, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"rescan", "click_failed", "halt"}, eventNames(events))
	assert.Contains(t, events[1].Detail, "pointer grab failed")
}

func TestBotContextCanceled(t *testing.T) {
	quietLogs(t)

	cfg := testConfig()
	src := &fakeSource{frames: frames(1)}
	cls := &fakeClassifier{
		boards: []*board.Board{mustBoard(t, [][]int{{1, 1}, {0, 0}})},
		confs:  []*board.ConfidenceMap{uniformConf(2, 2, 0.9)},
	}
	rec := &actuate.DryRunClicker{}
	b := newTestBot(t, cfg, src, cls, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, b.Run(ctx))

	st := b.Status()
	assert.Equal(t, HaltCanceled, st.HaltReason)
	assert.Equal(t, 0, cls.calls, "canceled run must not classify")
	assert.Empty(t, rec.Clicks())
}

func TestBotLowConfidenceRescanCountsAsFailure(t *testing.T) {
	quietLogs(t)

	cfg := testConfig()
	cfg.MaxConsecutiveFailures = intp(2)
	src := &fakeSource{frames: frames(3)}
	cls := &fakeClassifier{
		boards: []*board.Board{mustBoard(t, [][]int{{1, 2}, {3, 4}})},
		confs:  []*board.ConfidenceMap{uniformConf(2, 2, 0.1)},
	}
	db := testDB(t)
	b := newTestBot(t, cfg, src, cls, &actuate.DryRunClicker{}, db)

	require.NoError(t, b.Run(context.Background()))

	st := b.Status()
	assert.Equal(t, HaltMaxFailures, st.HaltReason)
	assert.Equal(t, 2, st.State.ConsecutiveFailures)

	// The first rescan comes back murky, which itself counts as a failed
	// cycle; the no-pairs miss on the same board supplies the second.
	events, err := db.ListEvents(st.RunID, 0)
	require.NoError(t, err)
	require.Equal(t,
		[]string{"rescan", "low_confidence", "no_pairs", "halt"},
		eventNames(events))
	assert.Equal(t, runstate.ReasonEmptyConfidence, events[0].Reason)
}
