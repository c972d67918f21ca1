// Package snapshot writes per-run debug artifacts: frame captures with
// grid overlays, per-move board dumps, and a timestamped run log. All
// Writer IO is best-effort; a full disk must never kill the bot.
package snapshot

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/monitoring"
	"github.com/linkclear/linkclear/internal/security"
	"github.com/linkclear/linkclear/internal/timeutil"
)

// Timestamp formats t as yyyymmdd_hhmmss_microseconds, the naming used
// for snapshot files and run directories.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// Writer drops debug artifacts into a per-run directory under the
// configured debug dir. The directory is created lazily on the first
// artifact so disabled or idle runs leave no trace. Methods never
// return errors; failures are logged and, for directory setup, disable
// the writer.
type Writer struct {
	mu      sync.Mutex
	enabled bool
	baseDir string
	clock   timeutil.Clock
	runDir  string
	logFile *os.File
}

// NewWriter builds a Writer rooted at baseDir. A disabled writer still
// forwards Logf lines to the process logger but writes nothing.
func NewWriter(baseDir string, enabled bool, clock timeutil.Clock) *Writer {
	return &Writer{enabled: enabled, baseDir: baseDir, clock: clock}
}

// RunDir reports the run directory, or "" before the first artifact.
func (w *Writer) RunDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runDir
}

// ensure resolves the run directory, creating it and opening run.log on
// first use. A setup failure disables the writer for the rest of the
// run. Callers must hold mu.
func (w *Writer) ensure() (string, error) {
	if w.runDir != "" {
		return w.runDir, nil
	}
	dir := filepath.Join(w.baseDir, "run_"+Timestamp(w.clock.Now()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.enabled = false
		monitoring.Logf("snapshot: disabling debug artifacts: %v", err)
		return "", err
	}
	w.runDir = dir

	f, err := os.OpenFile(filepath.Join(dir, "run.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		monitoring.Logf("snapshot: run log unavailable: %v", err)
	} else {
		w.logFile = f
	}
	monitoring.Logf("snapshot: writing debug artifacts to %s", dir)
	return dir, nil
}

// Logf forwards to the process logger and, when debug is enabled,
// appends a timestamped line to run.log.
func (w *Writer) Logf(format string, v ...interface{}) {
	monitoring.Logf(format, v...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.enabled {
		return
	}
	if _, err := w.ensure(); err != nil || w.logFile == nil {
		return
	}
	line := w.clock.Now().Format("2006-01-02 15:04:05.000") + " " + fmt.Sprintf(format, v...) + "\n"
	if _, err := w.logFile.WriteString(line); err != nil {
		monitoring.Logf("snapshot: failed to append run log: %v", err)
	}
}

type boardDump struct {
	Move           int                  `json:"move"`
	CapturedAt     time.Time            `json:"captured_at"`
	Board          *board.Board         `json:"board"`
	Confidence     *board.ConfidenceMap `json:"confidence,omitempty"`
	MeanConfidence float64              `json:"mean_confidence"`
}

// SaveBoard dumps the classified board and its confidences for one move
// as board_NNNN.json.
func (w *Writer) SaveBoard(move int, b *board.Board, conf *board.ConfidenceMap) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.enabled {
		return
	}
	dir, err := w.ensure()
	if err != nil {
		return
	}

	dump := boardDump{
		Move:       move,
		CapturedAt: w.clock.Now(),
		Board:      b,
		Confidence: conf,
	}
	if conf != nil {
		dump.MeanConfidence = conf.Mean()
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		monitoring.Logf("snapshot: failed to encode board dump: %v", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("board_%04d.json", move))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		monitoring.Logf("snapshot: failed to write %s: %v", path, err)
	}
}

// SaveFrame writes the captured frame for one move as frame_NNNN.png
// plus a grid-overlay copy as overlay_NNNN.png.
func (w *Writer) SaveFrame(move int, frame image.Image, g board.Geometry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.enabled {
		return
	}
	dir, err := w.ensure()
	if err != nil {
		return
	}

	w.writePNG(filepath.Join(dir, fmt.Sprintf("frame_%04d.png", move)), frame)
	w.writePNG(filepath.Join(dir, fmt.Sprintf("overlay_%04d.png", move)), DrawGridOverlay(frame, g))
}

func (w *Writer) writePNG(path string, img image.Image) {
	f, err := os.Create(path)
	if err != nil {
		monitoring.Logf("snapshot: failed to create %s: %v", path, err)
		return
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		monitoring.Logf("snapshot: failed to encode %s: %v", path, err)
	}
}

// Close releases the run log file, if one was opened.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logFile == nil {
		return nil
	}
	err := w.logFile.Close()
	w.logFile = nil
	return err
}

// SaveSnapshot writes one frame to dir under a sanitized name plus a
// microsecond timestamp and returns the path. Unlike Writer methods it
// reports failures, so one-off captures can surface them.
func SaveSnapshot(dir, name string, frame image.Image, clock timeutil.Clock) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create debug directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", security.SanitizeFilename(name), Timestamp(clock.Now())))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to write debug snapshot to %s: %w", path, err)
	}
	if err := png.Encode(f, frame); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to encode debug snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write debug snapshot to %s: %w", path, err)
	}
	return path, nil
}
