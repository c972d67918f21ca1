// Package actuate performs mouse clicks against the game window. The
// Clicker interface isolates the xdotool dependency so the bot loop and
// tests can run without a display.
package actuate

import (
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Clicker performs one click at absolute screen coordinates.
type Clicker interface {
	Click(ctx context.Context, x, y int) error
}

// commandRunner abstracts external command execution so ExecClicker is
// testable without xdotool installed.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExecClicker clicks by shelling out to xdotool. Each click moves the
// pointer synchronously, then presses button 1.
type ExecClicker struct {
	runner commandRunner
}

// NewExecClicker returns a Clicker backed by the xdotool binary.
func NewExecClicker() *ExecClicker {
	return &ExecClicker{runner: execRunner{}}
}

func (c *ExecClicker) Click(ctx context.Context, x, y int) error {
	out, err := c.runner.Run(ctx, "xdotool",
		"mousemove", "--sync", strconv.Itoa(x), strconv.Itoa(y),
		"click", "1")
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("xdotool click at (%d, %d): %w: %s", x, y, err, msg)
		}
		return fmt.Errorf("xdotool click at (%d, %d): %w", x, y, err)
	}
	return nil
}

// DryRunClicker satisfies Clicker without touching the pointer. The bot
// installs it for dry runs so no code path can reach xdotool, and tests
// use it to record where clicks would have landed.
type DryRunClicker struct {
	mu     sync.Mutex
	clicks []image.Point
}

func (d *DryRunClicker) Click(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.clicks = append(d.clicks, image.Pt(x, y))
	d.mu.Unlock()
	return nil
}

// Clicks returns a copy of the recorded click positions in order.
func (d *DryRunClicker) Clicks() []image.Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]image.Point(nil), d.clicks...)
}
