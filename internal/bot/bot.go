// Package bot orchestrates a run: capture the board region, classify it
// into tiles, pick a connectable pair, click it, and repeat until the
// board clears or a halt bound trips.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/linkclear/linkclear/internal/actuate"
	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/capture"
	"github.com/linkclear/linkclear/internal/config"
	"github.com/linkclear/linkclear/internal/monitor"
	"github.com/linkclear/linkclear/internal/monitoring"
	"github.com/linkclear/linkclear/internal/runstate"
	"github.com/linkclear/linkclear/internal/snapshot"
	"github.com/linkclear/linkclear/internal/solver"
	"github.com/linkclear/linkclear/internal/store"
	"github.com/linkclear/linkclear/internal/timeutil"
	"github.com/linkclear/linkclear/internal/vision"
)

// Halt reasons recorded when a run ends.
const (
	HaltBoardCleared = "board_cleared"
	HaltMaxFailures  = "max_failures"
	HaltMaxMoves     = "max_moves"
	HaltCanceled     = "canceled"
	HaltNoFrames     = "frames_exhausted"
	HaltError        = "error"
)

// Store event names beyond the runstate failure labels.
const (
	eventRescan = "rescan"
	eventHalt   = "halt"
)

// Options wires a Bot's collaborators together. Config, Source,
// Classifier and Clicker are required; Store and Debug are optional and
// Clock defaults to the real clock.
type Options struct {
	Config     *config.Config
	Source     capture.Source
	Classifier vision.Classifier
	Clicker    *actuate.CellClicker
	Store      *store.DB
	Debug      *snapshot.Writer
	Clock      timeutil.Clock
	DryRun     bool
}

// Bot drives the capture-classify-solve-click cycle for one run.
type Bot struct {
	cfg    *config.Config
	geom   board.Geometry
	source capture.Source
	class  vision.Classifier
	click  *actuate.CellClicker
	db     *store.DB
	debug  *snapshot.Writer
	clock  timeutil.Clock
	dryRun bool
	pol    runstate.Policy

	mu         sync.RWMutex
	run        *store.Run
	state      *runstate.State
	board      *board.Board
	confidence *board.ConfidenceMap
	halted     bool
	haltReason string
}

// New validates the wiring and returns a Bot ready to Run.
func New(opts Options) (*Bot, error) {
	if opts.Config == nil {
		return nil, errors.New("bot: config is required")
	}
	if opts.Source == nil {
		return nil, errors.New("bot: capture source is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("bot: classifier is required")
	}
	if opts.Clicker == nil {
		return nil, errors.New("bot: clicker is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	debug := opts.Debug
	if debug == nil {
		debug = snapshot.NewWriter("", false, clock)
	}

	return &Bot{
		cfg:    opts.Config,
		geom:   opts.Config.Geometry(),
		source: opts.Source,
		class:  opts.Classifier,
		click:  opts.Clicker,
		db:     opts.Store,
		debug:  debug,
		clock:  clock,
		dryRun: opts.DryRun,
		pol: runstate.Policy{
			EveryNMoves:    opts.Config.GetFullRescanEveryNMoves(),
			MatchThreshold: opts.Config.GetMatchThreshold(),
			LowConfMean:    opts.Config.GetLowConfidenceMean(),
		},
		state: runstate.New(),
	}, nil
}

// Status implements monitor.StatusSource. The returned board and
// confidence map are shared, not copied: the loop replaces them on
// every change and never mutates a published value.
func (b *Bot) Status() monitor.Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := monitor.Status{
		Mode:       b.cfg.GetClassifierMode(),
		DryRun:     b.dryRun,
		Halted:     b.halted,
		HaltReason: b.haltReason,
		State:      *b.state,
		Board:      b.board,
		Confidence: b.confidence,
	}
	if b.run != nil {
		st.RunID = b.run.ID
		st.StartedAt = b.run.StartedAt
	}
	return st
}

// Run executes the loop until the board clears, a halt bound trips, or
// ctx is cancelled. Those are all normal returns; the error is reserved
// for broken collaborators (capture or classification failures) and
// run-record bookkeeping. Run may be called once per Bot.
func (b *Bot) Run(ctx context.Context) error {
	run := store.NewRun(b.cfg.GetClassifierMode(), b.dryRun, b.geom.Rows, b.geom.Cols, b.clock.Now())
	b.mu.Lock()
	b.run = run
	b.mu.Unlock()

	if b.db != nil {
		if err := b.db.CreateRun(run); err != nil {
			return fmt.Errorf("failed to create run record: %w", err)
		}
	}
	b.debug.Logf("run %s started: %dx%d board, mode=%s, dry_run=%v",
		run.ID, b.geom.Rows, b.geom.Cols, run.Mode, b.dryRun)

	reason, err := b.loop(ctx)
	b.finish(reason, err)
	return err
}

func (b *Bot) loop(ctx context.Context) (string, error) {
	maxFailures := b.cfg.GetMaxConsecutiveFailures()
	maxMoves := b.cfg.GetMaxMoves()

	for {
		if ctx.Err() != nil {
			return HaltCanceled, nil
		}
		moves, failures := b.counters()
		if failures >= maxFailures {
			return HaltMaxFailures, nil
		}
		if maxMoves > 0 && moves >= maxMoves {
			return HaltMaxMoves, nil
		}

		// The board and confidence map are published together, so a
		// missing model fires "empty_confidence" here and cur is always
		// set once the rescan branch has run.
		cur := b.boardModel()
		if reason, ok := b.nextRescanReason(); ok {
			fresh, err := b.rescan(ctx, reason)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return HaltNoFrames, nil
				}
				if ctx.Err() != nil {
					return HaltCanceled, nil
				}
				return HaltError, err
			}
			cur = fresh
		}

		if cur.CountPositive() == 0 {
			return HaltBoardCleared, nil
		}

		pair, ok := solver.FindPair(cur)
		if !ok {
			b.fail(runstate.EventNoPairs, fmt.Sprintf("%d tiles remain", cur.CountPositive()))
			continue
		}

		if err := b.click.ClickPair(ctx, pair); err != nil {
			if ctx.Err() != nil {
				return HaltCanceled, nil
			}
			b.fail(runstate.EventClickFailed, err.Error())
			continue
		}

		b.applyMove(pair)
	}
}

// rescan captures the board region, classifies it, and swaps the fresh
// model in. A rescan that was triggered by bad confidence and still
// comes back murky counts as a failed cycle, so a persistently bad map
// trips the failure bound instead of rescanning forever.
func (b *Bot) rescan(ctx context.Context, reason string) (*board.Board, error) {
	frame, err := b.source.Capture(ctx, b.geom.BoardRect())
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	fresh, conf, err := b.class.Classify(frame, b.geom)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	b.mu.Lock()
	b.board = fresh
	b.confidence = conf
	b.state.MarkRescanDone(reason)
	move := b.state.MoveCount
	b.mu.Unlock()

	meanConf, minConf := conf.Mean(), conf.Min()
	confDetail := fmt.Sprintf("mean=%.3f min=%.3f", meanConf, minConf)
	b.debug.Logf("rescan (%s) at move %d: %d tiles, confidence %s",
		reason, move, fresh.CountPositive(), confDetail)
	b.debug.SaveFrame(move, frame, b.geom)
	b.debug.SaveBoard(move, fresh, conf)
	b.recordEvent(move, eventRescan, reason, confDetail)
	if b.db != nil {
		if err := b.db.SaveBoardSnapshot(b.run.ID, move, fresh, conf); err != nil {
			monitoring.Logf("bot: failed to save board snapshot: %v", err)
		}
	}

	confDerived := strings.Contains(reason, runstate.ReasonEmptyConfidence) ||
		strings.Contains(reason, runstate.ReasonLowConfidence)
	if confDerived && (minConf < b.pol.MatchThreshold || meanConf < b.pol.LowConfMean) {
		b.fail(runstate.ReasonLowConfidence, confDetail)
	}

	return fresh, nil
}

// applyMove optimistically clears the pair from the local model. The
// board is cloned, not edited, so snapshots already handed to the
// monitor stay valid.
func (b *Bot) applyMove(p board.Pair) {
	b.mu.Lock()
	fresh := b.board.Clone()
	fresh.Set(p.A.Row, p.A.Col, board.Empty)
	fresh.Set(p.B.Row, p.B.Col, board.Empty)
	b.board = fresh
	b.state.ApplySuccessfulMove(p)
	moves := b.state.MoveCount
	remaining := fresh.CountPositive()
	b.mu.Unlock()

	b.debug.Logf("move %d: cleared %s, %d tiles remain", moves, p, remaining)
	b.recordEvent(moves, runstate.EventMove, "", p.String())
	b.updateProgress(moves, 0)
}

func (b *Bot) fail(event, detail string) {
	b.mu.Lock()
	b.state.RecordFailure(event)
	moves := b.state.MoveCount
	failures := b.state.ConsecutiveFailures
	b.mu.Unlock()

	b.debug.Logf("cycle failed (%s) at move %d: %s", event, moves, detail)
	b.recordEvent(moves, event, "", detail)
	b.updateProgress(moves, failures)
}

func (b *Bot) finish(reason string, runErr error) {
	b.mu.Lock()
	b.halted = true
	b.haltReason = reason
	moves := b.state.MoveCount
	failures := b.state.ConsecutiveFailures
	runID := b.run.ID
	b.mu.Unlock()

	detail := ""
	if runErr != nil {
		detail = runErr.Error()
	}
	b.recordEvent(moves, eventHalt, reason, detail)
	if b.db != nil {
		if err := b.db.FinishRun(runID, b.clock.Now(), moves, failures, reason); err != nil {
			monitoring.Logf("bot: failed to finish run record: %v", err)
		}
	}
	b.debug.Logf("run %s halted after %d moves: %s", runID, moves, reason)
}

func (b *Bot) counters() (moves, failures int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.MoveCount, b.state.ConsecutiveFailures
}

func (b *Bot) boardModel() *board.Board {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.board
}

// nextRescanReason takes the write lock: a no-trigger evaluation clears
// the state's stale rescan reason.
func (b *Bot) nextRescanReason() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.ShouldFullRescan(b.confidence, b.pol)
}

// recordEvent appends to the run's audit trail. Only the loop goroutine
// calls this, after Run has published b.run.
func (b *Bot) recordEvent(move int, event, reason, detail string) {
	if b.db == nil {
		return
	}
	if err := b.db.RecordEvent(b.run.ID, move, event, reason, detail); err != nil {
		monitoring.Logf("bot: failed to record %s event: %v", event, err)
	}
}

func (b *Bot) updateProgress(moves, failures int) {
	if b.db == nil {
		return
	}
	if err := b.db.UpdateRunProgress(b.run.ID, moves, failures); err != nil {
		monitoring.Logf("bot: failed to update run progress: %v", err)
	}
}
