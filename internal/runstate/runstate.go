// Package runstate tracks a bot run's progress and decides when the
// board must be re-captured and re-classified from scratch.
package runstate

import (
	"strings"

	"github.com/linkclear/linkclear/internal/board"
)

// Event labels recorded after each cycle outcome.
const (
	EventInit        = "init"
	EventFullRescan  = "full_rescan"
	EventMove        = "move"
	EventNoPairs     = "no_pairs"
	EventClickFailed = "click_failed"
	EventMismatch    = "mismatch"
)

// Rescan reasons, listed in evaluation order. ShouldFullRescan joins
// every one that applies into a comma-separated reason string.
const (
	ReasonPeriodic          = "periodic"
	ReasonFailureOrMismatch = "failure_or_mismatch"
	ReasonEmptyConfidence   = "empty_confidence"
	ReasonLowConfidence     = "low_confidence"
)

// State is the run's mutable progress record. It is not synchronized;
// the bot loop owns it and serializes access.
type State struct {
	MoveCount           int         `json:"move_count"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastFullRescanMove  int         `json:"last_full_rescan_move"`
	RescanRequested     bool        `json:"rescan_requested"`
	LastRescanReason    string      `json:"last_rescan_reason"`
	LastEvent           string      `json:"last_event"`
	LastPair            *board.Pair `json:"last_pair,omitempty"`
}

// New returns a fresh state: no moves played, no rescan pending.
func New() *State {
	return &State{LastEvent: EventInit}
}

// ApplySuccessfulMove records a completed pair removal. The failure
// streak resets because the board model evidently still matches the
// screen.
func (s *State) ApplySuccessfulMove(p board.Pair) {
	s.MoveCount++
	s.ConsecutiveFailures = 0
	s.LastEvent = EventMove
	pair := p
	s.LastPair = &pair
}

// RecordFailure notes a failed cycle (no pair found, click rejected, or
// a board/screen mismatch) and requests a full rescan.
func (s *State) RecordFailure(event string) {
	s.ConsecutiveFailures++
	s.RescanRequested = true
	s.LastEvent = event
}

// MarkRescanDone consumes a pending rescan: the periodic counter
// restarts from the current move and the explicit request is cleared.
func (s *State) MarkRescanDone(reason string) {
	s.LastFullRescanMove = s.MoveCount
	s.RescanRequested = false
	s.LastRescanReason = reason
	s.LastEvent = EventFullRescan
}

// Policy holds the thresholds ShouldFullRescan evaluates against.
type Policy struct {
	// EveryNMoves triggers a periodic rescan once this many moves have
	// been played since the last one. Zero or negative disables the
	// periodic trigger.
	EveryNMoves int

	// MatchThreshold is the classifier's acceptance threshold. Any cell
	// below it was not confidently classified, so the map as a whole
	// cannot be trusted and a rescan is forced.
	MatchThreshold float64

	// LowConfMean supplements the per-cell floor: a map whose mean sits
	// below it is murky overall even when no single cell dips under
	// MatchThreshold.
	LowConfMean float64
}

// ShouldFullRescan decides whether the next cycle must re-capture and
// re-classify the whole board. Every trigger is evaluated, and the
// returned reason joins all that fired, in a fixed order, so logs and
// run events show the complete picture when several apply at once. A
// no-trigger evaluation clears LastRescanReason, so the status record
// only carries a reason while one is current.
func (s *State) ShouldFullRescan(conf *board.ConfidenceMap, pol Policy) (string, bool) {
	var reasons []string
	if pol.EveryNMoves > 0 && s.MoveCount > 0 && s.MoveCount-s.LastFullRescanMove >= pol.EveryNMoves {
		reasons = append(reasons, ReasonPeriodic)
	}
	if s.RescanRequested {
		reasons = append(reasons, ReasonFailureOrMismatch)
	}
	if conf.Empty() {
		reasons = append(reasons, ReasonEmptyConfidence)
	} else if conf.Min() < pol.MatchThreshold || conf.Mean() < pol.LowConfMean {
		reasons = append(reasons, ReasonLowConfidence)
	}
	if len(reasons) == 0 {
		s.LastRescanReason = ""
		return "", false
	}
	return strings.Join(reasons, ","), true
}
