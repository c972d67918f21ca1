package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/linkclear/linkclear/internal/board"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testBoard(t *testing.T) (*board.Board, *board.ConfidenceMap) {
	t.Helper()
	b, err := board.FromRows([][]int{
		{1, 2},
		{2, 1},
	})
	if err != nil {
		t.Fatalf("FromRows failed: %v", err)
	}
	conf := board.NewConfidenceMap(2, 2)
	conf.Set(0, 0, 0.8)
	conf.Set(0, 1, 0.9)
	conf.Set(1, 0, 0.7)
	conf.Set(1, 1, 0.6)
	return b, conf
}

func TestCreateAndGetRun(t *testing.T) {
	db := setupTestDB(t)

	started := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	run := NewRun("anchors", true, 8, 12, started)
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Fatalf("NewRun id %q is not a uuid: %v", run.ID, err)
	}

	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("run round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetRun("missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestFinishRun(t *testing.T) {
	db := setupTestDB(t)

	started := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	run := NewRun("catalog", false, 4, 4, started)
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	ended := started.Add(90 * time.Second)
	if err := db.FinishRun(run.ID, ended, 42, 3, "board_cleared"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Moves != 42 || got.Failures != 3 {
		t.Errorf("counters = %d/%d, want 42/3", got.Moves, got.Failures)
	}
	if got.HaltReason != "board_cleared" {
		t.Errorf("HaltReason = %q, want board_cleared", got.HaltReason)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, ended)
	}
}

func TestFinishRunMissing(t *testing.T) {
	db := setupTestDB(t)

	err := db.FinishRun("missing", time.Now(), 0, 0, "halt")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestUpdateRunProgress(t *testing.T) {
	db := setupTestDB(t)

	run := NewRun("anchors", false, 4, 4, time.Now())
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	if err := db.UpdateRunProgress(run.ID, 7, 1); err != nil {
		t.Fatalf("UpdateRunProgress failed: %v", err)
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Moves != 7 || got.Failures != 1 {
		t.Errorf("counters = %d/%d, want 7/1", got.Moves, got.Failures)
	}
	if got.EndedAt != nil {
		t.Error("progress update must not end the run")
	}

	if err := db.UpdateRunProgress("missing", 1, 0); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := setupTestDB(t)

	base := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		run := NewRun("anchors", false, 4, 4, base.Add(time.Duration(i)*time.Minute))
		if err := db.CreateRun(run); err != nil {
			t.Fatalf("CreateRun %d failed: %v", i, err)
		}
		ids = append(ids, run.ID)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[0].ID != ids[2] || runs[2].ID != ids[0] {
		t.Errorf("runs not newest-first: got %s..%s, want %s..%s", runs[0].ID, runs[2].ID, ids[2], ids[0])
	}

	limited, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}
}

func TestRecordAndListEvents(t *testing.T) {
	db := setupTestDB(t)

	run := NewRun("anchors", false, 4, 4, time.Now())
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	if err := db.RecordEvent(run.ID, 1, "move_played", "", "(0,0)-(1,1)"); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	if err := db.RecordEvent(run.ID, 2, "move_failed", "click_failed", "xdotool: no display"); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	if err := db.RecordEvent(run.ID, 2, "halted", "max_consecutive_failures", ""); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	events, err := db.ListEvents(run.ID, 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].Event != "move_played" || events[1].Event != "move_failed" || events[2].Event != "halted" {
		t.Errorf("events out of order: %v %v %v", events[0].Event, events[1].Event, events[2].Event)
	}
	if events[1].Reason != "click_failed" || events[1].Detail != "xdotool: no display" {
		t.Errorf("event fields lost: %+v", events[1])
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	// Events from other runs must not leak in.
	other := NewRun("anchors", false, 4, 4, time.Now())
	if err := db.CreateRun(other); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	otherEvents, err := db.ListEvents(other.ID, 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(otherEvents) != 0 {
		t.Errorf("new run has %d events, want 0", len(otherEvents))
	}
}

func TestSaveBoardSnapshotAndConfidenceSeries(t *testing.T) {
	db := setupTestDB(t)

	run := NewRun("anchors", false, 2, 2, time.Now())
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	b, conf := testBoard(t)
	if err := db.SaveBoardSnapshot(run.ID, 1, b, conf); err != nil {
		t.Fatalf("SaveBoardSnapshot failed: %v", err)
	}

	b2 := b.Clone()
	b2.Set(0, 0, 0)
	b2.Set(1, 1, 0)
	conf2 := board.NewConfidenceMap(2, 2)
	conf2.Set(0, 1, 0.5)
	if err := db.SaveBoardSnapshot(run.ID, 2, b2, conf2); err != nil {
		t.Fatalf("SaveBoardSnapshot failed: %v", err)
	}

	points, err := db.ConfidenceSeries(run.ID)
	if err != nil {
		t.Fatalf("ConfidenceSeries failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2", len(points))
	}
	if points[0].Move != 1 || points[1].Move != 2 {
		t.Errorf("moves = %d,%d, want 1,2", points[0].Move, points[1].Move)
	}
	if points[0].Mean != conf.Mean() || points[0].Min != conf.Min() {
		t.Errorf("point 1 = %+v, want mean %f min %f", points[0], conf.Mean(), conf.Min())
	}

	latest, latestConf, err := db.LatestBoardSnapshot(run.ID)
	if err != nil {
		t.Fatalf("LatestBoardSnapshot failed: %v", err)
	}
	if latest == nil || latestConf == nil {
		t.Fatal("latest snapshot missing")
	}
	if latest.At(0, 0) != 0 || latest.At(0, 1) != 2 {
		t.Errorf("latest board = %d,%d at row 0, want 0,2", latest.At(0, 0), latest.At(0, 1))
	}
	if latestConf.At(0, 1) != 0.5 {
		t.Errorf("latest confidence (0,1) = %f, want 0.5", latestConf.At(0, 1))
	}
}

func TestLatestBoardSnapshotEmpty(t *testing.T) {
	db := setupTestDB(t)

	run := NewRun("anchors", false, 2, 2, time.Now())
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	b, conf, err := db.LatestBoardSnapshot(run.ID)
	if err != nil {
		t.Fatalf("LatestBoardSnapshot failed: %v", err)
	}
	if b != nil || conf != nil {
		t.Errorf("got %v/%v, want nil/nil before any snapshot", b, conf)
	}
}

func TestSaveBoardSnapshotNilConfidence(t *testing.T) {
	db := setupTestDB(t)

	run := NewRun("catalog", false, 2, 2, time.Now())
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	b, _ := testBoard(t)
	if err := db.SaveBoardSnapshot(run.ID, 1, b, nil); err != nil {
		t.Fatalf("SaveBoardSnapshot failed: %v", err)
	}

	latest, latestConf, err := db.LatestBoardSnapshot(run.ID)
	if err != nil {
		t.Fatalf("LatestBoardSnapshot failed: %v", err)
	}
	if latest == nil {
		t.Fatal("board missing")
	}
	if latestConf != nil {
		t.Errorf("confidence = %v, want nil", latestConf)
	}

	points, err := db.ConfidenceSeries(run.ID)
	if err != nil {
		t.Fatalf("ConfidenceSeries failed: %v", err)
	}
	if len(points) != 1 || points[0].Mean != 0 {
		t.Errorf("points = %+v, want one zero-mean point", points)
	}
}
