// Command linkclear plays a grid tile-matching game: it captures the
// board from the screen, classifies the tiles, and clicks connectable
// pairs until the board clears. A monitoring HTTP server exposes run
// status, history, and charts while the bot plays.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/linkclear/linkclear/internal/actuate"
	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/bot"
	"github.com/linkclear/linkclear/internal/capture"
	"github.com/linkclear/linkclear/internal/config"
	"github.com/linkclear/linkclear/internal/monitor"
	"github.com/linkclear/linkclear/internal/security"
	"github.com/linkclear/linkclear/internal/snapshot"
	"github.com/linkclear/linkclear/internal/store"
	"github.com/linkclear/linkclear/internal/timeutil"
	"github.com/linkclear/linkclear/internal/version"
	"github.com/linkclear/linkclear/internal/vision"
)

var (
	configPath  = flag.String("config", "", "Path to the JSON config file")
	devDir      = flag.String("dev", "", "Replay frames from a directory of PNGs instead of capturing the screen")
	dryRun      = flag.Bool("dry-run", false, "Log clicks instead of performing them")
	captureOnce = flag.Bool("capture-once", false, "Capture the board once, save a grid overlay to debug_dir, and exit")
	calibrate   = flag.Bool("calibrate", false, "Interactively calibrate the board geometry and exit")
	calRows     = flag.Int("rows", 0, "Grid rows for -calibrate")
	calCols     = flag.Int("cols", 0, "Grid columns for -calibrate")
	listenAddr  = flag.String("listen", "", "Monitor HTTP listen address (overrides listen_addr)")
	dbPath      = flag.String("db", "", "Path to the runs database (overrides db_path)")
	migrateCmd  = flag.String("migrate", "", "Run a schema migration command (up, down, status) and exit")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run carries main's body so deferred cleanups execute before the
// process exits: 2 for configuration problems, 1 for runtime failures.
func run() int {
	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *calibrate {
		if *calRows <= 0 || *calCols <= 0 {
			return configError(errors.New("-calibrate needs -rows and -cols"))
		}
		if err := runCalibration(ctx, os.Stdin, os.Stdout, xdotoolSampler{}, *calRows, *calCols); err != nil {
			return runtimeError(err)
		}
		return 0
	}

	if *configPath == "" {
		return configError(errors.New("-config is required"))
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return configError(err)
	}
	applyOverrides(cfg, *listenAddr, *dbPath)

	if *migrateCmd != "" {
		return runMigrate(cfg.GetDBPath(), *migrateCmd)
	}

	geom := cfg.Geometry()
	printStartupSummary(os.Stdout, cfg, geom, *dryRun)

	var source capture.Source
	if *devDir != "" {
		dirSource, err := capture.NewDirSource(*devDir, false)
		if err != nil {
			return configError(err)
		}
		log.Printf("Replaying %d frames from %s", dirSource.Len(), *devDir)
		source = dirSource
	} else {
		source = capture.NewScreenSource()
	}
	defer source.Close()

	clock := timeutil.RealClock{}

	if *captureOnce {
		path, err := captureOverlay(ctx, source, geom, cfg.GetDebugDir(), clock)
		if err != nil {
			return runtimeError(err)
		}
		fmt.Printf("Saved grid overlay: %s\n", path)
		return 0
	}

	classifier, err := vision.New(cfg)
	if err != nil {
		return configError(err)
	}

	db, err := store.NewDB(cfg.GetDBPath())
	if err != nil {
		return runtimeError(err)
	}
	defer db.Close()

	debug := snapshot.NewWriter(cfg.GetDebugDir(), cfg.GetDebugEnabled(), clock)
	defer debug.Close()

	b, err := bot.New(bot.Options{
		Config:     cfg,
		Source:     source,
		Classifier: classifier,
		Clicker:    buildClicker(cfg, clock, *dryRun),
		Store:      db,
		Debug:      debug,
		Clock:      clock,
		DryRun:     *dryRun,
	})
	if err != nil {
		return runtimeError(err)
	}

	ws, err := monitor.NewWebServer(monitor.WebServerConfig{
		Address: cfg.GetListenAddr(),
		Source:  b,
		DB:      db,
	})
	if err != nil {
		return runtimeError(err)
	}

	var (
		wg     sync.WaitGroup
		botErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("Monitor server error: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		// A finished run also stops the monitor so the process exits;
		// run history stays queryable from the database on next start.
		defer stop()
		botErr = b.Run(ctx)
		log.Print("bot routine terminated")
	}()

	wg.Wait()
	if botErr != nil {
		return runtimeError(botErr)
	}
	log.Print("Graceful shutdown complete")
	return 0
}

func configError(err error) int {
	fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
	return 2
}

func runtimeError(err error) int {
	fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
	return 1
}

// applyOverrides lets flags win over the config file for the two
// deployment-specific settings.
func applyOverrides(cfg *config.Config, listen, db string) {
	if listen != "" {
		cfg.ListenAddr = &listen
	}
	if db != "" {
		cfg.DBPath = &db
	}
}

// printStartupSummary reports the run's operating shape before the
// first capture, so a misconfigured region or mode is visible at a
// glance.
func printStartupSummary(w io.Writer, cfg *config.Config, geom board.Geometry, dryRun bool) {
	roi := geom.BoardRect()
	fmt.Fprintln(w, "linkclear bot booted.")
	fmt.Fprintf(w, "Board ROI: x=%d, y=%d, w=%d, h=%d\n", roi.Min.X, roi.Min.Y, roi.Dx(), roi.Dy())
	fmt.Fprintf(w, "Grid size: %dx%d\n", geom.Rows, geom.Cols)
	fmt.Fprintf(w, "Classifier mode: %s\n", cfg.GetClassifierMode())
	fmt.Fprintf(w, "Monitor: %s\n", cfg.GetListenAddr())
	debugMode := "off"
	if cfg.GetDebugEnabled() {
		debugMode = "on"
	}
	fmt.Fprintf(w, "Debug mode: %s\n", debugMode)
	fmt.Fprintf(w, "Debug dir: %s\n", cfg.GetDebugDir())
	if dryRun {
		fmt.Fprintln(w, "Dry run: clicks disabled")
	}
}

// buildClicker assembles the actuation chain: xdotool (or a recorder in
// dry-run mode) behind grid-aware cell addressing with inter-click and
// post-pair pacing.
func buildClicker(cfg *config.Config, clock timeutil.Clock, dryRun bool) *actuate.CellClicker {
	var base actuate.Clicker
	if dryRun {
		base = &actuate.DryRunClicker{}
	} else {
		base = actuate.NewExecClicker()
	}
	return actuate.NewCellClicker(cfg.Geometry(), base, clock, cfg.GetClickPause(), cfg.GetPostClickWait(), dryRun)
}

// captureOverlay grabs one frame, draws the grid over it, and saves it
// under the debug directory so the operator can check the calibration
// against the real window.
func captureOverlay(ctx context.Context, src capture.Source, geom board.Geometry, debugDir string, clock timeutil.Clock) (string, error) {
	if err := security.ValidateExportPath(debugDir); err != nil {
		return "", err
	}
	frame, err := src.Capture(ctx, geom.BoardRect())
	if err != nil {
		return "", err
	}
	return snapshot.SaveSnapshot(debugDir, "grid_overlay", snapshot.DrawGridOverlay(frame, geom), clock)
}

func runMigrate(dbPath, command string) int {
	db, err := store.OpenDB(dbPath)
	if err != nil {
		return runtimeError(err)
	}
	defer db.Close()

	switch command {
	case "up":
		if err := db.MigrateUp(); err != nil {
			return runtimeError(err)
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := db.MigrateDown(); err != nil {
			return runtimeError(err)
		}
		fmt.Println("Rolled back one migration")
	case "status":
		status, err := db.MigrationStatus()
		if err != nil {
			return runtimeError(err)
		}
		for _, key := range []string{"current_version", "dirty", "schema_migrations_exists"} {
			fmt.Printf("%s: %v\n", key, status[key])
		}
	default:
		return configError(fmt.Errorf("unknown -migrate command %q (want up, down, or status)", command))
	}
	return 0
}
