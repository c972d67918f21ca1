// Package monitor serves the bot's HTTP interface: health and status
// endpoints, run history from the store, and rendered charts of the
// current board and classifier confidence.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/httputil"
	"github.com/linkclear/linkclear/internal/monitoring"
	"github.com/linkclear/linkclear/internal/runstate"
	"github.com/linkclear/linkclear/internal/store"
	"github.com/linkclear/linkclear/internal/version"
)

// Status is a point-in-time snapshot of the bot loop. The loop builds a
// fresh value for every request, so handlers may hold one across the
// whole response without racing the loop.
type Status struct {
	RunID      string               `json:"run_id"`
	Mode       string               `json:"mode"`
	DryRun     bool                 `json:"dry_run"`
	StartedAt  time.Time            `json:"started_at"`
	Halted     bool                 `json:"halted"`
	HaltReason string               `json:"halt_reason,omitempty"`
	State      runstate.State       `json:"state"`
	Board      *board.Board         `json:"board,omitempty"`
	Confidence *board.ConfidenceMap `json:"confidence,omitempty"`
}

// StatusSource is implemented by the bot loop. Status must be safe to
// call from any goroutine.
type StatusSource interface {
	Status() Status
}

// WebServer handles the HTTP interface for monitoring a bot run. It
// provides endpoints for health checks, live status, run history and
// chart rendering.
type WebServer struct {
	address string
	source  StatusSource
	db      *store.DB
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server.
// Source and DB may be nil; the endpoints that need them answer 503.
type WebServerConfig struct {
	Address string
	Source  StatusSource
	DB      *store.DB
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	ws := &WebServer{
		address: config.Address,
		source:  config.Source,
		db:      config.DB,
	}

	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: mux,
	}

	return ws, nil
}

// Start begins the HTTP server in a goroutine and blocks until the
// context is cancelled or the listener fails, then shuts down.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("monitor: serving on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("monitor server failed: %w", err)
	case <-ctx.Done():
	}

	monitoring.Logf("monitor: shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("monitor: HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails.
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("monitor: HTTP server force close error: %v", err)
		}
	}

	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/board", ws.handleBoard)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/api/runs/", ws.handleRunEvents)
	mux.HandleFunc("/charts/board", ws.handleBoardChart)
	mux.HandleFunc("/charts/confidence.png", ws.handleConfidencePNG)

	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("failed to attach admin routes: %w", err)
		}
	}

	return mux, nil
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "linkclear", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus returns the bot's live status plus build metadata.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.source == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no bot attached to the monitor")
		return
	}

	st := ws.source.Status()
	uptime := ""
	if !st.StartedAt.IsZero() {
		uptime = time.Since(st.StartedAt).Round(time.Second).String()
	}

	httputil.WriteJSONOK(w, struct {
		Status
		Uptime  string `json:"uptime"`
		Version string `json:"version"`
	}{
		Status:  st,
		Uptime:  uptime,
		Version: version.String(),
	})
}

// handleBoard returns the bot's current board model and confidence map.
func (ws *WebServer) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.source == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no bot attached to the monitor")
		return
	}

	st := ws.source.Status()
	if st.Board == nil {
		httputil.NotFound(w, "no board captured yet")
		return
	}

	resp := struct {
		RunID          string               `json:"run_id"`
		Rows           int                  `json:"rows"`
		Cols           int                  `json:"cols"`
		Remaining      int                  `json:"remaining"`
		Board          *board.Board         `json:"board"`
		Confidence     *board.ConfidenceMap `json:"confidence,omitempty"`
		MeanConfidence float64              `json:"mean_confidence"`
	}{
		RunID:     st.RunID,
		Rows:      st.Board.Rows(),
		Cols:      st.Board.Cols(),
		Remaining: st.Board.CountPositive(),
		Board:     st.Board,
	}
	if st.Confidence != nil {
		resp.Confidence = st.Confidence
		resp.MeanConfidence = st.Confidence.Mean()
	}
	httputil.WriteJSONOK(w, resp)
}

// handleRuns lists recorded runs, newest first.
// Query params:
//
//	limit (optional, default 50)
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	runs, err := ws.db.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list runs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, runs)
}

// handleRunEvents serves /api/runs/{id}/events: the run record plus its
// event log in insertion order.
func (ws *WebServer) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	id, tail, found := strings.Cut(rest, "/")
	if !found || id == "" || tail != "events" {
		httputil.NotFound(w, "not found")
		return
	}

	run, err := ws.db.GetRun(id)
	if errors.Is(err, store.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("get run: %v", err))
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	events, err := ws.db.ListEvents(id, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list events: %v", err))
		return
	}

	httputil.WriteJSONOK(w, struct {
		Run    *store.Run       `json:"run"`
		Events []store.RunEvent `json:"events"`
	}{run, events})
}

// parseLimit reads the optional limit query parameter. A zero return
// with ok=true means the caller should use its default. On a malformed
// value the 400 has already been written.
func parseLimit(w http.ResponseWriter, r *http.Request) (limit int, ok bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return 0, true
	}
	v, err := strconv.Atoi(l)
	if err != nil || v <= 0 {
		httputil.BadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return v, true
}
