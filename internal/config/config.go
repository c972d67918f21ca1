// Package config loads and validates the bot's JSON configuration.
// Fields are pointers so a key that is absent from the file can be told
// apart from one set to zero; Get* accessors supply defaults for the
// optional keys, and Validate enforces the required ones.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linkclear/linkclear/internal/board"
)

// Classifier modes accepted in classifier_mode.
const (
	ModeCatalog = "catalog"
	ModeAnchors = "anchors"
)

// Config is the root configuration. The JSON schema is flat so a config
// file can be assembled from the calibration tool's output plus a few
// hand-tuned thresholds.
type Config struct {
	// Board geometry (required).
	Rows         *int `json:"rows,omitempty"`
	Cols         *int `json:"cols,omitempty"`
	BoardCenterX *int `json:"board_center_x,omitempty"`
	BoardCenterY *int `json:"board_center_y,omitempty"`
	CellW        *int `json:"cell_w,omitempty"`
	CellH        *int `json:"cell_h,omitempty"`
	GapX         *int `json:"gap_x,omitempty"`
	GapY         *int `json:"gap_y,omitempty"`

	// Classifier (template_dir and match_threshold required; the rest
	// required per mode).
	TemplateDir              *string  `json:"template_dir,omitempty"`
	ClassifierMode           *string  `json:"classifier_mode,omitempty"`
	MatchThreshold           *float64 `json:"match_threshold,omitempty"`
	MinMarginToSecondBest    *float64 `json:"min_margin_to_second_best,omitempty"`
	BlockMatchThreshold      *float64 `json:"block_match_threshold,omitempty"`
	BackgroundMatchThreshold *float64 `json:"background_match_threshold,omitempty"`
	EmptyPinkRatioThreshold  *float64 `json:"empty_pink_ratio_threshold,omitempty"`
	EmptyTextureThreshold    *float64 `json:"empty_texture_threshold,omitempty"`
	TileSimilarityThreshold  *float64 `json:"tile_similarity_threshold,omitempty"`

	// Run loop.
	FullRescanEveryNMoves  *int     `json:"full_rescan_every_n_moves,omitempty"`
	MaxConsecutiveFailures *int     `json:"max_consecutive_failures,omitempty"`
	MaxMoves               *int     `json:"max_moves,omitempty"`
	LowConfidenceMean      *float64 `json:"low_confidence_mean,omitempty"`

	// Actuation pacing.
	ClickPauseMs    *int `json:"click_pause_ms,omitempty"`
	PostClickWaitMs *int `json:"post_click_wait_ms,omitempty"`

	// Diagnostics and services.
	DebugEnabled *bool   `json:"debug_enabled,omitempty"`
	DebugDir     *string `json:"debug_dir,omitempty"`
	DBPath       *string `json:"db_path,omitempty"`
	ListenAddr   *string `json:"listen_addr,omitempty"`
}

// Load reads, parses, and validates a config file. Any error from here
// is a startup-fatal configuration problem.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks required keys and value ranges. Missing keys are
// reported together so a fresh config can be fixed in one pass.
func (c *Config) Validate() error {
	var missing []string
	requireInt := func(name string, v *int) {
		if v == nil {
			missing = append(missing, name)
		}
	}
	requireFloat := func(name string, v *float64) {
		if v == nil {
			missing = append(missing, name)
		}
	}

	requireInt("rows", c.Rows)
	requireInt("cols", c.Cols)
	requireInt("board_center_x", c.BoardCenterX)
	requireInt("board_center_y", c.BoardCenterY)
	requireInt("cell_w", c.CellW)
	requireInt("cell_h", c.CellH)
	requireInt("gap_x", c.GapX)
	requireInt("gap_y", c.GapY)
	if c.TemplateDir == nil || *c.TemplateDir == "" {
		missing = append(missing, "template_dir")
	}
	requireFloat("match_threshold", c.MatchThreshold)

	mode := c.GetClassifierMode()
	switch mode {
	case ModeCatalog:
		requireFloat("min_margin_to_second_best", c.MinMarginToSecondBest)
	case ModeAnchors:
		requireFloat("block_match_threshold", c.BlockMatchThreshold)
		requireFloat("background_match_threshold", c.BackgroundMatchThreshold)
		requireFloat("empty_pink_ratio_threshold", c.EmptyPinkRatioThreshold)
		requireFloat("empty_texture_threshold", c.EmptyTextureThreshold)
		requireFloat("tile_similarity_threshold", c.TileSimilarityThreshold)
	default:
		return fmt.Errorf("classifier_mode must be %q or %q, got %q", ModeCatalog, ModeAnchors, mode)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config keys: %s", strings.Join(missing, ", "))
	}

	if err := c.Geometry().Validate(); err != nil {
		return err
	}

	unitRange := func(name string, v *float64) error {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, *v)
		}
		return nil
	}
	for name, v := range map[string]*float64{
		"match_threshold":            c.MatchThreshold,
		"min_margin_to_second_best":  c.MinMarginToSecondBest,
		"block_match_threshold":      c.BlockMatchThreshold,
		"background_match_threshold": c.BackgroundMatchThreshold,
		"empty_pink_ratio_threshold": c.EmptyPinkRatioThreshold,
		"tile_similarity_threshold":  c.TileSimilarityThreshold,
		"low_confidence_mean":        c.LowConfidenceMean,
	} {
		if err := unitRange(name, v); err != nil {
			return err
		}
	}

	if c.EmptyTextureThreshold != nil && *c.EmptyTextureThreshold < 0 {
		return fmt.Errorf("empty_texture_threshold must be non-negative, got %v", *c.EmptyTextureThreshold)
	}
	if c.FullRescanEveryNMoves != nil && *c.FullRescanEveryNMoves < 0 {
		return fmt.Errorf("full_rescan_every_n_moves must be non-negative, got %d", *c.FullRescanEveryNMoves)
	}
	if c.MaxConsecutiveFailures != nil && *c.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_consecutive_failures must be positive, got %d", *c.MaxConsecutiveFailures)
	}
	if c.MaxMoves != nil && *c.MaxMoves < 0 {
		return fmt.Errorf("max_moves must be non-negative, got %d", *c.MaxMoves)
	}
	if c.ClickPauseMs != nil && *c.ClickPauseMs < 0 {
		return fmt.Errorf("click_pause_ms must be non-negative, got %d", *c.ClickPauseMs)
	}
	if c.PostClickWaitMs != nil && *c.PostClickWaitMs < 0 {
		return fmt.Errorf("post_click_wait_ms must be non-negative, got %d", *c.PostClickWaitMs)
	}

	return nil
}

// Geometry assembles the board placement from the geometry keys. Only
// meaningful after Validate has passed.
func (c *Config) Geometry() board.Geometry {
	g := board.Geometry{}
	if c.Rows != nil {
		g.Rows = *c.Rows
	}
	if c.Cols != nil {
		g.Cols = *c.Cols
	}
	if c.BoardCenterX != nil {
		g.BoardCenterX = *c.BoardCenterX
	}
	if c.BoardCenterY != nil {
		g.BoardCenterY = *c.BoardCenterY
	}
	if c.CellW != nil {
		g.CellW = *c.CellW
	}
	if c.CellH != nil {
		g.CellH = *c.CellH
	}
	if c.GapX != nil {
		g.GapX = *c.GapX
	}
	if c.GapY != nil {
		g.GapY = *c.GapY
	}
	return g
}

// GetTemplateDir returns the template directory. Required, so empty
// only before validation.
func (c *Config) GetTemplateDir() string {
	if c.TemplateDir == nil {
		return ""
	}
	return *c.TemplateDir
}

// GetClassifierMode returns classifier_mode or the default.
func (c *Config) GetClassifierMode() string {
	if c.ClassifierMode == nil || *c.ClassifierMode == "" {
		return ModeAnchors
	}
	return *c.ClassifierMode
}

// GetMatchThreshold returns match_threshold. Required key.
func (c *Config) GetMatchThreshold() float64 {
	if c.MatchThreshold == nil {
		return 0
	}
	return *c.MatchThreshold
}

// GetMinMarginToSecondBest returns min_margin_to_second_best or the default.
func (c *Config) GetMinMarginToSecondBest() float64 {
	if c.MinMarginToSecondBest == nil {
		return 0.05
	}
	return *c.MinMarginToSecondBest
}

// GetBlockMatchThreshold returns block_match_threshold or the default.
func (c *Config) GetBlockMatchThreshold() float64 {
	if c.BlockMatchThreshold == nil {
		return 0.75
	}
	return *c.BlockMatchThreshold
}

// GetBackgroundMatchThreshold returns background_match_threshold or the
// default. Reserved for the direct background-NCC emptiness check; the
// anchors classifier currently keys emptiness off the marked-ratio and
// texture tests.
func (c *Config) GetBackgroundMatchThreshold() float64 {
	if c.BackgroundMatchThreshold == nil {
		return 0.75
	}
	return *c.BackgroundMatchThreshold
}

// GetEmptyPinkRatioThreshold returns empty_pink_ratio_threshold or the default.
func (c *Config) GetEmptyPinkRatioThreshold() float64 {
	if c.EmptyPinkRatioThreshold == nil {
		return 0.35
	}
	return *c.EmptyPinkRatioThreshold
}

// GetEmptyTextureThreshold returns empty_texture_threshold or the default.
func (c *Config) GetEmptyTextureThreshold() float64 {
	if c.EmptyTextureThreshold == nil {
		return 6.0
	}
	return *c.EmptyTextureThreshold
}

// GetTileSimilarityThreshold returns tile_similarity_threshold or the default.
func (c *Config) GetTileSimilarityThreshold() float64 {
	if c.TileSimilarityThreshold == nil {
		return 0.85
	}
	return *c.TileSimilarityThreshold
}

// GetFullRescanEveryNMoves returns full_rescan_every_n_moves or the default.
func (c *Config) GetFullRescanEveryNMoves() int {
	if c.FullRescanEveryNMoves == nil {
		return 10
	}
	return *c.FullRescanEveryNMoves
}

// GetMaxConsecutiveFailures returns max_consecutive_failures or the default.
func (c *Config) GetMaxConsecutiveFailures() int {
	if c.MaxConsecutiveFailures == nil {
		return 5
	}
	return *c.MaxConsecutiveFailures
}

// GetMaxMoves returns max_moves or the default. Zero means unlimited.
func (c *Config) GetMaxMoves() int {
	if c.MaxMoves == nil {
		return 0
	}
	return *c.MaxMoves
}

// GetLowConfidenceMean returns low_confidence_mean or the default.
func (c *Config) GetLowConfidenceMean() float64 {
	if c.LowConfidenceMean == nil {
		return 0.55
	}
	return *c.LowConfidenceMean
}

// GetClickPause returns the pause between the two clicks of a pair.
func (c *Config) GetClickPause() time.Duration {
	if c.ClickPauseMs == nil {
		return 120 * time.Millisecond
	}
	return time.Duration(*c.ClickPauseMs) * time.Millisecond
}

// GetPostClickWait returns the settle time after a pair is clicked,
// giving the game time to run its removal animation before the next
// capture.
func (c *Config) GetPostClickWait() time.Duration {
	if c.PostClickWaitMs == nil {
		return 350 * time.Millisecond
	}
	return time.Duration(*c.PostClickWaitMs) * time.Millisecond
}

// GetDebugEnabled returns debug_enabled or the default.
func (c *Config) GetDebugEnabled() bool {
	if c.DebugEnabled == nil {
		return false
	}
	return *c.DebugEnabled
}

// GetDebugDir returns debug_dir or the default.
func (c *Config) GetDebugDir() string {
	if c.DebugDir == nil || *c.DebugDir == "" {
		return "debug_runs"
	}
	return *c.DebugDir
}

// GetDBPath returns db_path or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "linkclear.db"
	}
	return *c.DBPath
}

// GetListenAddr returns listen_addr or the default.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080"
	}
	return *c.ListenAddr
}
