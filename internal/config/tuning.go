package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for water-column estimation.
// Every field is optional; Get* methods fall back to the built-in defaults.
type TuningConfig struct {
	// Water column geometry
	BinWidth          *float64 `json:"bin_width,omitempty"`           // meters
	FirstCellDistance *float64 `json:"first_cell_distance,omitempty"` // meters, sensor head to first cell
	MaxDepth          *float64 `json:"max_depth,omitempty"`           // meters

	// Along-beam cell filtering
	LeadingCellsToSkip  *int `json:"leading_cells_to_skip,omitempty"`
	TrailingCellsToSkip *int `json:"trailing_cells_to_skip,omitempty"`

	// Plausibility filters (m/s)
	CurrentMagnitudeFilter *float64 `json:"current_magnitude_filter,omitempty"`
	ShearMagnitudeFilter   *float64 `json:"shear_magnitude_filter,omitempty"`

	// Ingestion
	NearSurfaceDepth  *float64 `json:"near_surface_depth,omitempty"`  // meters
	MountingPitchBias *float64 `json:"mounting_pitch_bias,omitempty"` // degrees

	// Separated estimate window, duration string like "15m"
	EstimateSeparation *string `json:"estimate_separation,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// built-in default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		BinWidth:               ptrFloat64(defaultBinWidth),
		FirstCellDistance:      ptrFloat64(defaultFirstCellDistance),
		MaxDepth:               ptrFloat64(defaultMaxDepth),
		LeadingCellsToSkip:     ptrInt(0),
		TrailingCellsToSkip:    ptrInt(0),
		CurrentMagnitudeFilter: ptrFloat64(defaultCurrentMagnitudeFilter),
		ShearMagnitudeFilter:   ptrFloat64(defaultShearMagnitudeFilter),
		NearSurfaceDepth:       ptrFloat64(defaultNearSurfaceDepth),
		MountingPitchBias:      ptrFloat64(0),
		EstimateSeparation:     ptrString(defaultEstimateSeparation.String()),
	}
}

const (
	defaultBinWidth               = 2.0
	defaultFirstCellDistance      = 2.91
	defaultMaxDepth               = 1000.0
	defaultCurrentMagnitudeFilter = 0.5
	defaultShearMagnitudeFilter   = 0.30
	defaultNearSurfaceDepth       = 10.0
	defaultEstimateSeparation     = 15 * time.Minute
)

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"bin_width", c.BinWidth},
		{"max_depth", c.MaxDepth},
		{"current_magnitude_filter", c.CurrentMagnitudeFilter},
		{"shear_magnitude_filter", c.ShearMagnitudeFilter},
	}
	for _, p := range positive {
		if p.v != nil && !(*p.v > 0) {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}

	if c.FirstCellDistance != nil && !(*c.FirstCellDistance >= 0) {
		return fmt.Errorf("first_cell_distance must be non-negative, got %f", *c.FirstCellDistance)
	}
	if c.NearSurfaceDepth != nil && !(*c.NearSurfaceDepth >= 0) {
		return fmt.Errorf("near_surface_depth must be non-negative, got %f", *c.NearSurfaceDepth)
	}
	if c.MountingPitchBias != nil && math.Abs(*c.MountingPitchBias) >= 90 {
		return fmt.Errorf("mounting_pitch_bias must be within (-90, 90) degrees, got %f", *c.MountingPitchBias)
	}

	if c.LeadingCellsToSkip != nil && *c.LeadingCellsToSkip < 0 {
		return fmt.Errorf("leading_cells_to_skip must be non-negative, got %d", *c.LeadingCellsToSkip)
	}
	if c.TrailingCellsToSkip != nil && *c.TrailingCellsToSkip < 0 {
		return fmt.Errorf("trailing_cells_to_skip must be non-negative, got %d", *c.TrailingCellsToSkip)
	}

	if c.EstimateSeparation != nil && *c.EstimateSeparation != "" {
		d, err := time.ParseDuration(*c.EstimateSeparation)
		if err != nil {
			return fmt.Errorf("invalid estimate_separation '%s': %w", *c.EstimateSeparation, err)
		}
		if d < 0 {
			return fmt.Errorf("estimate_separation must be non-negative, got %v", d)
		}
	}

	return nil
}

// GetBinWidth returns the bin_width value or the default.
func (c *TuningConfig) GetBinWidth() float64 {
	if c.BinWidth == nil {
		return defaultBinWidth
	}
	return *c.BinWidth
}

// GetFirstCellDistance returns the first_cell_distance value or the default.
func (c *TuningConfig) GetFirstCellDistance() float64 {
	if c.FirstCellDistance == nil {
		return defaultFirstCellDistance
	}
	return *c.FirstCellDistance
}

// GetMaxDepth returns the max_depth value or the default.
func (c *TuningConfig) GetMaxDepth() float64 {
	if c.MaxDepth == nil {
		return defaultMaxDepth
	}
	return *c.MaxDepth
}

func (c *TuningConfig) GetLeadingCellsToSkip() int {
	if c.LeadingCellsToSkip == nil {
		return 0
	}
	return *c.LeadingCellsToSkip
}

func (c *TuningConfig) GetTrailingCellsToSkip() int {
	if c.TrailingCellsToSkip == nil {
		return 0
	}
	return *c.TrailingCellsToSkip
}

// GetCurrentMagnitudeFilter returns the current_magnitude_filter value or the default.
func (c *TuningConfig) GetCurrentMagnitudeFilter() float64 {
	if c.CurrentMagnitudeFilter == nil {
		return defaultCurrentMagnitudeFilter
	}
	return *c.CurrentMagnitudeFilter
}

// GetShearMagnitudeFilter returns the shear_magnitude_filter value or the default.
func (c *TuningConfig) GetShearMagnitudeFilter() float64 {
	if c.ShearMagnitudeFilter == nil {
		return defaultShearMagnitudeFilter
	}
	return *c.ShearMagnitudeFilter
}

func (c *TuningConfig) GetNearSurfaceDepth() float64 {
	if c.NearSurfaceDepth == nil {
		return defaultNearSurfaceDepth
	}
	return *c.NearSurfaceDepth
}

func (c *TuningConfig) GetMountingPitchBias() float64 {
	if c.MountingPitchBias == nil {
		return 0
	}
	return *c.MountingPitchBias
}

// GetEstimateSeparation parses and returns the EstimateSeparation as a time.Duration.
func (c *TuningConfig) GetEstimateSeparation() time.Duration {
	if c.EstimateSeparation == nil || *c.EstimateSeparation == "" {
		return defaultEstimateSeparation
	}
	d, err := time.ParseDuration(*c.EstimateSeparation)
	if err != nil {
		return defaultEstimateSeparation // default on parse error
	}
	return d
}
