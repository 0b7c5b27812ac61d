package watercolumn

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/watercolumn/internal/config"
)

var (
	// ErrInvalidConfig is wrapped by Config.Validate failures.
	ErrInvalidConfig = errors.New("invalid water column config")
	// ErrInvalidPing is wrapped by Ingest when a ping cannot be placed.
	ErrInvalidPing = errors.New("invalid ping")
)

// Config holds the water-column geometry and plausibility filters.
type Config struct {
	BinWidth            float64 // meters, > 0
	FirstCellDistance   float64 // meters from sensor head to the first along-beam cell, >= 0
	MaxDepth            float64 // meters, > 0
	LeadingCellsToSkip  int     // near-sensor cells dropped from forward propagation
	TrailingCellsToSkip int     // max-range cells dropped from forward propagation

	// Nodes whose estimate or shear delta exceeds these magnitudes (m/s) are
	// never indexed. +Inf disables a filter.
	CurrentMagnitudeFilter float64
	ShearMagnitudeFilter   float64
}

// DefaultConfig returns the configuration used for the Pathfinder DVL on a
// Slocum glider: 2 m bins, first cell 2.91 m from the head.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		BinWidth:               cfg.GetBinWidth(),
		FirstCellDistance:      cfg.GetFirstCellDistance(),
		MaxDepth:               cfg.GetMaxDepth(),
		LeadingCellsToSkip:     cfg.GetLeadingCellsToSkip(),
		TrailingCellsToSkip:    cfg.GetTrailingCellsToSkip(),
		CurrentMagnitudeFilter: cfg.GetCurrentMagnitudeFilter(),
		ShearMagnitudeFilter:   cfg.GetShearMagnitudeFilter(),
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if !(c.BinWidth > 0) || math.IsInf(c.BinWidth, 0) {
		return fmt.Errorf("%w: BinWidth must be positive and finite, got %f", ErrInvalidConfig, c.BinWidth)
	}
	if !(c.MaxDepth > 0) || math.IsInf(c.MaxDepth, 0) {
		return fmt.Errorf("%w: MaxDepth must be positive and finite, got %f", ErrInvalidConfig, c.MaxDepth)
	}
	if !(c.FirstCellDistance >= 0) || math.IsInf(c.FirstCellDistance, 0) {
		return fmt.Errorf("%w: FirstCellDistance must be non-negative and finite, got %f", ErrInvalidConfig, c.FirstCellDistance)
	}
	if c.LeadingCellsToSkip < 0 {
		return fmt.Errorf("%w: LeadingCellsToSkip must be non-negative, got %d", ErrInvalidConfig, c.LeadingCellsToSkip)
	}
	if c.TrailingCellsToSkip < 0 {
		return fmt.Errorf("%w: TrailingCellsToSkip must be non-negative, got %d", ErrInvalidConfig, c.TrailingCellsToSkip)
	}
	if !(c.CurrentMagnitudeFilter > 0) {
		return fmt.Errorf("%w: CurrentMagnitudeFilter must be positive, got %f", ErrInvalidConfig, c.CurrentMagnitudeFilter)
	}
	if !(c.ShearMagnitudeFilter > 0) {
		return fmt.Errorf("%w: ShearMagnitudeFilter must be positive, got %f", ErrInvalidConfig, c.ShearMagnitudeFilter)
	}
	return nil
}

// binCount covers [0, MaxDepth).
func (c Config) binCount() int {
	return int(math.Ceil(c.MaxDepth / c.BinWidth))
}
