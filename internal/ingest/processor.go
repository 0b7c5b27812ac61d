// Package ingest turns decoded DVL ensembles into water-column pings and
// drives one Engine per dive.
package ingest

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/watercolumn/internal/config"
	"github.com/banshee-data/watercolumn/internal/current"
	"github.com/banshee-data/watercolumn/internal/monitoring"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

// Options controls how ensembles are converted into pings.
type Options struct {
	// Below this depth (m) the flight-model through-water velocity is used;
	// at or above it the DVL's own estimate is.
	NearSurfaceDepth float64
	// MountingPitchBias (deg) is added to the vehicle pitch.
	MountingPitchBias float64
	// Cell counts that must be exceeded before a ping's shear list is used.
	Leading  int
	Trailing int
}

// OptionsFromTuning builds Options from a loaded TuningConfig.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	return Options{
		NearSurfaceDepth:  cfg.GetNearSurfaceDepth(),
		MountingPitchBias: cfg.GetMountingPitchBias(),
		Leading:           cfg.GetLeadingCellsToSkip(),
		Trailing:          cfg.GetTrailingCellsToSkip(),
	}
}

// ThroughWater returns the horizontal through-water velocity used for e.
func (o Options) ThroughWater(e Ensemble) Velocity2 {
	if e.Depth > o.NearSurfaceDepth {
		return e.FlightVelocity
	}
	return e.DVLVelocity
}

// BuildPing converts e into a ping. ok is false when the ensemble carries
// neither enough cells nor a bottom-track reference.
func (o Options) BuildPing(e Ensemble) (p watercolumn.Ping, ok bool) {
	vtw := o.ThroughWater(e)

	// The mounting bias tilts the beam through the engine's cos(pitch)
	// projection; bin width and first-cell distance stay as configured.
	p = watercolumn.Ping{
		ZTrue:     e.Depth,
		T:         e.Time,
		Ref:       current.Unknown(),
		Direction: watercolumn.Ascending,
		Pitch:     e.Pitch + o.MountingPitchBias,
		Roll:      e.Roll,
	}
	if e.DeltaZ > 0 {
		p.Direction = watercolumn.Descending
	}
	if e.BottomTrack != nil {
		p.Ref = current.New(e.BottomTrack.U-vtw.U, e.BottomTrack.V-vtw.V, 0)
	}

	if len(e.Cells) > o.Leading+o.Trailing {
		p.Shears = make([]current.Current, len(e.Cells))
		for i, cell := range e.Cells {
			p.Shears[i] = current.New(vtw.U+cell.U, vtw.V+cell.V, 0)
		}
		return p, true
	}
	return p, p.Ref.IsKnown()
}

// Summary describes one processed dive.
type Summary struct {
	DiveID    string
	Processed int
	Skipped   int
	Stats     watercolumn.Stats
}

// Processor feeds the ensembles of a single dive into its own Engine.
type Processor struct {
	id        uuid.UUID
	opts      Options
	engine    *watercolumn.Engine
	processed int
	skipped   int
}

// NewProcessor creates a Processor with a fresh engine and dive ID.
func NewProcessor(cfg watercolumn.Config, opts Options) (*Processor, error) {
	eng, err := watercolumn.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Processor{
		id:     uuid.New(),
		opts:   opts,
		engine: eng,
	}, nil
}

// DiveID identifies this processor's dive in log output.
func (p *Processor) DiveID() string { return p.id.String() }

// Engine exposes the underlying engine for depth lookups.
func (p *Processor) Engine() *watercolumn.Engine { return p.engine }

// Process ingests one ensemble. Ensembles must arrive in time order.
func (p *Processor) Process(e Ensemble) error {
	if err := e.Validate(); err != nil {
		return err
	}
	ping, ok := p.opts.BuildPing(e)
	if !ok {
		p.skipped++
		monitoring.Debugf("[%s] skipping ensemble at t=%.1f: %d cells, no bottom track",
			p.id, e.Time, len(e.Cells))
		return nil
	}
	if err := p.engine.Ingest(ping); err != nil {
		return fmt.Errorf("dive %s: %w", p.id, err)
	}
	p.processed++
	return nil
}

// ProcessAll ingests every ensemble in order, stopping at the first error.
func (p *Processor) ProcessAll(ensembles []Ensemble) error {
	for i, e := range ensembles {
		if err := p.Process(e); err != nil {
			return fmt.Errorf("ensemble %d: %w", i, err)
		}
	}
	return nil
}

// Summary returns the counters collected so far.
func (p *Processor) Summary() Summary {
	return Summary{
		DiveID:    p.DiveID(),
		Processed: p.processed,
		Skipped:   p.skipped,
		Stats:     p.engine.Stats(),
	}
}

// Finish averages the water column and logs a summary of the dive.
func (p *Processor) Finish() watercolumn.Profile {
	profile := p.engine.ComputeAverages()
	s := p.Summary()
	monitoring.Logf("[%s] dive complete: %d pings ingested, %d skipped, %d nodes (%d indexed, %d rejected, %d out of range), %d estimates dropped, %d/%d bins estimated",
		s.DiveID, s.Processed, s.Skipped, s.Stats.NodesCreated, s.Stats.NodesIndexed,
		s.Stats.Rejected, s.Stats.OutOfRange, s.Stats.RejectedRefs, profile.Known(), len(profile.Depth))
	return profile
}
