package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Velocity2 is a horizontal (east, north) velocity in m/s.
type Velocity2 struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// Ensemble is one decoded DVL ping together with the flight-computer values
// interpolated to its timestamp.
type Ensemble struct {
	Time    float64 `json:"time"`    // seconds
	Depth   float64 `json:"depth"`   // meters
	DeltaZ  float64 `json:"delta_z"` // meters since the previous ensemble, positive when descending
	Pitch   float64 `json:"pitch"`   // degrees
	Roll    float64 `json:"roll"`    // degrees
	Heading float64 `json:"heading"` // degrees

	// Through-water velocity from the glider's flight model and from the DVL.
	FlightVelocity Velocity2 `json:"flight_velocity"`
	DVLVelocity    Velocity2 `json:"dvl_velocity"`

	// BottomTrack is the over-ground velocity; nil when the seafloor is out of range.
	BottomTrack *Velocity2 `json:"bottom_track,omitempty"`

	// Cells holds the water velocity reported for each good along-beam
	// cell, nearest first.
	Cells []Velocity2 `json:"cells"`
}

// Validate rejects ensembles that the engine cannot place.
func (e Ensemble) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"time", e.Time}, {"depth", e.Depth}, {"delta_z", e.DeltaZ}, {"pitch", e.Pitch}, {"roll", e.Roll},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("ensemble at t=%v: %s is not finite", e.Time, f.name)
		}
	}
	return nil
}

// ReadEnsembles decodes a stream of JSON ensembles, one per line.
func ReadEnsembles(r io.Reader) ([]Ensemble, error) {
	var out []Ensemble
	dec := json.NewDecoder(bufio.NewReader(r))
	for {
		var e Ensemble
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode ensemble %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
}
