package watercolumn

import (
	"fmt"
	"math"

	"github.com/banshee-data/watercolumn/internal/current"
)

// NodeID addresses a node in the engine's arena. IDs are assigned in
// creation order and never reused.
type NodeID int

// NoNode marks the absence of a parent.
const NoNode NodeID = -1

// Direction is the vehicle's vertical direction of travel for a ping.
type Direction int

const (
	Descending Direction = iota
	Ascending
)

func (d Direction) String() string {
	switch d {
	case Descending:
		return "descending"
	case Ascending:
		return "ascending"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts "descending" or "ascending".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "descending":
		return Descending, nil
	case "ascending":
		return Ascending, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Provenance records how a node's estimate became known. It is set exactly
// once, at the moment Voc is resolved.
type Provenance uint8

const (
	Unresolved Provenance = iota
	Anchored
	ForwardDerived
	BackDerived
)

func (p Provenance) String() string {
	switch p {
	case Anchored:
		return "btm-trck"
	case ForwardDerived:
		return "fwd-prop"
	case BackDerived:
		return "bck-prop"
	default:
		return "none"
	}
}

// Node is one observation placed in the propagation tree. For every node
// with a parent, Voc == parent.Voc - VocDelta once both are known.
type Node struct {
	ID         NodeID
	ZTrue      float64 // meters
	ZBin       float64 // ZTrue floored to the bin width
	T          float64 // ping time, seconds
	Voc        current.Current
	VocDelta   current.Current
	Parent     NodeID
	Children   []NodeID
	Direction  Direction
	Pitch      float64 // degrees, vehicle attitude at observation time
	Roll       float64 // degrees
	Provenance Provenance
}

func (n Node) String() string {
	return fmt.Sprintf("Shear<z:%3.0f, t:%4.0f, %s, %8s>", n.ZBin, n.T, n.Voc, n.Provenance)
}

// projectCell returns the true depth of along-beam cell i for a sensor at
// depth z with the given attitude. The slant offset is projected onto the
// vertical by cos(pitch)*cos(roll).
func (c Config) projectCell(z, pitchDeg, rollDeg float64, i int) float64 {
	const degToRad = math.Pi / 180
	scale := math.Cos(pitchDeg*degToRad) * math.Cos(rollDeg*degToRad)
	return z + (c.FirstCellDistance+float64(i)*c.BinWidth)*scale
}

// childDepth is projectCell from a parent node's position and attitude.
func (c Config) childDepth(parent *Node, i int) float64 {
	return c.projectCell(parent.ZTrue, parent.Pitch, parent.Roll, i)
}

// binOf floors z to its bin. ok is false outside [0, MaxDepth), including
// the part of a partial last bin beyond MaxDepth.
func (c Config) binOf(z float64) (idx int, ok bool) {
	if !(z >= 0 && z < c.MaxDepth) {
		return -1, false
	}
	return min(int(math.Floor(z/c.BinWidth)), c.binCount()-1), true
}

func (c Config) binKey(z float64) float64 {
	return math.Floor(z/c.BinWidth) * c.BinWidth
}
