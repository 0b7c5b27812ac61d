// Package current provides the ocean current velocity value type shared by
// the water-column engine and its ingestion loop.
package current

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultTolerance is the per-component tolerance (m/s) used by Equal.
const DefaultTolerance = 1e-6

// Current is an (east, north, down) velocity in m/s, or the explicit
// unknown state. The zero value is unknown.
type Current struct {
	vec   r3.Vec
	known bool
}

// InvalidCurrentError reports a construction with some but not all
// components present.
type InvalidCurrentError struct {
	U, V, W *float64
}

func (e *InvalidCurrentError) Error() string {
	return fmt.Sprintf("invalid current: components must be all present or all absent (u=%s v=%s w=%s)",
		fmtComponent(e.U), fmtComponent(e.V), fmtComponent(e.W))
}

func fmtComponent(c *float64) string {
	if c == nil {
		return "absent"
	}
	return fmt.Sprintf("%g", *c)
}

// New returns a known current.
func New(u, v, w float64) Current {
	return Current{vec: r3.Vec{X: u, Y: v, Z: w}, known: true}
}

// Unknown returns the unknown current.
func Unknown() Current {
	return Current{}
}

// FromComponents builds a current from optional components. All three nil
// yields Unknown; all three set yields a known current; anything else is an
// *InvalidCurrentError.
func FromComponents(u, v, w *float64) (Current, error) {
	switch {
	case u == nil && v == nil && w == nil:
		return Unknown(), nil
	case u != nil && v != nil && w != nil:
		return New(*u, *v, *w), nil
	default:
		return Unknown(), &InvalidCurrentError{U: u, V: v, W: w}
	}
}

// FromFloats treats NaN as an absent component, which is how decoded
// ensembles mark missing velocities.
func FromFloats(u, v, w float64) (Current, error) {
	return FromComponents(present(u), present(v), present(w))
}

func present(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// IsUnknown reports whether c carries no components.
func (c Current) IsUnknown() bool { return !c.known }

// IsKnown reports whether c carries all three components.
func (c Current) IsKnown() bool { return c.known }

// IsFinite reports whether c is known and none of its components is NaN or
// infinite.
func (c Current) IsFinite() bool {
	if !c.known {
		return false
	}
	for _, f := range []float64{c.vec.X, c.vec.Y, c.vec.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Components returns east, north and down. ok is false for unknown currents,
// in which case all three values are NaN.
func (c Current) Components() (u, v, w float64, ok bool) {
	if !c.known {
		return math.NaN(), math.NaN(), math.NaN(), false
	}
	return c.vec.X, c.vec.Y, c.vec.Z, true
}

// East returns the east component, NaN when unknown.
func (c Current) East() float64 {
	u, _, _, _ := c.Components()
	return u
}

// North returns the north component, NaN when unknown.
func (c Current) North() float64 {
	_, v, _, _ := c.Components()
	return v
}

// Down returns the down component, NaN when unknown.
func (c Current) Down() float64 {
	_, _, w, _ := c.Components()
	return w
}

// Magnitude returns the Euclidean norm, or NaN when unknown.
func (c Current) Magnitude() float64 {
	if !c.known {
		return math.NaN()
	}
	return r3.Norm(c.vec)
}

// Add returns c + other. An unknown receiver stays unknown whatever other is;
// a known receiver plus an unknown other is also unknown.
func (c Current) Add(other Current) Current {
	if !c.known || !other.known {
		return Unknown()
	}
	return Current{vec: r3.Add(c.vec, other.vec), known: true}
}

// Subtract returns c - other with the same unknown rules as Add.
func (c Current) Subtract(other Current) Current {
	if !c.known || !other.known {
		return Unknown()
	}
	return Current{vec: r3.Sub(c.vec, other.vec), known: true}
}

// Negate returns -c.
func (c Current) Negate() Current {
	if !c.known {
		return c
	}
	return Current{vec: r3.Scale(-1, c.vec), known: true}
}

// Copy returns c. Current is a value type, so this is a plain copy.
func (c Current) Copy() Current { return c }

// Equal reports whether c and other are both unknown, or both known and within
// DefaultTolerance on every component.
func (c Current) Equal(other Current) bool {
	return c.EqualWithin(other, DefaultTolerance)
}

// EqualWithin is Equal with an explicit tolerance.
func (c Current) EqualWithin(other Current, tol float64) bool {
	if c.known != other.known {
		return false
	}
	if !c.known {
		return true
	}
	d := r3.Sub(c.vec, other.vec)
	return math.Abs(d.X) <= tol && math.Abs(d.Y) <= tol && math.Abs(d.Z) <= tol
}

func (c Current) String() string {
	if !c.known {
		return "V[----, ----, ----]"
	}
	return fmt.Sprintf("V[%+.2f, %+.2f, %+.2f]", c.vec.X, c.vec.Y, c.vec.Z)
}
