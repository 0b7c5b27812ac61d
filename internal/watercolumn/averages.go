package watercolumn

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/watercolumn/internal/current"
)

// Profile is the per-bin averaged current over the whole column. The four
// slices are aligned; bins without a qualifying observation hold NaN.
type Profile struct {
	BinWidth float64
	East     []float64
	North    []float64
	Down     []float64
	Depth    []float64
}

// At returns the averaged current for the bin containing z, or Unknown when
// z is outside the profile or the bin had no qualifying observation.
func (p Profile) At(z float64) current.Current {
	if !(p.BinWidth > 0) {
		return current.Unknown()
	}
	f := math.Floor(z / p.BinWidth)
	if f < 0 || f >= float64(len(p.Depth)) {
		return current.Unknown()
	}
	i := int(f)
	c, err := current.FromFloats(p.East[i], p.North[i], p.Down[i])
	if err != nil {
		return current.Unknown()
	}
	return c
}

// Known returns the number of bins with an estimate.
func (p Profile) Known() int {
	n := 0
	for _, u := range p.East {
		if !math.IsNaN(u) {
			n++
		}
	}
	return n
}

func (p Profile) String() string {
	var sb strings.Builder
	if n := len(p.Depth); n > 0 {
		fmt.Fprintf(&sb, "Water Column (depth=%.0f)\n", p.Depth[n-1]+p.BinWidth)
	}
	for _, z := range p.Depth {
		c := p.At(z)
		fmt.Fprintf(&sb, "|z =%3.0f| %s\n", z, c)
	}
	return sb.String()
}

// qualifying returns the nodes at bin b whose estimate is known and whose
// magnitude is strictly below the current filter.
func (e *Engine) qualifying(b int) []*Node {
	var out []*Node
	for _, id := range e.bins[b] {
		n := &e.nodes[id]
		if n.Voc.IsUnknown() {
			continue
		}
		if n.Voc.Magnitude() < e.cfg.CurrentMagnitudeFilter {
			out = append(out, n)
		}
	}
	return out
}

// ComputeAverages averages the qualifying estimates of every bin from 0 to
// MaxDepth. It reads the index only, so repeated calls without new ingestion
// return identical profiles.
func (e *Engine) ComputeAverages() Profile {
	n := len(e.bins)
	p := Profile{
		BinWidth: e.cfg.BinWidth,
		East:     make([]float64, n),
		North:    make([]float64, n),
		Down:     make([]float64, n),
		Depth:    e.Bins(),
	}

	for b := range e.bins {
		avg := meanOf(e.qualifying(b))
		e.averages[b] = avg
		p.East[b], p.North[b], p.Down[b], _ = avg.Components()
	}
	return p
}

// AverageAt returns the averaged current at z's bin as of the last
// ComputeAverages call.
func (e *Engine) AverageAt(z float64) current.Current {
	b, ok := e.cfg.binOf(z)
	if !ok {
		return current.Unknown()
	}
	return e.averages[b]
}

// SeparatedEstimate averages the qualifying estimates at z's bin, keeping the
// first and then only those observed more than minSeparation seconds after
// it.
func (e *Engine) SeparatedEstimate(z, minSeparation float64) current.Current {
	b, ok := e.cfg.binOf(z)
	if !ok {
		return current.Unknown()
	}
	nodes := e.qualifying(b)
	if len(nodes) == 0 {
		return current.Unknown()
	}
	kept := []*Node{nodes[0]}
	for _, n := range nodes[1:] {
		if n.T-nodes[0].T > minSeparation {
			kept = append(kept, n)
		}
	}
	return meanOf(kept)
}

func meanOf(nodes []*Node) current.Current {
	if len(nodes) == 0 {
		return current.Unknown()
	}
	us := make([]float64, len(nodes))
	vs := make([]float64, len(nodes))
	ws := make([]float64, len(nodes))
	for i, n := range nodes {
		us[i], vs[i], ws[i], _ = n.Voc.Components()
	}
	return current.New(stat.Mean(us, nil), stat.Mean(vs, nil), stat.Mean(ws, nil))
}
