package watercolumn

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/watercolumn/internal/current"
)

// newTestEngine returns an engine with the default geometry (2 m bins, first
// cell at 2.91 m) and both magnitude filters disabled.
func newTestEngine(t *testing.T, maxDepth float64, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxDepth = maxDepth
	cfg.CurrentMagnitudeFilter = math.Inf(1)
	cfg.ShearMagnitudeFilter = math.Inf(1)
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func c(u, v, w float64) current.Current { return current.New(u, v, w) }

func shears(vals ...[3]float64) []current.Current {
	out := make([]current.Current, len(vals))
	for i, v := range vals {
		out[i] = current.New(v[0], v[1], v[2])
	}
	return out
}

func ingest(t *testing.T, e *Engine, p Ping) {
	t.Helper()
	require.NoError(t, e.Ingest(p))
}

// assertVocs checks the chronological estimates indexed at z's bin.
func assertVocs(t *testing.T, e *Engine, z float64, want ...current.Current) {
	t.Helper()
	nodes := e.DepthObservations(z)
	require.Len(t, nodes, len(want), "bin %v: %v", z, nodes)
	for i, n := range nodes {
		assert.True(t, n.Voc.Equal(want[i]), "bin %v node %d: got %v want %v", z, i, n.Voc, want[i])
	}
}

// assertTreeConsistent checks the parent/child relation and acyclicity over
// the whole arena.
func assertTreeConsistent(t *testing.T, e *Engine) {
	t.Helper()
	for id := 0; id < e.Len(); id++ {
		n, ok := e.Node(NodeID(id))
		require.True(t, ok)
		if n.Parent == NoNode {
			continue
		}
		assert.Less(t, int(n.Parent), id, "node %d parent must be older", id)
		p, _ := e.Node(n.Parent)
		assert.Contains(t, p.Children, n.ID)
		if n.Voc.IsKnown() && p.Voc.IsKnown() {
			assert.True(t, n.Voc.Equal(p.Voc.Subtract(n.VocDelta)),
				"node %d: %v != %v - %v", id, n.Voc, p.Voc, n.VocDelta)
		}
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero bin width", func(c *Config) { c.BinWidth = 0 }},
		{"negative bin width", func(c *Config) { c.BinWidth = -2 }},
		{"zero max depth", func(c *Config) { c.MaxDepth = 0 }},
		{"NaN max depth", func(c *Config) { c.MaxDepth = math.NaN() }},
		{"negative first cell", func(c *Config) { c.FirstCellDistance = -1 }},
		{"negative leading skip", func(c *Config) { c.LeadingCellsToSkip = -1 }},
		{"negative trailing skip", func(c *Config) { c.TrailingCellsToSkip = -1 }},
		{"zero current filter", func(c *Config) { c.CurrentMagnitudeFilter = 0 }},
		{"zero shear filter", func(c *Config) { c.ShearMagnitudeFilter = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2.0, cfg.BinWidth)
	assert.Equal(t, 2.91, cfg.FirstCellDistance)
	assert.Equal(t, 500, cfg.binCount())
}

func TestIngest_InvalidPing(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 20)
	tests := []struct {
		name string
		ping Ping
	}{
		{"NaN depth", Ping{ZTrue: math.NaN()}},
		{"infinite pitch", Ping{Pitch: math.Inf(1)}},
		{"bad direction", Ping{Direction: Direction(7)}},
		{"unknown shear", Ping{Shears: []current.Current{c(1, 0, 0), current.Unknown()}}},
		{"NaN shear", Ping{Shears: []current.Current{c(math.NaN(), 0, 0)}}},
		{"infinite reference", Ping{Ref: c(0, math.Inf(-1), 0)}},
		{"NaN reference", Ping{Ref: c(0, 0, math.NaN())}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Ingest(tt.ping)
			assert.True(t, errors.Is(err, ErrInvalidPing), "got %v", err)
		})
	}
	assert.Equal(t, 0, e.Len())
	assert.Equal(t, 0, e.Stats().Pings)
}

func TestIngest_SingleAnchorDescending(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 20)
	ingest(t, e, Ping{
		Shears: shears([3]float64{1, 0, 0}, [3]float64{2, 0, 0}, [3]float64{3, 0, 0}),
		Ref:    c(0, 0, 0),
	})

	assertVocs(t, e, 0, c(0, 0, 0))
	assertVocs(t, e, 2, c(-1, 0, 0))
	assertVocs(t, e, 4, c(-2, 0, 0))
	assertVocs(t, e, 6, c(-3, 0, 0))

	assert.Equal(t, Anchored, e.DepthObservations(0)[0].Provenance)
	for _, z := range []float64{2, 4, 6} {
		assert.Equal(t, ForwardDerived, e.DepthObservations(z)[0].Provenance, "bin %v", z)
	}
	assertTreeConsistent(t, e)
}

func TestIngest_ForwardPropagationDescending(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 20)
	ingest(t, e, Ping{
		Shears: shears([3]float64{1, 0, 0}, [3]float64{2, 0, 0}, [3]float64{3, 0, 0}),
		Ref:    c(0, 0, 0),
	})
	// No reference; the most recent node at bin 2 becomes the parent.
	ingest(t, e, Ping{
		ZTrue:  2,
		T:      1,
		Shears: shears([3]float64{0, 0, 0}, [3]float64{1, 0, 0}),
	})

	assertVocs(t, e, 0, c(0, 0, 0))
	assertVocs(t, e, 2, c(-1, 0, 0))
	assertVocs(t, e, 4, c(-2, 0, 0), c(-1, 0, 0))
	assertVocs(t, e, 6, c(-3, 0, 0), c(-2, 0, 0))
	assertTreeConsistent(t, e)
}

func TestIngest_ForwardPropagationAscending(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 12)
	ingest(t, e, Ping{
		ZTrue:     8,
		Shears:    shears([3]float64{1, 0, 0}),
		Ref:       c(5, 0, 0),
		Direction: Ascending,
	})
	// Sample 1 lands in bin 8, which holds the resolved anchor.
	ingest(t, e, Ping{
		ZTrue:     4,
		T:         2,
		Shears:    shears([3]float64{-1, 0, 0}, [3]float64{0, 0, 0}, [3]float64{1, 0, 0}),
		Direction: Ascending,
	})

	assertVocs(t, e, 4, c(5, 0, 0))
	assertVocs(t, e, 6, c(6, 0, 0))
	assertVocs(t, e, 8, c(5, 0, 0))
	assertVocs(t, e, 10, c(4, 0, 0), c(4, 0, 0))

	derived := e.DepthObservations(4)[0]
	assert.Equal(t, ForwardDerived, derived.Provenance)
	anchor := e.DepthObservations(8)[0]
	assert.Equal(t, anchor.ID, derived.Parent)
	assertTreeConsistent(t, e)
}

func TestIngest_BackPropagationCascade(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 14)
	ingest(t, e, Ping{
		ZTrue:  2,
		T:      1,
		Shears: shears([3]float64{.2, .4, -.2}, [3]float64{.2, .4, -.2}, [3]float64{.4, .8, -.4}),
	})
	ingest(t, e, Ping{
		ZTrue:  6,
		T:      2,
		Shears: shears([3]float64{.1, .2, -.1}, [3]float64{.2, .4, -.2}),
	})

	// Nothing is known before the anchor arrives.
	for _, z := range []float64{2, 4, 6, 8, 10} {
		for _, n := range e.DepthObservations(z) {
			assert.True(t, n.Voc.IsUnknown(), "bin %v", z)
		}
	}

	ingest(t, e, Ping{
		ZTrue:  10,
		T:      3,
		Shears: shears([3]float64{0, 0, 0}),
		Ref:    c(0, 0, 0),
	})

	assertVocs(t, e, 2, c(0.4, 0.8, -0.4))
	assertVocs(t, e, 4, c(0.2, 0.4, -0.2))
	assertVocs(t, e, 6, c(0.2, 0.4, -0.2))
	assertVocs(t, e, 8, c(0, 0, 0), c(0.1, 0.2, -0.1))
	assertVocs(t, e, 10, c(0, 0, 0))
	assertVocs(t, e, 12, c(0, 0, 0))

	assert.Equal(t, BackDerived, e.DepthObservations(2)[0].Provenance)
	assert.Equal(t, Anchored, e.DepthObservations(10)[0].Provenance)

	// An ascending ping finds the anchor at bin 10 and skips it.
	ingest(t, e, Ping{
		ZTrue:     8,
		T:         4,
		Shears:    shears([3]float64{1, 2, -1}),
		Direction: Ascending,
	})
	assertVocs(t, e, 8, c(0, 0, 0), c(0.1, 0.2, -0.1), c(1, 2, -1))
	assertVocs(t, e, 10, c(0, 0, 0))
	assertTreeConsistent(t, e)
}

func TestIngest_BackPropagationAscending(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 14)
	ingest(t, e, Ping{ZTrue: 10, T: 1, Shears: shears([3]float64{2, 0, 0}), Direction: Ascending})
	// bin 10 only holds an unresolved root, so this ping becomes a root too.
	ingest(t, e, Ping{ZTrue: 8, T: 2, Shears: shears([3]float64{1, 0, 0}), Direction: Ascending})
	ingest(t, e, Ping{
		ZTrue:     2,
		T:         3,
		Shears:    shears([3]float64{-1, 0, 0}, [3]float64{0, 0, 0}, [3]float64{1, 0, 0}),
		Ref:       c(1, 0, 0),
		Direction: Ascending,
	})

	assertVocs(t, e, 2, c(1, 0, 0))
	assertVocs(t, e, 4, c(2, 0, 0))
	assertVocs(t, e, 6, c(1, 0, 0))
	assertVocs(t, e, 8, c(0, 0, 0))
	assertVocs(t, e, 10, current.Unknown(), c(-1, 0, 0))
	assertVocs(t, e, 12, current.Unknown())
	assertTreeConsistent(t, e)

	p := e.ComputeAverages()
	assert.InDelta(t, -1.0, p.At(10).East(), 1e-9)
	assert.True(t, p.At(12).IsUnknown())
}

func TestIngest_AnchorResolvesRootAtSameBin(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 20)
	ingest(t, e, Ping{ZTrue: 10, T: 1, Shears: shears([3]float64{2, 0, 0})})
	ingest(t, e, Ping{ZTrue: 10.5, T: 2, Ref: c(1, 0, 0)})

	obs := e.DepthObservations(10)
	require.Len(t, obs, 1)
	assert.Equal(t, Anchored, obs[0].Provenance)
	assertVocs(t, e, 12, c(-1, 0, 0))
	assert.Equal(t, BackDerived, e.DepthObservations(12)[0].Provenance)

	root, ok := e.Node(0)
	require.True(t, ok)
	assert.True(t, root.Voc.Equal(c(1, 0, 0)))
	assert.Equal(t, BackDerived, root.Provenance)
}

func TestIngest_CellSkipping(t *testing.T) {
	t.Parallel()

	four := shears([3]float64{1, 0, 0}, [3]float64{2, 0, 0}, [3]float64{3, 0, 0}, [3]float64{4, 0, 0})

	t.Run("leading", func(t *testing.T) {
		e := newTestEngine(t, 14, func(c *Config) { c.LeadingCellsToSkip = 2 })
		ingest(t, e, Ping{T: 1, Shears: four, Ref: c(0, 0, 0)})
		assertVocs(t, e, 0, c(0, 0, 0))
		assertVocs(t, e, 2)
		assertVocs(t, e, 4)
		assertVocs(t, e, 6, c(-3, 0, 0))
		assertVocs(t, e, 8, c(-4, 0, 0))
	})

	t.Run("trailing", func(t *testing.T) {
		e := newTestEngine(t, 14, func(c *Config) { c.TrailingCellsToSkip = 1 })
		ingest(t, e, Ping{T: 1, Shears: four, Ref: c(0, 0, 0)})
		assertVocs(t, e, 2, c(-1, 0, 0))
		assertVocs(t, e, 4, c(-2, 0, 0))
		assertVocs(t, e, 6, c(-3, 0, 0))
		assertVocs(t, e, 8)
	})

	t.Run("skips exceed samples", func(t *testing.T) {
		e := newTestEngine(t, 14, func(c *Config) {
			c.LeadingCellsToSkip = 3
			c.TrailingCellsToSkip = 3
		})
		ingest(t, e, Ping{T: 1, Shears: four, Ref: c(0, 0, 0)})
		assert.Equal(t, 1, e.Len())
	})
}

func TestIngest_AttitudeProjection(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 20)
	// cos(60°) halves the slant offsets: 10 + 1.455 and 10 + 2.455.
	ingest(t, e, Ping{
		ZTrue:  10,
		Shears: shears([3]float64{0.1, 0, 0}, [3]float64{0.2, 0, 0}),
		Ref:    c(0, 0, 0),
		Pitch:  60,
	})

	assertVocs(t, e, 10, c(0, 0, 0), c(-0.1, 0, 0))
	assertVocs(t, e, 12, c(-0.2, 0, 0))
	assert.InDelta(t, 11.455, e.DepthObservations(10)[1].ZTrue, 1e-9)
	assert.InDelta(t, 12.455, e.DepthObservations(12)[0].ZTrue, 1e-9)
}

func TestIngest_MagnitudeFilters(t *testing.T) {
	t.Parallel()

	ping := Ping{
		Shears: shears([3]float64{1, 0, 0}, [3]float64{2, 0, 0}, [3]float64{3, 0, 0}),
		Ref:    c(0, 0, 0),
	}

	t.Run("current magnitude", func(t *testing.T) {
		e := newTestEngine(t, 20, func(c *Config) { c.CurrentMagnitudeFilter = 2.5 })
		ingest(t, e, ping)
		assertVocs(t, e, 4, c(-2, 0, 0))
		assertVocs(t, e, 6)
		assert.Equal(t, 1, e.Stats().Rejected)
	})

	t.Run("shear magnitude", func(t *testing.T) {
		e := newTestEngine(t, 20, func(c *Config) { c.ShearMagnitudeFilter = 1.5 })
		ingest(t, e, ping)
		assertVocs(t, e, 2, c(-1, 0, 0))
		assertVocs(t, e, 4)
		assertVocs(t, e, 6)
		assert.Equal(t, 2, e.Stats().Rejected)
	})

	t.Run("rejected node stays in the tree", func(t *testing.T) {
		e := newTestEngine(t, 20, func(c *Config) { c.CurrentMagnitudeFilter = 2.5 })
		ingest(t, e, ping)
		assert.Equal(t, 4, e.Len())
		anchor, _ := e.Node(0)
		assert.Len(t, anchor.Children, 3)
	})
}

func TestIngest_OutOfRange(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 20)
	ingest(t, e, Ping{
		ZTrue:  16,
		Shears: shears([3]float64{1, 0, 0}, [3]float64{2, 0, 0}),
		Ref:    c(0, 0, 0),
	})
	// 18.91 fits in bin 18; 20.91 falls off the bottom of the column.
	assertVocs(t, e, 18, c(-1, 0, 0))
	assert.Nil(t, e.DepthObservations(20))
	assert.Nil(t, e.DepthObservations(-1))
	assert.Equal(t, 1, e.Stats().OutOfRange)
	assert.Equal(t, 3, e.Stats().NodesCreated)
	assert.Equal(t, 2, e.Stats().NodesIndexed)
}

func TestBackPropagation_LongChain(t *testing.T) {
	t.Parallel()

	const links = 300
	e := newTestEngine(t, 1000)
	step := shears([3]float64{0.01, 0, 0})

	z := 0.0
	for i := 0; i < links; i++ {
		ingest(t, e, Ping{ZTrue: z, T: float64(i), Shears: step})
		z += 2.91
	}
	ingest(t, e, Ping{ZTrue: z, T: links, Ref: c(0, 0, 0)})

	root, ok := e.Node(0)
	require.True(t, ok)
	assert.True(t, root.Voc.Equal(c(links*0.01, 0, 0)), "root = %v", root.Voc)
	assertVocs(t, e, z, c(0, 0, 0))
	assert.Equal(t, Anchored, e.DepthObservations(z)[0].Provenance)
	assertTreeConsistent(t, e)
}

func TestEngineString(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 8)
	ingest(t, e, Ping{Shears: shears([3]float64{1, 0, 0}), Ref: c(0, 0, 0)})

	s := e.String()
	assert.True(t, strings.HasPrefix(s, "Water Column (depth=8)"))
	assert.Contains(t, s, "btm-trck")
	assert.Contains(t, s, "fwd-prop")
	assert.Equal(t, 5, strings.Count(s, "\n"))
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	d, err := ParseDirection("ascending")
	require.NoError(t, err)
	assert.Equal(t, Ascending, d)
	assert.Equal(t, "descending", Descending.String())

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestIngest_InvalidPingReportsFirstField(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 20)
	for i := 0; i < 10; i++ {
		err := e.Ingest(Ping{ZTrue: math.NaN(), T: math.Inf(1), Roll: math.NaN()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "depth is not finite")
	}
}

func TestIngest_ImplausibleReference(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 20, func(c *Config) { c.CurrentMagnitudeFilter = 0.5 })
	// Unresolved root at 0 m with a child at 2.91 m.
	ingest(t, e, Ping{ZTrue: 0, T: 0, Shears: shears([3]float64{0.1, 0, 0})})
	// A bottom-track value above the filter must not resolve that chain.
	ingest(t, e, Ping{ZTrue: 0, T: 1, Shears: shears([3]float64{0.9, 0, 0}), Ref: c(1, 0, 0)})

	assertVocs(t, e, 0, current.Unknown())
	assertVocs(t, e, 2, current.Unknown(), current.Unknown())
	s := e.Stats()
	assert.Equal(t, 1, s.RejectedRefs)
	assert.Equal(t, 0, s.BackResolved)
	assert.Equal(t, 0, s.Rejected)
	for id := 0; id < e.Len(); id++ {
		n, _ := e.Node(NodeID(id))
		assert.NotEqual(t, Anchored, n.Provenance, "node %d", id)
		assert.True(t, n.Voc.IsUnknown(), "node %d: %v", id, n.Voc)
	}
	assertTreeConsistent(t, e)
}

func TestIngest_ImplausibleAscendingEstimate(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 20, func(c *Config) { c.CurrentMagnitudeFilter = 0.5 })
	ingest(t, e, Ping{ZTrue: 4, T: 0, Ref: c(0, 0, 0)})
	// The first cell (4.91 m) lands on the anchor and would give the ping an
	// estimate of 1.0 m/s. The second cell (6.91 m) finds nothing resolved.
	ingest(t, e, Ping{
		ZTrue:     2,
		T:         1,
		Direction: Ascending,
		Shears:    shears([3]float64{1, 0, 0}, [3]float64{0.1, 0, 0}),
	})

	assertVocs(t, e, 2, current.Unknown())
	assertVocs(t, e, 4, c(0, 0, 0), current.Unknown())
	assertVocs(t, e, 6, current.Unknown())
	assert.Equal(t, 1, e.Stats().RejectedRefs)
	assertTreeConsistent(t, e)
}

func TestIngest_PartialLastBin(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 21)
	require.Len(t, e.Bins(), 11)
	ingest(t, e, Ping{ZTrue: 20.5, T: 0, Ref: c(0.1, 0, 0)})
	ingest(t, e, Ping{ZTrue: 21.5, T: 1, Ref: c(0.2, 0, 0)})

	assertVocs(t, e, 20.5, c(0.1, 0, 0))
	assert.Nil(t, e.DepthObservations(21.5))
	assert.Equal(t, 1, e.Stats().OutOfRange)
	assert.True(t, e.ComputeAverages().At(20).Equal(c(0.1, 0, 0)))
}
