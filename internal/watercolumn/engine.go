package watercolumn

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/banshee-data/watercolumn/internal/current"
	"github.com/banshee-data/watercolumn/internal/monitoring"
)

// Ping is one DVL observation as handed over by the ingestion loop.
type Ping struct {
	ZTrue     float64           // sensor depth, meters
	T         float64           // ping time, seconds
	Shears    []current.Current // vehicle-to-cell shear, ordered along the beam
	Ref       current.Current   // absolute reference, Unknown when bottom track is unavailable
	Direction Direction
	Pitch     float64 // degrees
	Roll      float64 // degrees
}

func (p Ping) validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"depth", p.ZTrue}, {"time", p.T}, {"pitch", p.Pitch}, {"roll", p.Roll},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidPing, f.name)
		}
	}
	if p.Direction != Descending && p.Direction != Ascending {
		return fmt.Errorf("%w: %v", ErrInvalidPing, p.Direction)
	}
	for i, s := range p.Shears {
		if s.IsUnknown() {
			return fmt.Errorf("%w: shear sample %d is unknown", ErrInvalidPing, i)
		}
		if !s.IsFinite() {
			return fmt.Errorf("%w: shear sample %d is not finite: %v", ErrInvalidPing, i, s)
		}
	}
	if p.Ref.IsKnown() && !p.Ref.IsFinite() {
		return fmt.Errorf("%w: reference is not finite: %v", ErrInvalidPing, p.Ref)
	}
	return nil
}

// Stats counts what the engine did with its input. Rejected and OutOfRange
// nodes still exist in the tree; they are only missing from the bin index.
// RejectedRefs counts ping estimates (bottom-track anchors and ascending
// derivations) that failed the magnitude filters before a node was made.
type Stats struct {
	Pings        int
	NodesCreated int
	NodesIndexed int
	Rejected     int
	OutOfRange   int
	BackResolved int
	RejectedRefs int
}

// Engine reconstructs ocean current estimates over the water column of a
// single dive. Nodes live in an append-only arena; each depth bin keeps the
// chronological list of node IDs indexed there.
//
// Engine is not safe for concurrent use. Pings must be ingested in time
// order; "most recent node in a bin" is only meaningful under that order.
type Engine struct {
	cfg      Config
	nodes    []Node
	bins     [][]NodeID
	averages []current.Current
	stats    Stats
}

// New validates cfg and returns an empty engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.binCount()
	e := &Engine{
		cfg:      cfg,
		bins:     make([][]NodeID, n),
		averages: make([]current.Current, n),
	}
	monitoring.Debugf("watercolumn: %d bins of %.2fm to %.1fm, first cell %.2fm, skip %d/%d, filters voc<=%.2f delta<=%.2f",
		n, cfg.BinWidth, cfg.MaxDepth, cfg.FirstCellDistance, cfg.LeadingCellsToSkip, cfg.TrailingCellsToSkip,
		cfg.CurrentMagnitudeFilter, cfg.ShearMagnitudeFilter)
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats { return e.stats }

// Len returns the number of nodes in the arena.
func (e *Engine) Len() int { return len(e.nodes) }

// Node returns a copy of the node with the given ID.
func (e *Engine) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(e.nodes) {
		return Node{}, false
	}
	return e.snapshot(id), true
}

func (e *Engine) snapshot(id NodeID) Node {
	n := e.nodes[id]
	n.Children = slices.Clone(n.Children)
	return n
}

// Bins returns every bin key from 0 up to MaxDepth.
func (e *Engine) Bins() []float64 {
	keys := make([]float64, len(e.bins))
	for i := range keys {
		keys[i] = float64(i) * e.cfg.BinWidth
	}
	return keys
}

// DepthObservations returns the chronological sequence of nodes indexed at
// the bin containing z. Depths outside the column yield nil.
func (e *Engine) DepthObservations(z float64) []Node {
	b, ok := e.cfg.binOf(z)
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(e.bins[b]))
	for _, id := range e.bins[b] {
		out = append(out, e.snapshot(id))
	}
	return out
}

// Ingest adds one ping to the water column, forward propagating its shear
// list and back propagating through history when it carries an absolute
// reference.
func (e *Engine) Ingest(p Ping) error {
	if err := p.validate(); err != nil {
		return err
	}
	e.stats.Pings++

	if p.Ref.IsKnown() {
		if e.plausible(&Node{Voc: p.Ref}) {
			e.ingestAnchored(p)
			return nil
		}
		e.stats.RejectedRefs++
		monitoring.Debugf("watercolumn: dropping reference %v at %.2fm, t=%.0f", p.Ref, p.ZTrue, p.T)
		p.Ref = current.Unknown()
	}
	if p.Direction == Descending {
		e.ingestDescending(p)
	} else {
		e.ingestAscending(p)
	}
	return nil
}

// ingestAnchored resolves unresolved history reachable from the anchor, then
// records the anchor and propagates forward from it.
func (e *Engine) ingestAnchored(p Ping) {
	if b, ok := e.cfg.binOf(p.ZTrue); ok {
		if id, found := e.popUnresolved(b); found {
			e.backPropagate(id, p.Ref)
		}
	}
	for i, s := range p.Shears {
		b, ok := e.cfg.binOf(e.cfg.projectCell(p.ZTrue, p.Pitch, p.Roll, i))
		if !ok {
			continue
		}
		if id, found := e.popUnresolved(b); found {
			e.backPropagate(id, p.Ref.Subtract(s))
		}
	}

	anchor := e.newPingNode(p, p.Ref, Anchored)
	e.index(anchor)
	e.forwardPropagate(anchor, p.T, p.Direction, p.Shears, -1)
}

// ingestDescending reuses the most recent node at the ping's bin as the
// parent when there is one. Otherwise the ping becomes an unresolved root so
// that a later anchor can resolve the whole chain.
func (e *Engine) ingestDescending(p Ping) {
	if b, ok := e.cfg.binOf(p.ZTrue); ok {
		if last, found := e.latest(b); found {
			e.forwardPropagate(last, p.T, p.Direction, p.Shears, -1)
			return
		}
	}
	e.ingestRoot(p)
}

// ingestAscending looks ahead along the beam for a bin whose most recent node
// is already resolved and derives the ping's own estimate from it. Candidates
// failing the magnitude filters are passed over.
func (e *Engine) ingestAscending(p Ping) {
	for i, s := range p.Shears {
		b, ok := e.cfg.binOf(e.cfg.projectCell(p.ZTrue, p.Pitch, p.Roll, i))
		if !ok {
			continue
		}
		ref, found := e.latest(b)
		if !found || e.nodes[ref].Voc.IsUnknown() {
			continue
		}

		// ref = node - shear, so the stored delta is the negated shear.
		n := Node{
			ZTrue:      p.ZTrue,
			T:          p.T,
			Voc:        e.nodes[ref].Voc.Add(s),
			VocDelta:   s.Negate(),
			Parent:     ref,
			Direction:  p.Direction,
			Pitch:      p.Pitch,
			Roll:       p.Roll,
			Provenance: ForwardDerived,
		}
		if !e.plausible(&n) {
			e.stats.RejectedRefs++
			monitoring.Debugf("watercolumn: ascending estimate %v from bin %d rejected", n.Voc, b)
			continue
		}
		id := e.newNode(n)
		e.index(id)
		e.forwardPropagate(id, p.T, p.Direction, p.Shears, b)
		return
	}
	e.ingestRoot(p)
}

func (e *Engine) ingestRoot(p Ping) {
	root := e.newPingNode(p, current.Unknown(), Unresolved)
	e.index(root)
	e.forwardPropagate(root, p.T, p.Direction, p.Shears, -1)
}

func (e *Engine) newPingNode(p Ping, voc current.Current, prov Provenance) NodeID {
	return e.newNode(Node{
		ZTrue:      p.ZTrue,
		T:          p.T,
		Voc:        voc,
		Parent:     NoNode,
		Direction:  p.Direction,
		Pitch:      p.Pitch,
		Roll:       p.Roll,
		Provenance: prov,
	})
}

// newNode appends n to the arena and links it to its parent.
func (e *Engine) newNode(n Node) NodeID {
	id := NodeID(len(e.nodes))
	n.ID = id
	n.ZBin = e.cfg.binKey(n.ZTrue)
	n.Children = nil
	e.nodes = append(e.nodes, n)
	if n.Parent != NoNode {
		e.nodes[n.Parent].Children = append(e.nodes[n.Parent].Children, id)
	}
	e.stats.NodesCreated++
	return id
}

// index appends id to its bin when it lies inside the column and passes the
// magnitude filters.
func (e *Engine) index(id NodeID) bool {
	n := &e.nodes[id]
	b, ok := e.cfg.binOf(n.ZTrue)
	if !ok {
		e.stats.OutOfRange++
		monitoring.Debugf("watercolumn: node %d at %.2fm outside column [0, %.1f)", id, n.ZTrue, e.cfg.MaxDepth)
		return false
	}
	if !e.plausible(n) {
		e.stats.Rejected++
		return false
	}
	e.bins[b] = append(e.bins[b], id)
	e.stats.NodesIndexed++
	return true
}

func (e *Engine) plausible(n *Node) bool {
	if m := n.VocDelta.Magnitude(); !math.IsNaN(m) && m > e.cfg.ShearMagnitudeFilter {
		return false
	}
	if m := n.Voc.Magnitude(); !math.IsNaN(m) && m > e.cfg.CurrentMagnitudeFilter {
		return false
	}
	return true
}

func (e *Engine) latest(b int) (NodeID, bool) {
	seq := e.bins[b]
	if len(seq) == 0 {
		return NoNode, false
	}
	return seq[len(seq)-1], true
}

// popUnresolved removes and returns the most recent node at bin b if its
// estimate is still unknown.
func (e *Engine) popUnresolved(b int) (NodeID, bool) {
	id, ok := e.latest(b)
	if !ok || e.nodes[id].Voc.IsKnown() {
		return NoNode, false
	}
	e.bins[b] = e.bins[b][:len(e.bins[b])-1]
	return id, true
}

// forwardPropagate creates one child of parent per retained shear sample.
// Children of an unresolved parent stay unresolved but keep their edge so a
// later back propagation can reach them. A child landing in skipBin is not
// created.
func (e *Engine) forwardPropagate(parent NodeID, t float64, dir Direction, shears []current.Current, skipBin int) {
	end := len(shears) - e.cfg.TrailingCellsToSkip
	for i := e.cfg.LeadingCellsToSkip; i < end; i++ {
		z := e.cfg.childDepth(&e.nodes[parent], i)
		if b, ok := e.cfg.binOf(z); ok && skipBin >= 0 && b == skipBin {
			continue
		}

		voc := e.nodes[parent].Voc.Subtract(shears[i])
		prov := Unresolved
		if voc.IsKnown() {
			prov = ForwardDerived
		}
		child := e.newNode(Node{
			ZTrue:      z,
			T:          t,
			Voc:        voc,
			VocDelta:   shears[i],
			Parent:     parent,
			Direction:  dir,
			Provenance: prov,
		})
		e.index(child)
	}
}

// backPropagate resolves id with voc, fills in its unresolved children one
// level down, and walks up through unresolved ancestors. The walk uses an
// explicit stack; the tree is acyclic and only unknown nodes are visited, so
// it terminates.
func (e *Engine) backPropagate(id NodeID, voc current.Current) {
	type pending struct {
		id  NodeID
		voc current.Current
	}
	stack := []pending{{id, voc}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &e.nodes[p.id]
		if n.Voc.IsKnown() || p.voc.IsUnknown() {
			continue
		}
		n.Voc = p.voc
		n.Provenance = BackDerived
		e.stats.BackResolved++

		for _, cid := range n.Children {
			c := &e.nodes[cid]
			if c.Voc.IsUnknown() {
				c.Voc = n.Voc.Subtract(c.VocDelta)
				c.Provenance = BackDerived
				e.stats.BackResolved++
			}
		}

		if n.Parent != NoNode && e.nodes[n.Parent].Voc.IsUnknown() {
			stack = append(stack, pending{n.Parent, n.Voc.Add(n.VocDelta)})
		}
	}
}

// String dumps every bin with its nodes, one bin per line.
func (e *Engine) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Water Column (depth=%.0f)\n", e.cfg.MaxDepth)
	for b, seq := range e.bins {
		fmt.Fprintf(&sb, "|z =%3.0f|", float64(b)*e.cfg.BinWidth)
		for _, id := range seq {
			sb.WriteString(" ")
			sb.WriteString(e.nodes[id].String())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
