// Package pattern declares connectivity between the ports of two LPUs.
//
// A Pattern is built over two disjoint selectors, interface 0 and interface 1.
// Every edge joins a port of one interface to a port of the other; the edge's
// source becomes an output port and its destination an input port of the
// pattern's Interface table. Patterns are assembled at configuration time and
// treated as immutable once handed to the manager.
package pattern

import (
	"fmt"

	"github.com/lpu-sim/lpu-sim/sim/selector"
)

// Edge is one directed, weighted connection.
type Edge struct {
	Src    string
	Dest   string
	Weight float64
}

type edgeKey struct{ src, dest string }

// Pattern holds directed weighted edges between two port spaces.
type Pattern struct {
	sels  [2]*selector.Selector
	iface *Interface
	edges []Edge
	index map[edgeKey]int
}

// New creates an empty pattern over two disjoint port selectors.
func New(sel0, sel1 *selector.Selector) (*Pattern, error) {
	if common := selector.Intersection(sel0, sel1); common.Len() > 0 {
		return nil, &RoutingError{Op: "new pattern", Port: common.Identifiers()[0], Err: ErrOverlap}
	}
	return &Pattern{
		sels:  [2]*selector.Selector{sel0, sel1},
		iface: NewInterface(sel0, sel1),
		index: make(map[edgeKey]int),
	}, nil
}

// Interface returns the pattern's port attribute table.
func (p *Pattern) Interface() *Interface { return p.iface }

// Selector returns the selector of interface i (0 or 1).
func (p *Pattern) Selector(i int) *selector.Selector { return p.sels[i] }

// Len returns the number of nonzero edges.
func (p *Pattern) Len() int { return len(p.edges) }

// canonical resolves a single-port selector string to its declared identifier.
func (p *Pattern) canonical(op, port string) (string, error) {
	if p.iface.Has(port) {
		return port, nil
	}
	ids, err := selector.Expand(port)
	if err != nil || len(ids) != 1 || !p.iface.Has(ids[0]) {
		return "", &RoutingError{Op: op, Port: port, Err: ErrUnknownPort}
	}
	return ids[0], nil
}

// Set assigns weight w to the edge src -> dest. A zero weight removes the edge.
// Both ports must be declared and lie in different interfaces.
func (p *Pattern) Set(src, dest string, w float64) error {
	src, err := p.canonical("set edge", src)
	if err != nil {
		return err
	}
	dest, err = p.canonical("set edge", dest)
	if err != nil {
		return err
	}
	sa, da := p.iface.attrs[src], p.iface.attrs[dest]
	if sa.Interface == da.Interface {
		return &RoutingError{Op: "set edge", Port: src + " -> " + dest, Err: ErrSameInterface}
	}
	key := edgeKey{src, dest}
	if w == 0 {
		p.remove(key)
		return nil
	}
	if sa.Direction == DirIn {
		return &RoutingError{Op: "set edge", Port: src, Err: ErrDirectionConflict}
	}
	if da.Direction == DirOut {
		return &RoutingError{Op: "set edge", Port: dest, Err: ErrDirectionConflict}
	}
	sa.Direction, da.Direction = DirOut, DirIn
	if i, ok := p.index[key]; ok {
		p.edges[i].Weight = w
		return nil
	}
	p.index[key] = len(p.edges)
	p.edges = append(p.edges, Edge{Src: src, Dest: dest, Weight: w})
	return nil
}

func (p *Pattern) remove(key edgeKey) {
	i, ok := p.index[key]
	if !ok {
		return
	}
	p.edges = append(p.edges[:i], p.edges[i+1:]...)
	delete(p.index, key)
	for j := i; j < len(p.edges); j++ {
		p.index[edgeKey{p.edges[j].Src, p.edges[j].Dest}] = j
	}
}

// Weight returns the weight of src -> dest and whether the edge exists.
// Ports may be given in any spelling that expands to one declared port.
func (p *Pattern) Weight(src, dest string) (float64, bool) {
	src, err := p.canonical("weight", src)
	if err != nil {
		return 0, false
	}
	dest, err = p.canonical("weight", dest)
	if err != nil {
		return 0, false
	}
	i, ok := p.index[edgeKey{src, dest}]
	if !ok {
		return 0, false
	}
	return p.edges[i].Weight, true
}

// Edges returns the edges in insertion order.
func (p *Pattern) Edges() []Edge {
	out := make([]Edge, len(p.edges))
	copy(out, p.edges)
	return out
}

// Sources returns the source ports feeding dest, in insertion order.
func (p *Pattern) Sources(dest string) []string {
	dest, err := p.canonical("sources", dest)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range p.edges {
		if e.Dest == dest {
			out = append(out, e.Src)
		}
	}
	return out
}

// Connect expands two selector strings and joins them with weight w.
// Equal-sized selectors are paired element-wise; a single source is broadcast
// to every destination and a single destination receives every source.
func (p *Pattern) Connect(srcSel, destSel string, w float64) error {
	srcs, err := selector.Expand(srcSel)
	if err != nil {
		return err
	}
	dests, err := selector.Expand(destSel)
	if err != nil {
		return err
	}
	switch {
	case len(srcs) == len(dests):
		for i := range srcs {
			if err := p.Set(srcs[i], dests[i], w); err != nil {
				return err
			}
		}
	case len(srcs) == 1:
		for _, d := range dests {
			if err := p.Set(srcs[0], d, w); err != nil {
				return err
			}
		}
	case len(dests) == 1:
		for _, s := range srcs {
			if err := p.Set(s, dests[0], w); err != nil {
				return err
			}
		}
	default:
		return &RoutingError{
			Op:  "connect",
			Err: fmt.Errorf("%w: %d sources, %d destinations", ErrShapeMismatch, len(srcs), len(dests)),
		}
	}
	return nil
}

// Validate checks that both ends of every edge carry the same kind once kinds
// have been assigned.
func (p *Pattern) Validate() error {
	for _, e := range p.edges {
		sk, dk := p.iface.attrs[e.Src].Kind, p.iface.attrs[e.Dest].Kind
		if sk != "" && dk != "" && sk != dk {
			return &RoutingError{
				Op:   "validate",
				Port: e.Src + " -> " + e.Dest,
				Err:  fmt.Errorf("%w: %s vs %s", ErrKindMismatch, sk, dk),
			}
		}
	}
	return nil
}
