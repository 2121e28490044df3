package manager

import (
	"fmt"
	"slices"

	"github.com/lpu-sim/lpu-sim/sim"
	"github.com/lpu-sim/lpu-sim/sim/pattern"
)

// MergePolicy decides what happens when several routes target one in-port.
type MergePolicy string

const (
	// MergeSum adds the weighted values of every source.
	MergeSum MergePolicy = "sum"
	// MergeReject refuses such connectivity when the manager spawns.
	MergeReject MergePolicy = "reject"
)

// ValidMergePolicies maps accepted merge policy names; "" means MergeSum.
var ValidMergePolicies = map[MergePolicy]bool{
	MergeSum:    true,
	MergeReject: true,
	"":          true,
}

// Route moves one out-port value of LPU From into one in-port of LPU To.
type Route struct {
	From    string
	OutPort int // index into From's Outbound()
	To      string
	InPort  int // index into To's routing buffer
	Weight  float64
	Src     string // port identifiers, for diagnostics
	Dest    string
}

// portTable indexes an LPU's ports by identifier.
type portTable struct {
	lpu   *sim.LPU
	in    map[string]int
	out   map[string]int
	specs map[string]sim.PortSpec
}

func newPortTable(l *sim.LPU) *portTable {
	pt := &portTable{lpu: l, in: make(map[string]int), out: make(map[string]int), specs: make(map[string]sim.PortSpec)}
	for i, p := range l.InPorts() {
		pt.in[p.Port] = i
		pt.specs[p.Port] = p
	}
	for i, p := range l.OutPorts() {
		pt.out[p.Port] = i
		pt.specs[p.Port] = p
	}
	return pt
}

// compileRoutes turns the edges of pat into routes between the LPUs bound to
// its interfaces. owners[i] is the LPU holding interface i's ports. A pattern
// is bound once: its ports record their owners and a second bind fails.
func compileRoutes(pat *pattern.Pattern, owners [2]*portTable) ([]Route, error) {
	if err := pat.Validate(); err != nil {
		return nil, err
	}
	iface := pat.Interface()
	for _, port := range iface.Ports() {
		if a, _ := iface.Get(port); a.LPU != "" {
			return nil, &pattern.RoutingError{
				Op:   "compile",
				Port: port,
				Err:  fmt.Errorf("%w: port owned by LPU %s", pattern.ErrAlreadyConnected, a.LPU),
			}
		}
	}
	var routes []Route
	for _, e := range pat.Edges() {
		sa, _ := iface.Get(e.Src)
		da, _ := iface.Get(e.Dest)
		from, to := owners[sa.Interface], owners[da.Interface]

		outIdx, ok := from.out[e.Src]
		if !ok {
			return nil, portError(from, e.Src, pattern.DirOut)
		}
		inIdx, ok := to.in[e.Dest]
		if !ok {
			return nil, portError(to, e.Dest, pattern.DirIn)
		}
		srcKind, destKind := from.specs[e.Src].Kind, to.specs[e.Dest].Kind
		if srcKind != destKind {
			return nil, &pattern.RoutingError{
				Op:   "compile",
				Port: e.Src + " -> " + e.Dest,
				Err:  fmt.Errorf("%w: %s vs %s", pattern.ErrKindMismatch, srcKind, destKind),
			}
		}
		for _, a := range []pattern.Attr{sa, da} {
			if a.Kind != "" && a.Kind != srcKind {
				return nil, &pattern.RoutingError{
					Op:   "compile",
					Port: e.Src + " -> " + e.Dest,
					Err:  fmt.Errorf("%w: pattern says %s, LPU says %s", pattern.ErrKindMismatch, a.Kind, srcKind),
				}
			}
		}
		routes = append(routes, Route{
			From: from.lpu.ID(), OutPort: outIdx,
			To: to.lpu.ID(), InPort: inIdx,
			Weight: e.Weight, Src: e.Src, Dest: e.Dest,
		})
	}
	for _, port := range iface.Ports() {
		a, _ := iface.Get(port)
		if err := iface.SetOwner(port, owners[a.Interface].lpu.ID()); err != nil {
			return nil, err
		}
	}
	return routes, nil
}

// portError distinguishes a port the LPU does not have from one it has with
// the wrong direction.
func portError(pt *portTable, port string, want pattern.Direction) error {
	if spec, ok := pt.specs[port]; ok {
		return &pattern.RoutingError{
			Op:   "compile",
			Port: port,
			Err:  fmt.Errorf("%w: LPU %s declares it %s, edge needs %s", pattern.ErrDirectionConflict, pt.lpu.ID(), spec.Direction, want),
		}
	}
	return &pattern.RoutingError{
		Op:   "compile",
		Port: port,
		Err:  fmt.Errorf("%w: not a port of LPU %s", pattern.ErrUnknownPort, pt.lpu.ID()),
	}
}

// checkMerge enforces MergeReject over the full route set.
func checkMerge(routes []Route, policy MergePolicy) error {
	if policy != MergeReject {
		return nil
	}
	type key struct {
		lpu  string
		port int
	}
	seen := make(map[key]string)
	for _, r := range routes {
		k := key{r.To, r.InPort}
		if prev, ok := seen[k]; ok {
			return &pattern.RoutingError{
				Op:   "merge",
				Port: r.Dest,
				Err:  fmt.Errorf("%w: %s and %s", pattern.ErrMultipleSources, prev, r.Src),
			}
		}
		seen[k] = r.Src
	}
	return nil
}

// exchangePlan holds the precomputed per-destination routing.
type exchangePlan struct {
	dests  []string           // destination LPUs, sorted
	routes map[string][]Route // by destination, in compile order
	width  map[string]int     // in-port count per destination
	total  int
}

func newExchangePlan(routes []Route, lpus map[string]*sim.LPU) *exchangePlan {
	p := &exchangePlan{routes: make(map[string][]Route), width: make(map[string]int), total: len(routes)}
	for _, r := range routes {
		if _, ok := p.routes[r.To]; !ok {
			p.dests = append(p.dests, r.To)
			p.width[r.To] = len(lpus[r.To].InPorts())
		}
		p.routes[r.To] = append(p.routes[r.To], r)
	}
	slices.Sort(p.dests)
	return p
}

// deliveries computes weight*value sums for every destination from the
// out-port values published by round.
func (p *exchangePlan) deliveries(round int, outbound map[string][]float64) []Delivery {
	out := make([]Delivery, 0, len(p.dests))
	for _, dest := range p.dests {
		vals := make([]float64, p.width[dest])
		for _, r := range p.routes[dest] {
			vals[r.InPort] += r.Weight * outbound[r.From][r.OutPort]
		}
		out = append(out, Delivery{To: dest, Round: round, Values: vals})
	}
	return out
}

func (p *exchangePlan) receives(lpu string) bool {
	_, ok := p.routes[lpu]
	return ok
}
