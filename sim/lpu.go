package sim

import (
	"fmt"
	"math/rand"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lpu-sim/lpu-sim/sim/pattern"
)

type sourceKind int

const (
	sourceLocal    sourceKind = iota // previous round's published output of a node in this LPU
	sourceRouted                     // routing buffer slot written by the manager
	sourceExternal                   // value produced by an input processor
)

// source addresses one value gathered into an access buffer.
type source struct {
	kind     sourceKind
	comp     int    // sourceLocal: component slot
	variable string // sourceLocal: published variable
	index    int    // instance (local), in-port (routed) or processor slot (external)
	input    int    // sourceExternal: input binding
}

type nodeRef struct {
	comp int
	inst int
}

// slot is one component plus the LPU-owned buffers around it.
type slot struct {
	spec      ComponentSpec
	comp      Component
	access    map[string]*AccessBuffer
	gather    map[string][]source
	published map[string][]float64 // outputs as of the end of the last round
}

type inputBinding struct {
	proc   InputProcessor
	values []float64
}

type outputBinding struct {
	proc     OutputProcessor
	variable string
	ids      []string
	refs     []nodeRef
	values   []float64
}

// LPU is a Local Processing Unit: a fixed set of component instances plus the
// routing buffers through which it exchanges values with other LPUs.
//
// Thread-safety: NOT thread-safe. After construction an LPU is owned by a
// single executor goroutine; the manager reaches it only through copies.
type LPU struct {
	cfg      LPUConfig
	net      *Network
	slots    []*slot
	nodes    map[string]nodeRef
	inPorts  []PortSpec
	outPorts []PortSpec
	outRefs  []nodeRef
	routed   []float64 // routing buffer, one value per in-port
	outbound []float64 // published out-port values
	inputs   []*inputBinding
	outputs  []*outputBinding
	round    int
	started  bool
}

// NewLPU builds and prepares every component of net. All configuration
// errors surface here, before any round runs.
func NewLPU(cfg LPUConfig, net *Network) (*LPU, error) {
	if cfg.ID == "" {
		return nil, NewConfigError("lpu", ErrInvalidValue, "empty id")
	}
	if cfg.DT <= 0 {
		return nil, NewConfigError(cfg.ID, ErrInvalidValue, "dt must be > 0, got %g", cfg.DT)
	}
	if net == nil {
		return nil, NewConfigError(cfg.ID, ErrInvalidValue, "nil network")
	}
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("lpu %s: %w", cfg.ID, err)
	}
	l := &LPU{cfg: cfg, net: net, nodes: make(map[string]nodeRef)}
	for ci, spec := range net.Components {
		comp, err := NewComponent(spec.Model)
		if err != nil {
			return nil, fmt.Errorf("lpu %s: %w", cfg.ID, err)
		}
		l.slots = append(l.slots, &slot{
			spec:      spec,
			comp:      comp,
			access:    make(map[string]*AccessBuffer),
			gather:    make(map[string][]source),
			published: make(map[string][]float64),
		})
		for i, id := range spec.IDs {
			l.nodes[id] = nodeRef{comp: ci, inst: i}
		}
	}
	if err := l.bindPorts(); err != nil {
		return nil, err
	}
	if err := l.bindInputs(); err != nil {
		return nil, err
	}
	if err := l.bindGathers(); err != nil {
		return nil, err
	}
	if err := l.bindOutputs(); err != nil {
		return nil, err
	}
	for _, s := range l.slots {
		if rs, ok := s.comp.(RandomSource); ok && cfg.Rand != nil {
			// Child streams, drawn in declaration order, keep parallel steps deterministic.
			rs.SetRand(rand.New(rand.NewSource(cfg.Rand.Int63())))
		}
		if err := s.comp.Prepare(Params(s.spec.Params), s.access, cfg.DT); err != nil {
			return nil, fmt.Errorf("lpu %s: %w", cfg.ID, err)
		}
		if s.comp.Len() != len(s.spec.IDs) {
			return nil, NewConfigError(s.spec.Model, ErrShapeMismatch,
				"component reports %d instances, network declares %d", s.comp.Len(), len(s.spec.IDs))
		}
	}
	return l, nil
}

func (l *LPU) bindPorts() error {
	for _, p := range l.net.Ports {
		ref := l.nodes[p.Node]
		comp := l.slots[ref.comp].comp
		switch p.Direction {
		case pattern.DirIn:
			if !hasVariable(comp.Accesses(), p.Variable) {
				return NewConfigError(p.Port, ErrUnknownVariable, "model %s does not access %q", comp.Model(), p.Variable)
			}
			l.inPorts = append(l.inPorts, p)
		case pattern.DirOut:
			if !hasVariable(comp.Updates(), p.Variable) {
				return NewConfigError(p.Port, ErrUnknownVariable, "model %s does not update %q", comp.Model(), p.Variable)
			}
			l.outPorts = append(l.outPorts, p)
			l.outRefs = append(l.outRefs, ref)
		}
	}
	l.routed = make([]float64, len(l.inPorts))
	l.outbound = make([]float64, len(l.outPorts))
	return nil
}

func (l *LPU) bindInputs() error {
	for _, proc := range l.cfg.InputProcessors {
		for _, id := range proc.Nodes() {
			ref, ok := l.nodes[id]
			if !ok {
				return NewConfigError(id, ErrUnknownNode, "input processor for %q", proc.Variable())
			}
			comp := l.slots[ref.comp].comp
			if !hasVariable(comp.Accesses(), proc.Variable()) {
				return NewConfigError(id, ErrUnknownVariable, "model %s does not access %q", comp.Model(), proc.Variable())
			}
		}
		l.inputs = append(l.inputs, &inputBinding{proc: proc, values: make([]float64, len(proc.Nodes()))})
	}
	return nil
}

// bindGathers resolves, for every accessed variable of every instance, the
// ordered list of values summed into it each round.
func (l *LPU) bindGathers() error {
	perNode := make(map[nodeRef]map[string][]source)
	add := func(ref nodeRef, variable string, src source) {
		if perNode[ref] == nil {
			perNode[ref] = make(map[string][]source)
		}
		perNode[ref][variable] = append(perNode[ref][variable], src)
	}
	for _, c := range l.net.Connections {
		pre, post := l.nodes[c.Pre], l.nodes[c.Post]
		preComp, postComp := l.slots[pre.comp].comp, l.slots[post.comp].comp
		if !hasVariable(preComp.Updates(), c.SourceVariable()) {
			return NewConfigError(c.Pre, ErrUnknownVariable, "model %s does not update %q", preComp.Model(), c.SourceVariable())
		}
		if !hasVariable(postComp.Accesses(), c.Variable) {
			return NewConfigError(c.Post, ErrUnknownVariable, "model %s does not access %q", postComp.Model(), c.Variable)
		}
		add(post, c.Variable, source{kind: sourceLocal, comp: pre.comp, variable: c.SourceVariable(), index: pre.inst})
	}
	for i, p := range l.inPorts {
		add(l.nodes[p.Node], p.Variable, source{kind: sourceRouted, index: i})
	}
	for bi, b := range l.inputs {
		for k, id := range b.proc.Nodes() {
			add(l.nodes[id], b.proc.Variable(), source{kind: sourceExternal, input: bi, index: k})
		}
	}
	for ci, s := range l.slots {
		for _, variable := range s.comp.Accesses() {
			counts := make([]int, len(s.spec.IDs))
			var flat []source
			for inst := range s.spec.IDs {
				srcs := perNode[nodeRef{comp: ci, inst: inst}][variable]
				counts[inst] = len(srcs)
				flat = append(flat, srcs...)
			}
			s.access[variable] = NewAccessBuffer(counts)
			s.gather[variable] = flat
		}
	}
	return nil
}

func (l *LPU) bindOutputs() error {
	for _, proc := range l.cfg.OutputProcessors {
		for _, target := range proc.Targets() {
			b := &outputBinding{proc: proc, variable: target.Variable}
			if len(target.Nodes) == 0 {
				for ci, s := range l.slots {
					if !hasVariable(s.comp.Updates(), target.Variable) {
						continue
					}
					for inst, id := range s.spec.IDs {
						b.ids = append(b.ids, id)
						b.refs = append(b.refs, nodeRef{comp: ci, inst: inst})
					}
				}
			} else {
				for _, id := range target.Nodes {
					ref, ok := l.nodes[id]
					if !ok {
						return NewConfigError(id, ErrUnknownNode, "output target %q", target.Variable)
					}
					if !hasVariable(l.slots[ref.comp].comp.Updates(), target.Variable) {
						return NewConfigError(id, ErrUnknownVariable, "output target %q", target.Variable)
					}
					b.ids = append(b.ids, id)
					b.refs = append(b.refs, ref)
				}
			}
			b.values = make([]float64, len(b.refs))
			l.outputs = append(l.outputs, b)
		}
	}
	return nil
}

// Start seeds every component and captures the initial published snapshot.
// Must be called once, before the first Advance.
func (l *LPU) Start() error {
	if l.started {
		return NewConfigError(l.cfg.ID, ErrInvalidState, "LPU started twice")
	}
	for _, s := range l.slots {
		if err := s.comp.Seed(); err != nil {
			return fmt.Errorf("lpu %s: %w", l.cfg.ID, err)
		}
		for _, v := range s.comp.Updates() {
			s.published[v] = slices.Clone(s.comp.Output(v))
		}
	}
	l.refreshOutbound()
	l.started = true
	logrus.Infof("LPU %s started: %d components, %d in-ports, %d out-ports, device=%d",
		l.cfg.ID, len(l.slots), len(l.inPorts), len(l.outPorts), l.cfg.Device)
	return nil
}

// Advance executes one local round: gather inputs, step every component on
// the same pre-round snapshot, then publish.
func (l *LPU) Advance() error {
	if !l.started {
		return NewConfigError(l.cfg.ID, ErrInvalidState, "Advance before Start")
	}
	t := float64(l.round) * l.cfg.DT
	for _, b := range l.inputs {
		if err := b.proc.Update(l.round, t, b.values); err != nil {
			return fmt.Errorf("lpu %s: input %q round %d: %w", l.cfg.ID, b.proc.Variable(), l.round, err)
		}
	}
	l.gatherAll()
	if err := l.stepAll(); err != nil {
		return err
	}
	for _, s := range l.slots {
		for _, v := range s.comp.Updates() {
			copy(s.published[v], s.comp.Output(v))
		}
	}
	l.refreshOutbound()
	for _, b := range l.outputs {
		for i, ref := range b.refs {
			b.values[i] = l.slots[ref.comp].published[b.variable][ref.inst]
		}
		err := b.proc.Record(Sample{
			LPU: l.cfg.ID, Round: l.round, Time: t, Variable: b.variable, IDs: b.ids, Values: b.values,
		})
		if err != nil {
			return fmt.Errorf("lpu %s: output %q round %d: %w", l.cfg.ID, b.variable, l.round, err)
		}
	}
	if l.cfg.Debug {
		logrus.Debugf("LPU %s round %d done, out-ports=%v", l.cfg.ID, l.round, l.outbound)
	}
	l.round++
	return nil
}

func (l *LPU) gatherAll() {
	for _, s := range l.slots {
		for variable, srcs := range s.gather {
			vals := s.access[variable].Values
			for k, src := range srcs {
				switch src.kind {
				case sourceLocal:
					vals[k] = l.slots[src.comp].published[src.variable][src.index]
				case sourceRouted:
					vals[k] = l.routed[src.index]
				case sourceExternal:
					vals[k] = l.inputs[src.input].values[src.index]
				}
			}
		}
	}
}

// stepAll steps every component concurrently. Components only read the
// gathered access buffers and write their own outputs, so no ordering is needed.
func (l *LPU) stepAll() error {
	limit := l.cfg.Parallelism
	if limit <= 0 || limit > len(l.slots) {
		limit = len(l.slots)
	}
	errs := make([]error, len(l.slots))
	sem := make(chan struct{}, max(limit, 1))
	var wg sync.WaitGroup
	for i, s := range l.slots {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("component %s panicked: %v\n%s", s.spec.Model, r, debug.Stack())
				}
			}()
			if err := s.comp.Step(l.cfg.DT); err != nil {
				errs[i] = fmt.Errorf("component %s: %w", s.spec.Model, err)
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("lpu %s round %d: %w", l.cfg.ID, l.round, err)
		}
	}
	return nil
}

func (l *LPU) refreshOutbound() {
	for i, p := range l.outPorts {
		ref := l.outRefs[i]
		l.outbound[i] = l.slots[ref.comp].published[p.Variable][ref.inst]
	}
}

// Close releases the output processors.
func (l *LPU) Close() error {
	var first error
	closed := make(map[OutputProcessor]bool)
	for _, b := range l.outputs {
		if closed[b.proc] {
			continue
		}
		closed[b.proc] = true
		if err := b.proc.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ID returns the LPU id.
func (l *LPU) ID() string { return l.cfg.ID }

// DT returns the round length in seconds.
func (l *LPU) DT() float64 { return l.cfg.DT }

// Round returns the number of completed rounds.
func (l *LPU) Round() int { return l.round }

// Network returns the descriptor the LPU was built from.
func (l *LPU) Network() *Network { return l.net }

// InPorts returns the in-port specs in routing-buffer order.
func (l *LPU) InPorts() []PortSpec { return slices.Clone(l.inPorts) }

// OutPorts returns the out-port specs in Outbound order.
func (l *LPU) OutPorts() []PortSpec { return slices.Clone(l.outPorts) }

// SetRouted copies values into the routing buffer. They are consumed by the
// next Advance.
func (l *LPU) SetRouted(values []float64) error {
	if len(values) != len(l.routed) {
		return NewConfigError(l.cfg.ID, ErrShapeMismatch, "routed %d values into %d in-ports", len(values), len(l.routed))
	}
	copy(l.routed, values)
	return nil
}

// Routed returns a copy of the routing buffer.
func (l *LPU) Routed() []float64 { return slices.Clone(l.routed) }

// Outbound returns a copy of the out-port values published by the last round.
func (l *LPU) Outbound() []float64 { return slices.Clone(l.outbound) }

// Value returns the published value of a node variable as of the last round.
func (l *LPU) Value(node, variable string) (float64, bool) {
	ref, ok := l.nodes[node]
	if !ok {
		return 0, false
	}
	vals, ok := l.slots[ref.comp].published[variable]
	if !ok {
		return 0, false
	}
	return vals[ref.inst], true
}
