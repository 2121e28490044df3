// Package models provides the built-in neuron and synapse models.
//
// Every model is a Kernel, a declaration of its variables plus a pure update
// rule, wrapped by Base, which implements sim.Component: parameter and shape
// validation, sub-step sizing, input reduction, initial conditions and
// publish-after-settle. Models register themselves with sim.RegisterModel in
// register.go; importing this package for side effects makes them available
// to sim.NewLPU.
package models

import (
	"math"
	"math/rand"
	"slices"

	"github.com/lpu-sim/lpu-sim/sim"
)

// ParamSpec declares one per-instance parameter. Required parameters have no
// default.
type ParamSpec struct {
	Name     string
	Default  float64
	Required bool
}

// StateSpec declares one persistent state variable. When the parameter named
// by SeedFrom is supplied, Seed copies it into the state (and into an output
// of the same name).
type StateSpec struct {
	Name     string
	Init     float64
	SeedFrom string
}

// Frame is the working set handed to Kernel.Run. Slices are indexed by
// instance. Out is scratch space: Base publishes it only after Run returns.
type Frame struct {
	N     int
	Steps int     // inner sub-steps this round
	DDT   float64 // sub-step length in seconds
	In    map[string][]float64
	P     map[string][]float64
	S     map[string][]float64
	Out   map[string][]float64
	Rand  *rand.Rand
}

// Kernel is the model-specific part of a component.
type Kernel interface {
	Name() string
	Accesses() []string
	Updates() []string
	Params() []ParamSpec
	States() []StateSpec
	// MaxStep is the largest stable sub-step length in seconds.
	MaxStep() float64
	// Run advances every instance through f.Steps sub-steps and writes f.Out.
	Run(f *Frame)
}

// Stochastic is implemented by kernels whose listed parameters, when nonzero,
// make them draw from the random stream. Such instances need SetRand before
// Prepare.
type Stochastic interface {
	RandomParams() []string
}

// Base implements sim.Component around a Kernel.
type Base struct {
	kernel    Kernel
	state     sim.ComponentState
	n         int
	dt        float64
	params    sim.Params
	access    map[string]*sim.AccessBuffer
	frame     *Frame
	published map[string][]float64
	rng       *rand.Rand
}

// NewBase wraps a kernel in an Uninitialized component.
func NewBase(k Kernel) *Base {
	return &Base{kernel: k}
}

// SubSteps returns the number of fixed-size inner sub-steps for a round of
// length dt and the sub-step length, never exceeding maxStep.
func SubSteps(dt, maxStep float64) (int, float64) {
	if maxStep <= 0 || dt <= maxStep {
		return 1, dt
	}
	// Tolerate representation error in e.g. 1e-4/1e-5.
	steps := int(math.Floor(dt/maxStep + 1e-9))
	return max(1, steps), maxStep
}

func (b *Base) Model() string { return b.kernel.Name() }

func (b *Base) Accesses() []string { return b.kernel.Accesses() }

func (b *Base) Updates() []string { return b.kernel.Updates() }

func (b *Base) Len() int { return b.n }

func (b *Base) State() sim.ComponentState { return b.state }

// SetRand implements sim.RandomSource.
func (b *Base) SetRand(rng *rand.Rand) { b.rng = rng }

// Kernel returns the wrapped kernel.
func (b *Base) Kernel() Kernel { return b.kernel }

// SubStepCount returns the prepared number of inner sub-steps per round.
func (b *Base) SubStepCount() int {
	if b.frame == nil {
		return 0
	}
	return b.frame.Steps
}

// Prepare implements sim.Component.
func (b *Base) Prepare(params sim.Params, access map[string]*sim.AccessBuffer, dt float64) error {
	name := b.kernel.Name()
	if b.state != sim.Uninitialized {
		return sim.NewConfigError(name, sim.ErrInvalidState, "Prepare in state %s", b.state)
	}
	if dt <= 0 {
		return sim.NewConfigError(name, sim.ErrInvalidValue, "dt must be > 0, got %g", dt)
	}
	n, err := b.instanceCount(params, access)
	if err != nil {
		return err
	}
	resolved := make(sim.Params)
	for _, ps := range b.kernel.Params() {
		vals, ok := params[ps.Name]
		switch {
		case ok && len(vals) != n:
			return sim.NewConfigError(name, sim.ErrShapeMismatch,
				"parameter %q has %d values for %d instances", ps.Name, len(vals), n)
		case ok:
			resolved[ps.Name] = slices.Clone(vals)
		case ps.Required:
			return sim.NewConfigError(name, sim.ErrMissingParam, "%q", ps.Name)
		default:
			resolved[ps.Name] = filled(n, ps.Default)
		}
	}
	for _, st := range b.kernel.States() {
		if st.SeedFrom == "" {
			continue
		}
		if vals, ok := params[st.SeedFrom]; ok {
			if len(vals) != n {
				return sim.NewConfigError(name, sim.ErrShapeMismatch,
					"initial condition %q has %d values for %d instances", st.SeedFrom, len(vals), n)
			}
			resolved[st.SeedFrom] = slices.Clone(vals)
		}
	}
	for _, a := range b.kernel.Accesses() {
		buf, ok := access[a]
		if !ok {
			return sim.NewConfigError(name, sim.ErrShapeMismatch, "no access buffer for %q", a)
		}
		if buf.Len() != n {
			return sim.NewConfigError(name, sim.ErrShapeMismatch,
				"access %q serves %d instances, want %d", a, buf.Len(), n)
		}
	}
	if err := b.checkRand(resolved); err != nil {
		return err
	}
	steps, ddt := SubSteps(dt, b.kernel.MaxStep())
	b.n, b.dt, b.params, b.access = n, dt, resolved, access
	b.frame = &Frame{
		N:     n,
		Steps: steps,
		DDT:   ddt,
		In:    make(map[string][]float64),
		P:     resolved,
		S:     make(map[string][]float64),
		Out:   make(map[string][]float64),
		Rand:  b.rng,
	}
	for _, a := range b.kernel.Accesses() {
		b.frame.In[a] = make([]float64, n)
	}
	for _, st := range b.kernel.States() {
		b.frame.S[st.Name] = filled(n, st.Init)
	}
	b.published = make(map[string][]float64)
	for _, u := range b.kernel.Updates() {
		b.frame.Out[u] = make([]float64, n)
		b.published[u] = make([]float64, n)
	}
	b.state = sim.Prepared
	return nil
}

// checkRand rejects a stochastic configuration that has no stream to draw from.
func (b *Base) checkRand(params sim.Params) error {
	st, ok := b.kernel.(Stochastic)
	if !ok || b.rng != nil {
		return nil
	}
	for _, name := range st.RandomParams() {
		for i, v := range params[name] {
			if v != 0 {
				return sim.NewConfigError(b.kernel.Name(), sim.ErrInvalidValue,
					"parameter %q is %g for instance %d but no random stream was supplied", name, v, i)
			}
		}
	}
	return nil
}

// instanceCount derives the number of instances from the first declared
// parameter present, falling back to the access buffers.
func (b *Base) instanceCount(params sim.Params, access map[string]*sim.AccessBuffer) (int, error) {
	for _, ps := range b.kernel.Params() {
		if vals, ok := params[ps.Name]; ok {
			return len(vals), nil
		}
	}
	for _, a := range b.kernel.Accesses() {
		if buf, ok := access[a]; ok {
			return buf.Len(), nil
		}
	}
	for _, vals := range params {
		return len(vals), nil
	}
	return 0, sim.NewConfigError(b.kernel.Name(), sim.ErrShapeMismatch, "cannot derive instance count")
}

// Seed implements sim.Component.
func (b *Base) Seed() error {
	if b.state != sim.Prepared {
		return sim.NewConfigError(b.kernel.Name(), sim.ErrInvalidState, "Seed in state %s", b.state)
	}
	for _, st := range b.kernel.States() {
		if initial, ok := b.params[st.SeedFrom]; ok && st.SeedFrom != "" {
			copy(b.frame.S[st.Name], initial)
		}
		// A state published under its own name starts out visible.
		if out, ok := b.published[st.Name]; ok {
			copy(out, b.frame.S[st.Name])
			copy(b.frame.Out[st.Name], b.frame.S[st.Name])
		}
	}
	b.frame.Rand = b.rng
	b.state = sim.Ready
	return nil
}

// Step implements sim.Component.
func (b *Base) Step(dt float64) error {
	if b.state != sim.Ready {
		return sim.NewConfigError(b.kernel.Name(), sim.ErrInvalidState, "Step in state %s", b.state)
	}
	if dt != b.dt {
		return sim.NewConfigError(b.kernel.Name(), sim.ErrInvalidValue, "Step dt %g differs from prepared dt %g", dt, b.dt)
	}
	for name, in := range b.frame.In {
		b.access[name].Reduce(in)
	}
	b.kernel.Run(b.frame)
	for name, out := range b.frame.Out {
		copy(b.published[name], out)
	}
	return nil
}

// Output implements sim.Component.
func (b *Base) Output(name string) []float64 {
	return b.published[name]
}

// StateValues returns a copy of a persistent state variable.
func (b *Base) StateValues(name string) []float64 {
	if b.frame == nil {
		return nil
	}
	return slices.Clone(b.frame.S[name])
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
