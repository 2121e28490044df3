package sim

import (
	"math/rand"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ComponentState is the lifecycle state of a Component.
type ComponentState int

const (
	Uninitialized ComponentState = iota
	Prepared
	Ready
)

func (s ComponentState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Prepared:
		return "prepared"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Params maps a parameter name to one value per model instance.
type Params map[string][]float64

// AccessBuffer holds the gathered incoming values of one accessed variable for
// every instance of a component, in compressed-row form: instance i owns
// Values[Offsets[i]:Offsets[i+1]]. The LPU rewrites Values every round; the
// component only reads it.
type AccessBuffer struct {
	Offsets []int
	Values  []float64
}

// NewAccessBuffer sizes a buffer from the number of sources of each instance.
func NewAccessBuffer(counts []int) *AccessBuffer {
	offsets := make([]int, len(counts)+1)
	for i, c := range counts {
		offsets[i+1] = offsets[i] + c
	}
	return &AccessBuffer{Offsets: offsets, Values: make([]float64, offsets[len(counts)])}
}

// Len returns the number of instances the buffer serves.
func (a *AccessBuffer) Len() int {
	if len(a.Offsets) == 0 {
		return 0
	}
	return len(a.Offsets) - 1
}

// Reduce writes the sum of every instance's incoming values into dst.
// Multiple connections into one input are always summed.
func (a *AccessBuffer) Reduce(dst []float64) {
	for i := 0; i < a.Len(); i++ {
		dst[i] = floats.Sum(a.Values[a.Offsets[i]:a.Offsets[i+1]])
	}
}

// Component is the uniform contract of a pluggable per-node model. One
// Component value drives every instance of one model kind inside an LPU.
//
// Lifecycle: Uninitialized -> Prepare -> Prepared -> Seed -> Ready -> Step...
type Component interface {
	// Model returns the registered model name.
	Model() string
	// Accesses lists the input variables the model reads.
	Accesses() []string
	// Updates lists the output variables the model publishes.
	Updates() []string
	// Prepare validates parameters and access shapes and sizes internal state.
	Prepare(params Params, access map[string]*AccessBuffer, dt float64) error
	// Seed loads initial conditions. Models without initial conditions still
	// transition to Ready.
	Seed() error
	// Step reduces inputs, advances all inner sub-steps, then publishes outputs.
	Step(dt float64) error
	// Output returns the published values of an updated variable, or nil.
	Output(name string) []float64
	// Len returns the number of instances.
	Len() int
	State() ComponentState
}

// RandomSource is implemented by components that draw random numbers. The LPU
// hands them their stream from the run's PartitionedRNG before Prepare.
type RandomSource interface {
	SetRand(rng *rand.Rand)
}

// ComponentFactory constructs an Uninitialized component.
type ComponentFactory func() Component

var modelRegistry = map[string]ComponentFactory{}

// RegisterModel makes a model constructible by name. Model packages call it
// from init(). Panics on a duplicate name.
func RegisterModel(name string, f ComponentFactory) {
	if _, exists := modelRegistry[name]; exists {
		panic("sim: model " + name + " registered twice")
	}
	modelRegistry[name] = f
}

// NewComponent constructs a registered model.
func NewComponent(name string) (Component, error) {
	f, ok := modelRegistry[name]
	if !ok {
		return nil, NewConfigError(name, ErrUnknownModel, "registered models: %v", Models())
	}
	return f(), nil
}

// IsRegisteredModel reports whether a model name can be constructed.
func IsRegisteredModel(name string) bool {
	_, ok := modelRegistry[name]
	return ok
}

// Models returns the registered model names, sorted.
func Models() []string {
	names := make([]string, 0, len(modelRegistry))
	for name := range modelRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func hasVariable(vars []string, name string) bool {
	return slices.Contains(vars, name)
}
