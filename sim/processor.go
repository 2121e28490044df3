package sim

// InputProcessor drives an accessed variable of a fixed set of nodes from
// outside the network. The LPU pulls it once per round, before stepping.
type InputProcessor interface {
	Variable() string
	Nodes() []string
	// Update writes one value per node, in Nodes() order, into dst.
	Update(round int, t float64, dst []float64) error
}

// OutputTarget selects a published variable, optionally restricted to a
// subset of nodes. Empty Nodes selects every node publishing Variable.
type OutputTarget struct {
	Variable string
	Nodes    []string
}

// Sample is one round's published values of one target.
// IDs and Values are owned by the LPU and only valid during Record.
type Sample struct {
	LPU      string
	Round    int
	Time     float64
	Variable string
	IDs      []string
	Values   []float64
}

// OutputProcessor receives published values after every round.
type OutputProcessor interface {
	Targets() []OutputTarget
	Record(s Sample) error
	Close() error
}
