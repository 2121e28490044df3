// Package processor provides the stock input and output processors an LPU
// can be configured with.
package processor

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/lpu-sim/lpu-sim/sim"
)

// base carries the variable and node list every input processor targets.
type base struct {
	variable string
	nodes    []string
}

func (b base) Variable() string { return b.variable }
func (b base) Nodes() []string  { return slices.Clone(b.nodes) }

func (b base) check(dst []float64) error {
	if len(dst) != len(b.nodes) {
		return fmt.Errorf("input %q: buffer holds %d values for %d nodes", b.variable, len(dst), len(b.nodes))
	}
	return nil
}

// Constant drives every node with the same value every round.
type Constant struct {
	base
	Value float64
}

// NewConstant creates a Constant input.
func NewConstant(variable string, nodes []string, value float64) *Constant {
	return &Constant{base: base{variable: variable, nodes: slices.Clone(nodes)}, Value: value}
}

func (c *Constant) Update(_ int, _ float64, dst []float64) error {
	if err := c.check(dst); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = c.Value
	}
	return nil
}

// Step drives every node with Value while Start <= t < Stop (seconds) and
// with zero otherwise.
type Step struct {
	base
	Value       float64
	Start, Stop float64
}

// NewStep creates a Step input. stop must not precede start.
func NewStep(variable string, nodes []string, value, start, stop float64) (*Step, error) {
	if stop < start {
		return nil, sim.NewConfigError(variable, sim.ErrInvalidValue, "step input stops at %g before it starts at %g", stop, start)
	}
	return &Step{base: base{variable: variable, nodes: slices.Clone(nodes)}, Value: value, Start: start, Stop: stop}, nil
}

func (s *Step) Update(_ int, t float64, dst []float64) error {
	if err := s.check(dst); err != nil {
		return err
	}
	v := 0.0
	if t >= s.Start && t < s.Stop {
		v = s.Value
	}
	for i := range dst {
		dst[i] = v
	}
	return nil
}

// Array replays one row per round. After the last row it holds that row.
type Array struct {
	base
	rows [][]float64
}

// NewArray creates an Array input. Every row must carry one value per node.
func NewArray(variable string, nodes []string, rows [][]float64) (*Array, error) {
	if len(rows) == 0 {
		return nil, sim.NewConfigError(variable, sim.ErrShapeMismatch, "array input has no rows")
	}
	for r, row := range rows {
		if len(row) != len(nodes) {
			return nil, sim.NewConfigError(variable, sim.ErrShapeMismatch,
				"array input row %d has %d values for %d nodes", r, len(row), len(nodes))
		}
	}
	cp := make([][]float64, len(rows))
	for i, row := range rows {
		cp[i] = slices.Clone(row)
	}
	return &Array{base: base{variable: variable, nodes: slices.Clone(nodes)}, rows: cp}, nil
}

func (a *Array) Update(round int, _ float64, dst []float64) error {
	if err := a.check(dst); err != nil {
		return err
	}
	copy(dst, a.rows[min(round, len(a.rows)-1)])
	return nil
}

// Gaussian drives every node with independent normal samples of the given
// mean and standard deviation. Draws come only from the stream it was built
// with, typically PartitionedRNG.ForSubsystem(sim.SubsystemInput(lpuID)).
type Gaussian struct {
	base
	Mean, Std float64
	rng       *rand.Rand
}

// NewGaussian creates a Gaussian input. rng must not be nil.
func NewGaussian(variable string, nodes []string, mean, std float64, rng *rand.Rand) (*Gaussian, error) {
	if rng == nil {
		return nil, sim.NewConfigError(variable, sim.ErrInvalidValue, "gaussian input needs a random stream")
	}
	if std < 0 {
		return nil, sim.NewConfigError(variable, sim.ErrInvalidValue, "negative standard deviation %g", std)
	}
	return &Gaussian{base: base{variable: variable, nodes: slices.Clone(nodes)}, Mean: mean, Std: std, rng: rng}, nil
}

func (g *Gaussian) Update(_ int, _ float64, dst []float64) error {
	if err := g.check(dst); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = g.Mean + g.Std*g.rng.NormFloat64()
	}
	return nil
}
