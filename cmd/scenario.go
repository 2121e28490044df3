package cmd

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lpu-sim/lpu-sim/sim"
	"github.com/lpu-sim/lpu-sim/sim/manager"
	"github.com/lpu-sim/lpu-sim/sim/pattern"
	"github.com/lpu-sim/lpu-sim/sim/processor"
)

// Scenario is the YAML description of a multi-LPU run.
// All sections must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	DT             float64       `yaml:"dt"`
	Steps          int           `yaml:"steps"`
	Seed           int64         `yaml:"seed"`
	Merge          string        `yaml:"merge"`
	RecordInterval int           `yaml:"record_interval"`
	LPUs           []LPUSpec     `yaml:"lpus"`
	Patterns       []PatternSpec `yaml:"patterns"`
}

// LPUSpec declares one LPU, its network and its processors.
type LPUSpec struct {
	ID          string       `yaml:"id"`
	Device      int          `yaml:"device"`
	Parallelism int          `yaml:"parallelism"`
	Network     sim.Network  `yaml:"network"`
	Inputs      []InputSpec  `yaml:"inputs"`
	Record      []RecordSpec `yaml:"record"`
}

// InputSpec declares one input processor. Type selects which fields apply:
// constant (value), step (value, start, stop), array (rows) or gaussian
// (mean, std).
type InputSpec struct {
	Type     string      `yaml:"type"`
	Variable string      `yaml:"variable"`
	Nodes    []string    `yaml:"nodes"`
	Value    float64     `yaml:"value"`
	Start    float64     `yaml:"start"`
	Stop     float64     `yaml:"stop"`
	Rows     [][]float64 `yaml:"rows"`
	Mean     float64     `yaml:"mean"`
	Std      float64     `yaml:"std"`
}

// RecordSpec selects a published variable to record; empty Nodes records
// every node publishing it.
type RecordSpec struct {
	Variable string   `yaml:"variable"`
	Nodes    []string `yaml:"nodes"`
}

// PatternSpec connects two LPUs. Interface 0 holds every port of From,
// interface 1 every port of To; edges may run in either direction.
type PatternSpec struct {
	From  string     `yaml:"from"`
	To    string     `yaml:"to"`
	Edges []EdgeSpec `yaml:"edges"`
}

// EdgeSpec pairs two port selectors one-to-one, by broadcast or by fan-in.
type EdgeSpec struct {
	Src    string  `yaml:"src"`
	Dest   string  `yaml:"dest"`
	Weight float64 `yaml:"weight"`
}

// validInputTypes maps accepted input processor types.
var validInputTypes = map[string]bool{
	"constant": true, "step": true, "array": true, "gaussian": true,
}

// LoadScenario reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &sc, nil
}

// Validate checks the fields the loader relies on. Network-level checks run
// when the LPUs are built.
func (s *Scenario) Validate() error {
	if s.DT <= 0 {
		return fmt.Errorf("dt must be positive, got %g", s.DT)
	}
	if s.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", s.Steps)
	}
	if s.RecordInterval < 0 {
		return fmt.Errorf("record_interval must be non-negative, got %d", s.RecordInterval)
	}
	if !manager.ValidMergePolicies[manager.MergePolicy(s.Merge)] {
		return fmt.Errorf("unknown merge policy %q; valid: sum, reject", s.Merge)
	}
	if len(s.LPUs) == 0 {
		return fmt.Errorf("at least one LPU required")
	}
	ids := make(map[string]bool)
	for i, l := range s.LPUs {
		if l.ID == "" {
			return fmt.Errorf("lpus[%d]: empty id", i)
		}
		if ids[l.ID] {
			return fmt.Errorf("lpus[%d]: duplicate id %q", i, l.ID)
		}
		ids[l.ID] = true
		for j, in := range l.Inputs {
			if !validInputTypes[in.Type] {
				return fmt.Errorf("lpu %s inputs[%d]: unknown type %q; valid: constant, step, array, gaussian", l.ID, j, in.Type)
			}
			if in.Variable == "" || len(in.Nodes) == 0 {
				return fmt.Errorf("lpu %s inputs[%d]: variable and nodes are required", l.ID, j)
			}
		}
		for j, r := range l.Record {
			if r.Variable == "" {
				return fmt.Errorf("lpu %s record[%d]: variable is required", l.ID, j)
			}
		}
	}
	for i, p := range s.Patterns {
		if !ids[p.From] || !ids[p.To] {
			return fmt.Errorf("patterns[%d]: unknown LPU in %s -> %s", i, p.From, p.To)
		}
		if p.From == p.To {
			return fmt.Errorf("patterns[%d]: an LPU cannot be connected to itself", i)
		}
	}
	return nil
}

// Build constructs every LPU and pattern of the scenario and registers them
// with a new Manager. Per-LPU random streams come from one PartitionedRNG
// keyed by s.Seed. The returned Recorder receives every record target.
func (s *Scenario) Build(cfg manager.Config) (*manager.Manager, *processor.Recorder, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	cfg.Merge = manager.MergePolicy(s.Merge)
	m, err := manager.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(s.Seed))
	rec := processor.NewRecorder(nil, s.RecordInterval)

	nets := make(map[string]*sim.Network, len(s.LPUs))
	for _, spec := range s.LPUs {
		lcfg := sim.NewLPUConfig(spec.ID, s.DT)
		lcfg.Device = spec.Device
		lcfg.Parallelism = spec.Parallelism
		lcfg.Debug = cfg.Debug
		lcfg.Rand = rng.ForLPU(spec.ID)
		for j, in := range spec.Inputs {
			proc, err := buildInput(in, rng.ForSubsystem(sim.SubsystemInput(spec.ID)))
			if err != nil {
				return nil, nil, fmt.Errorf("lpu %s inputs[%d]: %w", spec.ID, j, err)
			}
			lcfg.InputProcessors = append(lcfg.InputProcessors, proc)
		}
		if len(spec.Record) > 0 {
			lcfg.OutputProcessors = []sim.OutputProcessor{&recordView{rec: rec, targets: recordTargets(spec.Record)}}
		}
		net := spec.Network
		l, err := sim.NewLPU(lcfg, &net)
		if err != nil {
			return nil, nil, err
		}
		if err := m.Add(l); err != nil {
			return nil, nil, err
		}
		nets[spec.ID] = &net
	}
	for i, p := range s.Patterns {
		from, err := nets[p.From].PortSelector("", "")
		if err != nil {
			return nil, nil, fmt.Errorf("patterns[%d]: %w", i, err)
		}
		to, err := nets[p.To].PortSelector("", "")
		if err != nil {
			return nil, nil, fmt.Errorf("patterns[%d]: %w", i, err)
		}
		pat, err := pattern.New(from, to)
		if err != nil {
			return nil, nil, fmt.Errorf("patterns[%d]: %w", i, err)
		}
		for j, e := range p.Edges {
			if err := pat.Connect(e.Src, e.Dest, e.Weight); err != nil {
				return nil, nil, fmt.Errorf("patterns[%d] edges[%d]: %w", i, j, err)
			}
		}
		if err := m.Connect(p.From, p.To, pat, 0, 1); err != nil {
			return nil, nil, fmt.Errorf("patterns[%d]: %w", i, err)
		}
	}
	return m, rec, nil
}

func buildInput(in InputSpec, rng *rand.Rand) (sim.InputProcessor, error) {
	switch in.Type {
	case "constant":
		return processor.NewConstant(in.Variable, in.Nodes, in.Value), nil
	case "step":
		return processor.NewStep(in.Variable, in.Nodes, in.Value, in.Start, in.Stop)
	case "array":
		return processor.NewArray(in.Variable, in.Nodes, in.Rows)
	case "gaussian":
		return processor.NewGaussian(in.Variable, in.Nodes, in.Mean, in.Std, rng)
	default:
		return nil, fmt.Errorf("unknown input type %q", in.Type)
	}
}

func recordTargets(specs []RecordSpec) []sim.OutputTarget {
	out := make([]sim.OutputTarget, len(specs))
	for i, r := range specs {
		out[i] = sim.OutputTarget{Variable: r.Variable, Nodes: r.Nodes}
	}
	return out
}

// recordView gives each LPU its own targets on a shared Recorder.
type recordView struct {
	rec     *processor.Recorder
	targets []sim.OutputTarget
}

func (v *recordView) Targets() []sim.OutputTarget { return v.targets }
func (v *recordView) Record(s sim.Sample) error   { return v.rec.Record(s) }
func (v *recordView) Close() error                { return nil }
