package processor

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lpu-sim/lpu-sim/sim"
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("recorder closed")

// Series is the recorded history of one variable of one LPU.
// Values[k] holds one value per entry of IDs, sampled at Rounds[k].
type Series struct {
	LPU      string      `yaml:"lpu"`
	Variable string      `yaml:"variable"`
	IDs      []string    `yaml:"ids"`
	Rounds   []int       `yaml:"rounds"`
	Times    []float64   `yaml:"times"`
	Values   [][]float64 `yaml:"values"`
}

// Recorder is an OutputProcessor that keeps every sampleInterval-th round of
// its targets in memory.
//
// Thread-safety: safe for concurrent use; one Recorder may be shared by the
// LPUs of a run.
type Recorder struct {
	targets  []sim.OutputTarget
	interval int

	mu     sync.Mutex
	series map[string]*Series
	closed bool
	order  []string
}

// NewRecorder records targets every sampleInterval rounds (values < 1 mean
// every round).
func NewRecorder(targets []sim.OutputTarget, sampleInterval int) *Recorder {
	return &Recorder{
		targets:  slices.Clone(targets),
		interval: max(sampleInterval, 1),
		series:   make(map[string]*Series),
	}
}

func (r *Recorder) Targets() []sim.OutputTarget { return slices.Clone(r.targets) }

// Record implements sim.OutputProcessor. It copies s.IDs and s.Values.
func (r *Recorder) Record(s sim.Sample) error {
	if s.Round%r.interval != 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("lpu %s: %w", s.LPU, ErrClosed)
	}
	key := s.LPU + "\x00" + s.Variable + "\x00" + fmt.Sprint(s.IDs)
	ser, ok := r.series[key]
	if !ok {
		ser = &Series{LPU: s.LPU, Variable: s.Variable, IDs: slices.Clone(s.IDs)}
		r.series[key] = ser
		r.order = append(r.order, key)
	}
	ser.Rounds = append(ser.Rounds, s.Round)
	ser.Times = append(ser.Times, s.Time)
	ser.Values = append(ser.Values, slices.Clone(s.Values))
	return nil
}

// Close implements sim.OutputProcessor. Recorded series stay readable;
// closing twice is harmless.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Series returns copies of every recorded series, sorted by LPU then
// variable; series of one LPU and variable keep first-record order.
func (r *Recorder) Series() []Series {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Series, 0, len(r.order))
	for _, key := range r.order {
		ser := r.series[key]
		cp := Series{
			LPU:      ser.LPU,
			Variable: ser.Variable,
			IDs:      slices.Clone(ser.IDs),
			Rounds:   slices.Clone(ser.Rounds),
			Times:    slices.Clone(ser.Times),
			Values:   make([][]float64, len(ser.Values)),
		}
		for i, v := range ser.Values {
			cp.Values[i] = slices.Clone(v)
		}
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LPU != out[j].LPU {
			return out[i].LPU < out[j].LPU
		}
		return out[i].Variable < out[j].Variable
	})
	return out
}

// Lookup returns the recorded values of one node variable of one LPU, one
// entry per sampled round.
func (r *Recorder) Lookup(lpu, variable, node string) []float64 {
	var out []float64
	for _, ser := range r.Series() {
		if ser.LPU != lpu || ser.Variable != variable {
			continue
		}
		k := slices.Index(ser.IDs, node)
		if k < 0 {
			continue
		}
		for _, row := range ser.Values {
			out = append(out, row[k])
		}
		return out
	}
	return nil
}

// WriteYAML exports every recorded series.
func (r *Recorder) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]Series{"series": r.Series()}); err != nil {
		return fmt.Errorf("encoding recorded series: %w", err)
	}
	return enc.Close()
}
