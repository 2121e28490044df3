package trace

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Rounds          int
	Exchanges       int
	ValuesDelivered int
	Retries         int
	Faults          int
	FatalFaults     int
	MeanBarrier     time.Duration
	MaxBarrier      time.Duration
	MeanStep        map[string]time.Duration // LPU id -> mean Advance time
	SlowestLPU      string                   // highest mean step time; ties broken by id
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		MeanStep: make(map[string]time.Duration),
	}
	if st == nil {
		return summary
	}

	summary.Rounds = len(st.Rounds)
	summary.Exchanges = len(st.Exchanges)
	for _, e := range st.Exchanges {
		summary.ValuesDelivered += e.Values
		summary.Retries += e.Retries
	}
	summary.Faults = len(st.Faults)
	for _, f := range st.Faults {
		if f.Fatal {
			summary.FatalFaults++
		}
	}

	if len(st.Rounds) > 0 {
		barriers := make([]float64, len(st.Rounds))
		steps := make(map[string][]float64)
		for i, r := range st.Rounds {
			barriers[i] = float64(r.Barrier)
			for id, d := range r.Steps {
				steps[id] = append(steps[id], float64(d))
			}
		}
		summary.MeanBarrier = time.Duration(stat.Mean(barriers, nil))
		summary.MaxBarrier = time.Duration(floats.Max(barriers))

		ids := make([]string, 0, len(steps))
		for id := range steps {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			mean := time.Duration(stat.Mean(steps[id], nil))
			summary.MeanStep[id] = mean
			if summary.SlowestLPU == "" || mean > summary.MeanStep[summary.SlowestLPU] {
				summary.SlowestLPU = id
			}
		}
	}

	return summary
}
