package trace

import (
	"testing"
	"time"
)

func TestSummarize_NilAndEmpty_ZeroValues(t *testing.T) {
	for _, st := range []*SimulationTrace{nil, NewSimulationTrace(TraceConfig{Level: TraceLevelRounds})} {
		summary := Summarize(st)
		if summary.Rounds != 0 || summary.Exchanges != 0 || summary.ValuesDelivered != 0 {
			t.Errorf("expected zero counts, got %+v", summary)
		}
		if summary.MeanBarrier != 0 || summary.SlowestLPU != "" {
			t.Errorf("expected zero timings, got %+v", summary)
		}
		if summary.MeanStep == nil {
			t.Error("MeanStep must be non-nil")
		}
	}
}

func TestSummarize_CountsAndTimings(t *testing.T) {
	// GIVEN two rounds over two LPUs with known timings
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelRounds})
	st.RecordRound(RoundRecord{Round: 0, Barrier: 2 * time.Millisecond, Steps: map[string]time.Duration{
		"a": 1 * time.Millisecond, "b": 3 * time.Millisecond,
	}})
	st.RecordRound(RoundRecord{Round: 1, Barrier: 4 * time.Millisecond, Steps: map[string]time.Duration{
		"a": 3 * time.Millisecond, "b": 3 * time.Millisecond,
	}})
	st.RecordExchange(ExchangeRecord{Round: 0, Values: 5, Retries: 2})
	st.RecordExchange(ExchangeRecord{Round: 1, Values: 5})
	st.RecordFault(FaultRecord{Round: 0, LPU: "b", Attempt: 1})
	st.RecordFault(FaultRecord{Round: 0, LPU: "b", Attempt: 2})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts and means match
	if summary.Rounds != 2 || summary.Exchanges != 2 {
		t.Errorf("rounds/exchanges = %d/%d, want 2/2", summary.Rounds, summary.Exchanges)
	}
	if summary.ValuesDelivered != 10 {
		t.Errorf("ValuesDelivered = %d, want 10", summary.ValuesDelivered)
	}
	if summary.Retries != 2 || summary.Faults != 2 || summary.FatalFaults != 0 {
		t.Errorf("retries/faults/fatal = %d/%d/%d", summary.Retries, summary.Faults, summary.FatalFaults)
	}
	if summary.MeanBarrier != 3*time.Millisecond || summary.MaxBarrier != 4*time.Millisecond {
		t.Errorf("barrier mean/max = %v/%v", summary.MeanBarrier, summary.MaxBarrier)
	}
	if summary.MeanStep["a"] != 2*time.Millisecond || summary.MeanStep["b"] != 3*time.Millisecond {
		t.Errorf("MeanStep = %v", summary.MeanStep)
	}
	if summary.SlowestLPU != "b" {
		t.Errorf("SlowestLPU = %q, want b", summary.SlowestLPU)
	}
}
