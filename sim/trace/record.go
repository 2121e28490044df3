// Package trace records what happened at every barrier of a multi-LPU run:
// per-LPU step timings, exchange volumes and communication faults.
// It has no dependency on sim/ or sim/manager/; it stores pure data types.
package trace

import "time"

// RoundRecord captures one barrier-synchronized round.
type RoundRecord struct {
	Round   int
	Steps   map[string]time.Duration // LPU id -> wall time of its Advance
	Barrier time.Duration            // dispatch to last executor reply
}

// ExchangeRecord captures the routing exchange that follows a round.
type ExchangeRecord struct {
	Round      int
	Values     int // routed values, one per nonzero route
	Deliveries int // transport messages, one per destination LPU
	Retries    int
	Elapsed    time.Duration
}

// FaultRecord captures a communication fault or a fatal error.
type FaultRecord struct {
	Round   int
	LPU     string
	Attempt int
	Reason  string
	Fatal   bool
}
