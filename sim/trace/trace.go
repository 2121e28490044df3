package trace

// TraceLevel controls the verbosity of round tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelRounds captures every round, exchange and fault.
	TraceLevelRounds TraceLevel = "rounds"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelRounds: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether records should be collected at all.
func (c TraceConfig) Enabled() bool {
	return c.Level != TraceLevelNone && c.Level != ""
}

// SimulationTrace collects round records during a run. It is written only by
// the manager's barrier loop.
type SimulationTrace struct {
	Config    TraceConfig
	Rounds    []RoundRecord
	Exchanges []ExchangeRecord
	Faults    []FaultRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:    config,
		Rounds:    make([]RoundRecord, 0),
		Exchanges: make([]ExchangeRecord, 0),
		Faults:    make([]FaultRecord, 0),
	}
}

// RecordRound appends a round record.
func (st *SimulationTrace) RecordRound(record RoundRecord) {
	st.Rounds = append(st.Rounds, record)
}

// RecordExchange appends an exchange record.
func (st *SimulationTrace) RecordExchange(record ExchangeRecord) {
	st.Exchanges = append(st.Exchanges, record)
}

// RecordFault appends a fault record.
func (st *SimulationTrace) RecordFault(record FaultRecord) {
	st.Faults = append(st.Faults, record)
}
