// Package sim provides the Local Processing Unit (LPU), the building block of
// a distributed neural-circuit simulation.
//
// # Reading Guide
//
// Start with these files to understand a single LPU:
//   - component.go: the Component contract (Prepare → Seed → Step) and AccessBuffer
//   - network.go: the Network descriptor an LPU is built from
//   - lpu.go: wiring, the per-round step (pull inputs, step, collect outputs)
//
// # Architecture
//
// The sim package defines the LPU and the component contract; the rest lives
// in sub-packages:
//   - sim/selector/: hierarchical port identifiers and their expansion
//   - sim/pattern/: two-interface connectivity patterns between LPUs
//   - sim/models/: built-in neuron and synapse models
//   - sim/processor/: stock input and output processors
//   - sim/manager/: barrier-synchronized execution of many LPUs
//   - sim/trace/: per-round timing and fault recording
//
// Model packages register their components via init() functions that call
// RegisterModel; NewLPU resolves model names through that registry.
//
// # Timing
//
// Within an LPU, a connection reads the source's output from the previous
// round. Between LPUs, values routed after round N are consumed in round N+1.
// Both rules make every round's result independent of stepping order.
package sim
