package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical trajectories.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// SubsystemLPU returns the subsystem name of the LPU with the given id.
// Each LPU draws only from its own stream, so adding or removing another
// LPU never perturbs its trajectory.
func SubsystemLPU(id string) string {
	return "lpu_" + id
}

// SubsystemInput returns the subsystem name of the stream used by the
// stochastic input processors of the LPU with the given id.
func SubsystemInput(id string) string {
	return "input_" + id
}

// PartitionedRNG is the explicit per-run random handle. It hands out
// deterministic, isolated *rand.Rand streams per subsystem.
//
// Derivation: masterSeed XOR fnv1a64(subsystemName).
//
// Thread-safety: NOT thread-safe. Streams are derived during setup from a
// single goroutine; each derived *rand.Rand is then owned by one LPU.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// ForLPU is shorthand for ForSubsystem(SubsystemLPU(id)).
func (p *PartitionedRNG) ForLPU(id string) *rand.Rand {
	return p.ForSubsystem(SubsystemLPU(id))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
