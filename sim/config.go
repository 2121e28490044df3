package sim

import "math/rand"

// LPUConfig groups the construction parameters of one LPU.
type LPUConfig struct {
	ID               string            // unique LPU id (must be non-empty)
	DT               float64           // round length in seconds (must be > 0)
	Device           int               // placement hint, passed through to logs only
	Parallelism      int               // max components stepped concurrently (0 = all)
	Debug            bool              // log every round at debug level
	Rand             *rand.Rand        // parent of the child streams handed to RandomSource components (optional)
	InputProcessors  []InputProcessor  // external drivers, pulled before every round
	OutputProcessors []OutputProcessor // receive published values after every round
}

// NewLPUConfig returns an LPUConfig with the required fields set.
func NewLPUConfig(id string, dt float64) LPUConfig {
	return LPUConfig{ID: id, DT: dt}
}
