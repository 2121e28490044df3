package processor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpu-sim/lpu-sim/sim"
	_ "github.com/lpu-sim/lpu-sim/sim/models"
	"github.com/lpu-sim/lpu-sim/sim/processor"
)

func TestProcessors_DriveAndRecordAnLPU(t *testing.T) {
	// GIVEN a relay chain r0 -> r1 driven by a step input on r0
	net := &sim.Network{
		Components: []sim.ComponentSpec{{Model: "Relay", IDs: []string{"r0", "r1"}}},
		Connections: []sim.Connection{
			{Pre: "r0", Post: "r1", Variable: "I", Source: "V"},
		},
	}
	in, err := processor.NewStep("I", []string{"r0"}, 2, 0, 2e-4)
	require.NoError(t, err)
	rec := processor.NewRecorder([]sim.OutputTarget{{Variable: "V"}}, 1)

	cfg := sim.NewLPUConfig("lpu0", 1e-4)
	cfg.InputProcessors = []sim.InputProcessor{in}
	cfg.OutputProcessors = []sim.OutputProcessor{rec}
	l, err := sim.NewLPU(cfg, net)
	require.NoError(t, err)
	require.NoError(t, l.Start())

	// WHEN four rounds run
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Advance())
	}
	require.NoError(t, l.Close())

	// THEN r0 follows the input and r1 lags it by one round
	assert.Equal(t, []float64{2, 2, 0, 0}, rec.Lookup("lpu0", "V", "r0"))
	assert.Equal(t, []float64{0, 2, 2, 0}, rec.Lookup("lpu0", "V", "r1"))
}
