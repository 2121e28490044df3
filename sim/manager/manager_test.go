package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpu-sim/lpu-sim/sim"
	"github.com/lpu-sim/lpu-sim/sim/pattern"
	"github.com/lpu-sim/lpu-sim/sim/processor"
	"github.com/lpu-sim/lpu-sim/sim/selector"
	"github.com/lpu-sim/lpu-sim/sim/trace"
)

func TestManager_OneRoundLatencyBetweenLPUs(t *testing.T) {
	// GIVEN a Wilson neuron under constant input 40 routed with weight 1 into a relay
	const rounds = 1000
	rec := processor.NewRecorder([]sim.OutputTarget{{Variable: "V"}}, 1)
	src := constantSource(t, "lpu0", "Wilson", 40, rec)
	dest := relaySink(t, "lpu1", rec)

	cfg := DefaultConfig()
	cfg.Trace = trace.TraceConfig{Level: trace.TraceLevelRounds}
	m, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Add(src))
	require.NoError(t, m.Add(dest))
	require.NoError(t, m.Connect("lpu0", "lpu1", link(t, "lpu0", "lpu1", 1), 0, 1))

	// WHEN the run completes
	require.NoError(t, m.Run(context.Background(), rounds))

	// THEN the relay reproduces the source exactly, one round late
	srcV := rec.Lookup("lpu0", "V", "n0")
	destV := rec.Lookup("lpu1", "V", "r0")
	require.Len(t, srcV, rounds)
	require.Len(t, destV, rounds)
	assert.Equal(t, 0.0, destV[0], "nothing is routed before the first exchange")
	for r := 0; r+1 < rounds; r++ {
		require.Equal(t, srcV[r], destV[r+1], "round %d", r)
	}
	assert.Equal(t, []float64{srcV[rounds-1]}, dest.Routed(), "final exchange lands in the routing buffer")

	// AND exactly one exchange per round moved one value per route
	stats := m.Stats()
	assert.Equal(t, Stats{Rounds: rounds, Exchanges: rounds, ValuesDelivered: rounds, Deliveries: rounds}, stats)
	summary := trace.Summarize(m.Trace())
	assert.Equal(t, rounds, summary.Rounds)
	assert.Equal(t, rounds, summary.ValuesDelivered)
	assert.Contains(t, summary.MeanStep, "lpu0")
}

func TestManager_UnconnectedLPUsMatchIsolatedRuns(t *testing.T) {
	const rounds = 300
	build := func(rng *sim.PartitionedRNG, id string, rec *processor.Recorder) *sim.LPU {
		net := &sim.Network{Components: []sim.ComponentSpec{{
			Model: "LeakyIAF", IDs: []string{"n0", "n1"},
			Params: map[string][]float64{"noise": {0.5, 0.5}},
		}}}
		cfg := sim.NewLPUConfig(id, 1e-4)
		cfg.Rand = rng.ForLPU(id)
		cfg.InputProcessors = []sim.InputProcessor{processor.NewConstant("I", []string{"n0", "n1"}, 1.8)}
		cfg.OutputProcessors = []sim.OutputProcessor{rec}
		l, err := sim.NewLPU(cfg, net)
		require.NoError(t, err)
		return l
	}

	// GIVEN two LPUs managed together with an empty pattern between them
	together := processor.NewRecorder([]sim.OutputTarget{{Variable: "V"}}, 1)
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(99))
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, m.Add(build(rng, "a", together)))
	require.NoError(t, m.Add(build(rng, "b", together)))
	empty, err := pattern.New(selector.MustParse("/a/out[0]"), selector.MustParse("/b/in[0]"))
	require.NoError(t, err)
	require.NoError(t, m.Connect("a", "b", empty, 0, 1))
	require.NoError(t, m.Run(context.Background(), rounds))
	assert.Empty(t, m.Routes())

	// WHEN each LPU is run alone from a fresh handle with the same seed
	for _, id := range []string{"a", "b"} {
		alone := processor.NewRecorder([]sim.OutputTarget{{Variable: "V"}}, 1)
		l := build(sim.NewPartitionedRNG(sim.NewSimulationKey(99)), id, alone)
		require.NoError(t, l.Start())
		for i := 0; i < rounds; i++ {
			require.NoError(t, l.Advance())
		}

		// THEN the trajectories are identical
		for _, node := range []string{"n0", "n1"} {
			assert.Equal(t, alone.Lookup(id, "V", node), together.Lookup(id, "V", node), "%s/%s", id, node)
		}
	}
}

func TestManager_FanInIsSummed(t *testing.T) {
	// GIVEN two relays publishing 2 and 3, weighted 0.5 and 2, into one in-port
	a := constantSource(t, "a", "Relay", 2)
	b := constantSource(t, "b", "Relay", 3)
	c := relaySink(t, "c")

	m, err := New(DefaultConfig())
	require.NoError(t, err)
	for _, l := range []*sim.LPU{a, b, c} {
		require.NoError(t, m.Add(l))
	}
	require.NoError(t, m.Connect("a", "c", link(t, "a", "c", 0.5), 0, 1))
	require.NoError(t, m.Connect("c", "b", link(t, "b", "c", 2), 1, 0))

	// WHEN three rounds run
	require.NoError(t, m.Run(context.Background(), 3))

	// THEN the destination received the weighted sum
	assert.Equal(t, []float64{7}, c.Routed())
	v, ok := c.Value("r0", "V")
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, 6, m.Stats().ValuesDelivered, "two routes, three exchanges")
	assert.Equal(t, 3, m.Stats().Deliveries, "one message per destination per exchange")
}

func TestManager_MergeRejectRefusesFanIn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge = MergeReject
	m, err := New(cfg)
	require.NoError(t, err)
	for _, l := range []*sim.LPU{constantSource(t, "a", "Relay", 1), constantSource(t, "b", "Relay", 1), relaySink(t, "c")} {
		require.NoError(t, m.Add(l))
	}
	require.NoError(t, m.Connect("a", "c", link(t, "a", "c", 1), 0, 1))
	require.NoError(t, m.Connect("b", "c", link(t, "b", "c", 1), 0, 1))

	err = m.Spawn(context.Background())
	assert.ErrorIs(t, err, pattern.ErrRouting)
	assert.ErrorIs(t, err, pattern.ErrMultipleSources)
}

func TestManager_ConnectErrors(t *testing.T) {
	newManager := func() *Manager {
		m, err := New(DefaultConfig())
		require.NoError(t, err)
		require.NoError(t, m.Add(constantSource(t, "a", "Relay", 1)))
		require.NoError(t, m.Add(relaySink(t, "b")))
		return m
	}
	pat := func(src, dest string) *pattern.Pattern {
		p, err := pattern.New(selector.MustParse(src), selector.MustParse(dest))
		require.NoError(t, err)
		require.NoError(t, p.Set(src, dest, 1))
		return p
	}

	tests := []struct {
		name    string
		connect func(m *Manager) error
		want    error
	}{
		{"unknown LPU", func(m *Manager) error {
			return m.Connect("a", "zz", link(t, "a", "b", 1), 0, 1)
		}, sim.ErrUnknownNode},
		{"same LPU", func(m *Manager) error {
			return m.Connect("a", "a", link(t, "a", "b", 1), 0, 1)
		}, pattern.ErrSameInterface},
		{"bad interface pair", func(m *Manager) error {
			return m.Connect("a", "b", link(t, "a", "b", 1), 0, 0)
		}, pattern.ErrInvalidAttribute},
		{"port missing from LPU", func(m *Manager) error {
			return m.Connect("a", "b", pat("/a/out/gpot[5]", "/b/in/gpot[0]"), 0, 1)
		}, pattern.ErrUnknownPort},
		{"edge against port direction", func(m *Manager) error {
			return m.Connect("b", "a", pat("/b/in/gpot[0]", "/a/out/gpot[0]"), 0, 1)
		}, pattern.ErrDirectionConflict},
		{"kind disagrees with LPU", func(m *Manager) error {
			p := link(t, "a", "b", 1)
			require.NoError(t, p.Interface().SetKind("/a/out/gpot[0]", pattern.KindSpike))
			return m.Connect("a", "b", p, 0, 1)
		}, pattern.ErrKindMismatch},
		{"pattern connected twice", func(m *Manager) error {
			p := link(t, "a", "b", 1)
			require.NoError(t, m.Connect("a", "b", p, 0, 1))
			return m.Connect("a", "b", p, 0, 1)
		}, pattern.ErrAlreadyConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.connect(newManager())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestManager_ConnectRecordsPortOwners(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, m.Add(constantSource(t, "a", "Relay", 1)))
	require.NoError(t, m.Add(relaySink(t, "b")))

	// GIVEN a pattern whose interface 1 is bound to a and interface 0 to b
	p, err := pattern.New(selector.MustParse(gpotPort("b", "in", 0)), selector.MustParse(gpotPort("a", "out", 0)))
	require.NoError(t, err)
	require.NoError(t, p.Set(gpotPort("a", "out", 0), gpotPort("b", "in", 0), 1))
	require.NoError(t, m.Connect("a", "b", p, 1, 0))

	// THEN every port names the LPU that owns it
	src, _ := p.Interface().Get(gpotPort("a", "out", 0))
	dst, _ := p.Interface().Get(gpotPort("b", "in", 0))
	assert.Equal(t, "a", src.LPU)
	assert.Equal(t, "b", dst.LPU)
	require.Len(t, m.Routes(), 1)
	assert.Equal(t, "a", m.Routes()[0].From)
	assert.Equal(t, "b", m.Routes()[0].To)
}

func TestManager_TransientFaultsAreRetried(t *testing.T) {
	// GIVEN a transport whose first two deliveries fail
	tr := &flakyTransport{LocalTransport: NewLocalTransport(), failures: 2}
	cfg := DefaultConfig()
	cfg.Transport = tr
	cfg.RetryBackoff = time.Millisecond
	cfg.Trace = trace.TraceConfig{Level: trace.TraceLevelRounds}
	m, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Add(constantSource(t, "a", "Relay", 4)))
	sink := relaySink(t, "b")
	require.NoError(t, m.Add(sink))
	require.NoError(t, m.Connect("a", "b", link(t, "a", "b", 1), 0, 1))

	// WHEN the run completes
	require.NoError(t, m.Run(context.Background(), 5))

	// THEN the faults were absorbed and every exchange still happened
	assert.Equal(t, 2, m.Stats().Retries)
	assert.Equal(t, 5, m.Stats().Exchanges)
	assert.Equal(t, []float64{4}, sink.Routed())
	require.Len(t, m.Trace().Faults, 2)
	assert.False(t, m.Trace().Faults[0].Fatal)
}

func TestManager_PersistentFaultIsFatal(t *testing.T) {
	tr := &flakyTransport{LocalTransport: NewLocalTransport(), failures: 100}
	cfg := DefaultConfig()
	cfg.Transport = tr
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	m, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Add(constantSource(t, "a", "Relay", 4)))
	require.NoError(t, m.Add(relaySink(t, "b")))
	require.NoError(t, m.Connect("a", "b", link(t, "a", "b", 1), 0, 1))

	err = m.Run(context.Background(), 5)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "b", fatal.LPU)
	assert.Equal(t, 0, fatal.Round)
	assert.ErrorIs(t, err, ErrCommunication)
	assert.Equal(t, int32(3), tr.calls.Load(), "one attempt plus MaxRetries retries")
	assert.Equal(t, 0, m.Stats().Exchanges)
}

func TestManager_ExecutorFailureIsFatal(t *testing.T) {
	// GIVEN an LPU whose model panics in its fourth round
	net := &sim.Network{Components: []sim.ComponentSpec{{Model: "test.PanicAt3", IDs: []string{"x"}, Params: map[string][]float64{"gain": {1}}}}}
	bad, err := sim.NewLPU(sim.NewLPUConfig("bad", 1e-4), net)
	require.NoError(t, err)

	m, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, m.Add(bad))
	require.NoError(t, m.Add(relaySink(t, "ok")))

	// WHEN run for ten rounds
	err = m.Run(context.Background(), 10)

	// THEN the whole run stops at that round
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, "bad", fatal.LPU)
	assert.Equal(t, 3, fatal.Round)
	assert.Equal(t, 3, m.Stats().Rounds)
}

func TestManager_RoundTimeoutIsFatal(t *testing.T) {
	net := &sim.Network{Components: []sim.ComponentSpec{{Model: "test.Slow", IDs: []string{"x"}, Params: map[string][]float64{"gain": {1}}}}}
	slow, err := sim.NewLPU(sim.NewLPUConfig("slow", 1e-4), net)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RoundTimeout = 5 * time.Millisecond
	m, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Add(slow))

	err = m.Run(context.Background(), 3)
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, ErrRoundTimeout)
}

func TestManager_RoundTimeoutWithHungComponentReturns(t *testing.T) {
	// GIVEN an LPU whose component never finishes its first step
	net := &sim.Network{Components: []sim.ComponentSpec{{Model: "test.Hang", IDs: []string{"x"}, Params: map[string][]float64{"gain": {1}}}}}
	hung, err := sim.NewLPU(sim.NewLPUConfig("hung", 1e-4), net)
	require.NoError(t, err)
	t.Cleanup(func() { close(releaseHung) })

	cfg := DefaultConfig()
	cfg.RoundTimeout = 20 * time.Millisecond
	m, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Add(hung))
	require.NoError(t, m.Add(relaySink(t, "ok")))

	// WHEN the run is started
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), 3) }()

	// THEN Wait reports the timeout without joining the stuck executor
	select {
	case err := <-done:
		var fatal *FatalError
		require.ErrorAs(t, err, &fatal)
		assert.ErrorIs(t, err, ErrRoundTimeout)
		assert.Equal(t, 0, fatal.Round)
		assert.Equal(t, 0, m.Stats().Rounds)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait still blocked after the round timeout")
	}
}

func TestManager_StopEndsAtNextBarrier(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	stopper := &stopAt{m: m, round: 4}
	require.NoError(t, m.Add(constantSource(t, "a", "Relay", 1, stopper)))

	require.NoError(t, m.Run(context.Background(), 100))
	assert.Equal(t, 5, m.Stats().Rounds)
}

func TestManager_CancelledContext(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, m.Add(constantSource(t, "a", "Relay", 1)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = m.Run(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Stats().Rounds)
}

func TestManager_Lifecycle(t *testing.T) {
	_, err := New(Config{Merge: "max"})
	assert.ErrorIs(t, err, sim.ErrInvalidValue)
	_, err = New(Config{Trace: trace.TraceConfig{Level: "verbose"}})
	assert.ErrorIs(t, err, sim.ErrInvalidValue)

	m, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, m.Spawn(context.Background()), sim.ErrInvalidValue, "no LPUs")
	assert.ErrorIs(t, m.Wait(), sim.ErrInvalidState)

	a := constantSource(t, "a", "Relay", 1)
	require.NoError(t, m.Add(a))
	assert.ErrorIs(t, m.Add(a), sim.ErrDuplicateID)
	assert.ErrorIs(t, m.Start(1), sim.ErrInvalidState, "Start before Spawn")

	require.NoError(t, m.Spawn(context.Background()))
	assert.ErrorIs(t, m.Spawn(context.Background()), sim.ErrInvalidState)
	assert.ErrorIs(t, m.Add(relaySink(t, "b")), sim.ErrInvalidState)
	assert.ErrorIs(t, m.Start(-1), sim.ErrInvalidValue)

	require.NoError(t, m.Start(2))
	require.NoError(t, m.Wait())
	require.NoError(t, m.Wait(), "Wait is idempotent")
	assert.Equal(t, 2, m.Stats().Rounds)
	assert.Nil(t, m.Trace(), "tracing disabled by default")
}
