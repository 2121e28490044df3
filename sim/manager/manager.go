// Package manager runs several LPUs in lockstep. Each LPU is driven by its
// own executor goroutine; after every round the manager waits at a barrier,
// then routes out-port values through a Transport into the in-ports that the
// connected Patterns name. Values routed after round N are consumed in round
// N+1.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lpu-sim/lpu-sim/sim"
	"github.com/lpu-sim/lpu-sim/sim/pattern"
	"github.com/lpu-sim/lpu-sim/sim/trace"
)

// Config controls fault handling, routing and observability of a run.
type Config struct {
	MaxRetries   int           // retries of a CommunicationFault before it is fatal
	RetryBackoff time.Duration // wait before retry k is k*RetryBackoff
	RoundTimeout time.Duration // 0 disables the barrier timeout
	Merge        MergePolicy
	Transport    Transport // nil selects a LocalTransport
	Trace        trace.TraceConfig
	Debug        bool // log every round and exchange at debug level
	TimeSync     bool // log barrier timing of every round at info level
}

// DefaultConfig returns the settings used by the CLI when no flag overrides them.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		RetryBackoff: 10 * time.Millisecond,
		Merge:        MergeSum,
		Trace:        trace.TraceConfig{Level: trace.TraceLevelNone},
	}
}

// Stats counts what a run has done so far.
type Stats struct {
	Rounds          int
	Exchanges       int
	ValuesDelivered int // one per route per exchange
	Deliveries      int // transport messages
	Retries         int
}

type phase int

const (
	phaseNew phase = iota
	phaseSpawned
	phaseRunning
	phaseDone
)

// Manager owns a set of LPUs and the patterns connecting them.
//
// Thread-safety: Add, Connect, Spawn, Start and Wait must be called from one
// goroutine. Stop, Stats and Trace may be called from any goroutine.
type Manager struct {
	cfg       Config
	lpus      map[string]*sim.LPU
	order     []string
	routes    []Route
	transport Transport
	plan      *exchangePlan

	execs   map[string]*executor
	results chan result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	phase   phase
	stopped atomic.Bool

	mu    sync.Mutex // guards stats and trace
	stats Stats
	trace *trace.SimulationTrace
}

// New creates an empty Manager. An invalid merge policy is a configuration
// error.
func New(cfg Config) (*Manager, error) {
	if !ValidMergePolicies[cfg.Merge] {
		return nil, sim.NewConfigError("manager", sim.ErrInvalidValue, "unknown merge policy %q", cfg.Merge)
	}
	if !trace.IsValidTraceLevel(string(cfg.Trace.Level)) {
		return nil, sim.NewConfigError("manager", sim.ErrInvalidValue, "unknown trace level %q", cfg.Trace.Level)
	}
	if cfg.MaxRetries < 0 {
		return nil, sim.NewConfigError("manager", sim.ErrInvalidValue, "negative MaxRetries %d", cfg.MaxRetries)
	}
	if cfg.Merge == "" {
		cfg.Merge = MergeSum
	}
	if cfg.Transport == nil {
		cfg.Transport = NewLocalTransport()
	}
	m := &Manager{
		cfg:       cfg,
		lpus:      make(map[string]*sim.LPU),
		transport: cfg.Transport,
		done:      make(chan struct{}),
	}
	if cfg.Trace.Enabled() {
		m.trace = trace.NewSimulationTrace(cfg.Trace)
	}
	return m, nil
}

// Add registers a constructed LPU. Ids must be unique.
func (m *Manager) Add(l *sim.LPU) error {
	if m.phase != phaseNew {
		return sim.NewConfigError(l.ID(), sim.ErrInvalidState, "Add after Spawn")
	}
	if _, ok := m.lpus[l.ID()]; ok {
		return sim.NewConfigError(l.ID(), sim.ErrDuplicateID, "LPU added twice")
	}
	m.lpus[l.ID()] = l
	m.order = append(m.order, l.ID())
	return nil
}

// Connect binds interface int0 of pat to LPU id0 and interface int1 to LPU
// id1, and compiles its edges into routes.
func (m *Manager) Connect(id0, id1 string, pat *pattern.Pattern, int0, int1 int) error {
	if m.phase != phaseNew {
		return sim.NewConfigError(id0, sim.ErrInvalidState, "Connect after Spawn")
	}
	if pat == nil {
		return sim.NewConfigError(id0+"<->"+id1, sim.ErrInvalidValue, "nil pattern")
	}
	if id0 == id1 {
		return &pattern.RoutingError{Op: "connect", Port: id0, Err: pattern.ErrSameInterface}
	}
	if !validInterfacePair(int0, int1) {
		return &pattern.RoutingError{
			Op:  "connect",
			Err: fmt.Errorf("%w: interfaces %d and %d", pattern.ErrInvalidAttribute, int0, int1),
		}
	}
	var owners [2]*portTable
	for _, b := range []struct {
		id  string
		idx int
	}{{id0, int0}, {id1, int1}} {
		l, ok := m.lpus[b.id]
		if !ok {
			return sim.NewConfigError(b.id, sim.ErrUnknownNode, "LPU not added")
		}
		owners[b.idx] = newPortTable(l)
	}
	routes, err := compileRoutes(pat, owners)
	if err != nil {
		return fmt.Errorf("connect %s <-> %s: %w", id0, id1, err)
	}
	m.routes = append(m.routes, routes...)
	logrus.Infof("connected %s <-> %s: %d routes", id0, id1, len(routes))
	return nil
}

func validInterfacePair(a, b int) bool {
	return (a == 0 && b == 1) || (a == 1 && b == 0)
}

// Routes returns a copy of the compiled routes.
func (m *Manager) Routes() []Route {
	out := make([]Route, len(m.routes))
	copy(out, m.routes)
	return out
}

// Validate checks the constraints Spawn enforces over the whole route set
// without starting anything.
func (m *Manager) Validate() error {
	if len(m.lpus) == 0 {
		return sim.NewConfigError("manager", sim.ErrInvalidValue, "no LPUs")
	}
	return checkMerge(m.routes, m.cfg.Merge)
}

// Spawn checks global routing constraints, seeds every LPU and launches one
// executor goroutine per LPU. ctx bounds the whole run.
func (m *Manager) Spawn(ctx context.Context) error {
	if m.phase != phaseNew {
		return sim.NewConfigError("manager", sim.ErrInvalidState, "Spawn called twice")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	m.plan = newExchangePlan(m.routes, m.lpus)
	for _, id := range m.order {
		if err := m.lpus[id].Start(); err != nil {
			return err
		}
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.results = make(chan result, len(m.order))
	m.execs = make(map[string]*executor, len(m.order))
	for _, id := range m.order {
		inbox, err := m.transport.Open(id)
		if err != nil {
			m.cancel()
			return fmt.Errorf("opening transport for %s: %w", id, err)
		}
		m.execs[id] = newExecutor(m.lpus[id], inbox, m.plan.receives(id))
	}
	for _, id := range m.order {
		e := m.execs[id]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			e.run(m.ctx, m.results)
		}()
	}
	m.phase = phaseSpawned
	logrus.Infof("spawned %d LPU executors, %d routes, merge=%s", len(m.order), len(m.routes), m.cfg.Merge)
	return nil
}

// Start begins the barrier loop for the given number of rounds.
func (m *Manager) Start(steps int) error {
	if m.phase != phaseSpawned {
		return sim.NewConfigError("manager", sim.ErrInvalidState, "Start before Spawn or after a run")
	}
	if steps < 0 {
		return sim.NewConfigError("manager", sim.ErrInvalidValue, "negative step count %d", steps)
	}
	m.phase = phaseRunning
	go m.loop(steps)
	return nil
}

// Wait blocks until the run completes, is stopped, or fails. It returns nil
// after a completed or stopped run, a *FatalError after a fault, or the
// context's error after cancellation. After a fault or cancellation it does
// not wait for executors still inside a component's Step.
func (m *Manager) Wait() error {
	if m.phase != phaseRunning && m.phase != phaseDone {
		return sim.NewConfigError("manager", sim.ErrInvalidState, "Wait before Start")
	}
	<-m.done
	m.phase = phaseDone
	return m.err
}

// Stop ends the run at the next barrier. Safe to call at any time.
func (m *Manager) Stop() {
	m.stopped.Store(true)
}

// Run is Spawn, Start and Wait.
func (m *Manager) Run(ctx context.Context, steps int) error {
	if err := m.Spawn(ctx); err != nil {
		return err
	}
	if err := m.Start(steps); err != nil {
		return err
	}
	return m.Wait()
}

// Stats returns a snapshot of the run counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Trace returns the collected trace, or nil when tracing is disabled. Read it
// after Wait returns.
func (m *Manager) Trace() *trace.SimulationTrace {
	return m.trace
}

func (m *Manager) loop(steps int) {
	defer close(m.done)
	for r := 0; r < steps; r++ {
		if m.stopped.Load() {
			logrus.Infof("run stopped after %d rounds", r)
			break
		}
		if err := m.ctx.Err(); err != nil {
			m.fail(err)
			return
		}
		outbound, err := m.round(r)
		if err != nil {
			m.fail(err)
			return
		}
		if err := m.exchange(r, outbound); err != nil {
			m.fail(err)
			return
		}
	}
	m.shutdown()
	logrus.Infof("run finished: %+v", m.Stats())
}

// round dispatches round r to every executor and waits at the barrier.
func (m *Manager) round(r int) (map[string][]float64, error) {
	start := time.Now()
	for _, id := range m.order {
		m.execs[id].cmds <- command{round: r}
	}
	var timeout <-chan time.Time
	if m.cfg.RoundTimeout > 0 {
		timer := time.NewTimer(m.cfg.RoundTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	outbound := make(map[string][]float64, len(m.order))
	steps := make(map[string]time.Duration, len(m.order))
	for len(outbound) < len(m.order) {
		select {
		case res := <-m.results:
			if res.err != nil {
				return nil, &FatalError{LPU: res.lpu, Round: r, Err: res.err}
			}
			outbound[res.lpu] = res.outbound
			steps[res.lpu] = res.elapsed
		case <-timeout:
			return nil, &FatalError{Round: r, Err: fmt.Errorf("%w after %v", ErrRoundTimeout, m.cfg.RoundTimeout)}
		case <-m.ctx.Done():
			return nil, m.ctx.Err()
		}
	}
	barrier := time.Since(start)

	m.mu.Lock()
	m.stats.Rounds++
	if m.trace != nil {
		m.trace.RecordRound(trace.RoundRecord{Round: r, Steps: steps, Barrier: barrier})
	}
	m.mu.Unlock()

	if m.cfg.TimeSync {
		logrus.Infof("round %d: barrier %v", r, barrier)
	}
	if m.cfg.Debug {
		logrus.Debugf("round %d: steps %v", r, steps)
	}
	return outbound, nil
}

// exchange routes the values published by round r.
func (m *Manager) exchange(r int, outbound map[string][]float64) error {
	start := time.Now()
	retries := 0
	deliveries := m.plan.deliveries(r, outbound)
	for _, d := range deliveries {
		n, err := m.deliver(d)
		retries += n
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.stats.Exchanges++
	m.stats.ValuesDelivered += m.plan.total
	m.stats.Deliveries += len(deliveries)
	m.stats.Retries += retries
	if m.trace != nil {
		m.trace.RecordExchange(trace.ExchangeRecord{
			Round: r, Values: m.plan.total, Deliveries: len(deliveries), Retries: retries, Elapsed: time.Since(start),
		})
	}
	m.mu.Unlock()

	if m.cfg.Debug {
		logrus.Debugf("round %d: exchanged %d values in %d deliveries", r, m.plan.total, len(deliveries))
	}
	return nil
}

// deliver hands one delivery to the transport, retrying communication
// faults. It returns the number of retries made.
func (m *Manager) deliver(d Delivery) (int, error) {
	for attempt := 0; ; attempt++ {
		err := m.transport.Deliver(m.ctx, d)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, ErrCommunication) || attempt >= m.cfg.MaxRetries {
			return attempt, &FatalError{LPU: d.To, Round: d.Round, Err: err}
		}
		logrus.Warnf("round %d: delivery to %s failed (attempt %d/%d): %v",
			d.Round, d.To, attempt+1, m.cfg.MaxRetries+1, err)
		m.recordFault(trace.FaultRecord{Round: d.Round, LPU: d.To, Attempt: attempt + 1, Reason: err.Error()})
		select {
		case <-time.After(time.Duration(attempt+1) * m.cfg.RetryBackoff):
		case <-m.ctx.Done():
			return attempt, m.ctx.Err()
		}
	}
}

func (m *Manager) recordFault(f trace.FaultRecord) {
	if m.trace == nil {
		return
	}
	m.mu.Lock()
	m.trace.RecordFault(f)
	m.mu.Unlock()
}

// fail records err as the run's outcome and cancels every executor. It does
// not join them: an executor stuck inside a component's Step cannot observe
// cancellation, so its goroutine is leaked until that Step returns. Transport
// and LPUs are closed once the last executor exits.
func (m *Manager) fail(err error) {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		logrus.Errorf("%v", fatal)
		m.recordFault(trace.FaultRecord{Round: fatal.Round, LPU: fatal.LPU, Reason: fatal.Err.Error(), Fatal: true})
	}
	m.err = err
	m.cancel()
	go func() {
		m.wg.Wait()
		m.closeAll()
	}()
}

// shutdown lets executors apply the final exchange and exit.
func (m *Manager) shutdown() {
	for _, id := range m.order {
		close(m.execs[id].cmds)
	}
	m.wg.Wait()
	m.cancel()
	m.closeAll()
}

func (m *Manager) closeAll() {
	if err := m.transport.Close(); err != nil {
		logrus.Warnf("closing transport: %v", err)
	}
	for _, id := range m.order {
		if err := m.lpus[id].Close(); err != nil {
			logrus.Warnf("closing LPU %s: %v", id, err)
		}
	}
}
