package manager

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lpu-sim/lpu-sim/sim"
)

type command struct {
	round int
}

type result struct {
	lpu      string
	round    int
	outbound []float64
	elapsed  time.Duration
	err      error
}

// executor owns one LPU for the lifetime of a run. Only its goroutine touches
// the LPU between Spawn and the end of Wait.
type executor struct {
	lpu      *sim.LPU
	inbox    <-chan Delivery
	receives bool // at least one route targets this LPU
	cmds     chan command
}

func newExecutor(l *sim.LPU, inbox <-chan Delivery, receives bool) *executor {
	return &executor{lpu: l, inbox: inbox, receives: receives, cmds: make(chan command, 1)}
}

// run serves commands until cmds is closed or ctx ends.
func (e *executor) run(ctx context.Context, results chan<- result) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-e.cmds:
			if !ok {
				e.drain()
				return
			}
			res := e.step(ctx, cmd)
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
			if res.err != nil {
				return
			}
		}
	}
}

// step applies the previous exchange, then advances the LPU one round.
func (e *executor) step(ctx context.Context, cmd command) (res result) {
	res = result{lpu: e.lpu.ID(), round: cmd.round}
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("executor panicked: %v\n%s", r, debug.Stack())
		}
	}()
	if e.receives && cmd.round > 0 {
		select {
		case d := <-e.inbox:
			if d.Round != cmd.round-1 {
				res.err = fmt.Errorf("delivery from round %d arrived before round %d", d.Round, cmd.round)
				return res
			}
			if err := e.lpu.SetRouted(d.Values); err != nil {
				res.err = err
				return res
			}
		case <-ctx.Done():
			res.err = ctx.Err()
			return res
		}
	}
	start := time.Now()
	if err := e.lpu.Advance(); err != nil {
		res.err = err
		return res
	}
	res.elapsed = time.Since(start)
	res.outbound = e.lpu.Outbound()
	return res
}

// drain applies a final delivery that no round will consume, so the routing
// buffer reflects the last exchange once the run is over.
func (e *executor) drain() {
	if !e.receives {
		return
	}
	select {
	case d := <-e.inbox:
		if err := e.lpu.SetRouted(d.Values); err != nil {
			logrus.Warnf("LPU %s: dropping final delivery: %v", e.lpu.ID(), err)
		}
	default:
	}
}
