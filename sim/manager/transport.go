package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrTransportClosed is returned by a LocalTransport after Close.
var ErrTransportClosed = errors.New("transport closed")

// Delivery carries the routed values computed after Round into the routing
// buffer of LPU To, one value per in-port. They are consumed in round Round+1.
type Delivery struct {
	To     string
	Round  int
	Values []float64
}

// Transport moves deliveries from the manager to LPU executors. A Deliver
// error matching ErrCommunication is treated as transient and retried; any
// other error is fatal.
type Transport interface {
	// Open registers an LPU and returns the channel its executor reads.
	Open(lpu string) (<-chan Delivery, error)
	Deliver(ctx context.Context, d Delivery) error
	Close() error
}

// LocalTransport delivers over in-process channels. Each inbox holds one
// pending delivery; the barrier guarantees the previous one was consumed.
type LocalTransport struct {
	mu     sync.Mutex
	inbox  map[string]chan Delivery
	closed bool
}

// NewLocalTransport creates an empty LocalTransport.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{inbox: make(map[string]chan Delivery)}
}

func (t *LocalTransport) Open(lpu string) (<-chan Delivery, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	if _, ok := t.inbox[lpu]; ok {
		return nil, fmt.Errorf("lpu %s: inbox already open", lpu)
	}
	ch := make(chan Delivery, 1)
	t.inbox[lpu] = ch
	return ch, nil
}

// Deliver copies d.Values and blocks until the inbox has room or ctx ends.
func (t *LocalTransport) Deliver(ctx context.Context, d Delivery) error {
	t.mu.Lock()
	ch, ok := t.inbox[d.To]
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}
	if !ok {
		return fmt.Errorf("lpu %s: no inbox", d.To)
	}
	d.Values = slices.Clone(d.Values)
	select {
	case ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops every inbox. Executors must have stopped reading.
func (t *LocalTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.inbox = make(map[string]chan Delivery)
	return nil
}
