package pattern

import (
	"slices"

	"github.com/lpu-sim/lpu-sim/sim/selector"
)

// Kind is the value kind carried by a port.
type Kind string

const (
	KindSpike Kind = "spike"
	KindGPot  Kind = "gpot"
)

// Direction is the data direction of a port relative to its owning LPU.
type Direction string

const (
	DirIn  Direction = "in"
	DirOut Direction = "out"
)

// ValidKinds is the set of recognized port kinds; "" means not yet assigned.
var ValidKinds = map[Kind]bool{"": true, KindSpike: true, KindGPot: true}

// ValidDirections is the set of recognized port directions; "" means not yet assigned.
var ValidDirections = map[Direction]bool{"": true, DirIn: true, DirOut: true}

// Attr is the attribute record of one port.
type Attr struct {
	Interface int
	Direction Direction
	Kind      Kind
	LPU       string // owning LPU, filled in when a pattern is connected
}

// Interface is an ordered port -> attribute table.
// Ports are fixed at construction; only attributes change afterwards.
type Interface struct {
	ports []string
	attrs map[string]*Attr
}

// NewInterface creates a table whose i-th selector's ports belong to interface i.
// A port appearing in several selectors keeps the first interface index.
func NewInterface(sels ...*selector.Selector) *Interface {
	in := &Interface{attrs: make(map[string]*Attr)}
	for i, sel := range sels {
		for id := range sel.All() {
			if _, ok := in.attrs[id]; ok {
				continue
			}
			in.ports = append(in.ports, id)
			in.attrs[id] = &Attr{Interface: i}
		}
	}
	return in
}

// Has reports whether port is declared.
func (in *Interface) Has(port string) bool {
	_, ok := in.attrs[port]
	return ok
}

// Get returns a copy of the port's attributes.
func (in *Interface) Get(port string) (Attr, bool) {
	a, ok := in.attrs[port]
	if !ok {
		return Attr{}, false
	}
	return *a, true
}

// Ports returns all declared ports in declaration order.
func (in *Interface) Ports() []string {
	return slices.Clone(in.ports)
}

// Query returns ports matching every non-empty criterion, in declaration order.
// iface < 0 matches any interface.
func (in *Interface) Query(iface int, dir Direction, kind Kind) []string {
	var out []string
	for _, p := range in.ports {
		a := in.attrs[p]
		if iface >= 0 && a.Interface != iface {
			continue
		}
		if dir != "" && a.Direction != dir {
			continue
		}
		if kind != "" && a.Kind != kind {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (in *Interface) lookup(op, port string) (*Attr, error) {
	a, ok := in.attrs[port]
	if !ok {
		return nil, &RoutingError{Op: op, Port: port, Err: ErrUnknownPort}
	}
	return a, nil
}

// SetKind assigns the value kind of a declared port.
func (in *Interface) SetKind(port string, k Kind) error {
	a, err := in.lookup("set kind", port)
	if err != nil {
		return err
	}
	if !ValidKinds[k] {
		return &RoutingError{Op: "set kind", Port: port, Err: ErrInvalidAttribute}
	}
	a.Kind = k
	return nil
}

// SetDirection assigns the direction of a declared port.
func (in *Interface) SetDirection(port string, d Direction) error {
	a, err := in.lookup("set direction", port)
	if err != nil {
		return err
	}
	if !ValidDirections[d] {
		return &RoutingError{Op: "set direction", Port: port, Err: ErrInvalidAttribute}
	}
	a.Direction = d
	return nil
}

// SetOwner records the LPU that owns a declared port.
func (in *Interface) SetOwner(port, lpu string) error {
	a, err := in.lookup("set owner", port)
	if err != nil {
		return err
	}
	a.LPU = lpu
	return nil
}
