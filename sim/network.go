package sim

import (
	"github.com/lpu-sim/lpu-sim/sim/pattern"
	"github.com/lpu-sim/lpu-sim/sim/selector"
)

// ComponentSpec declares every instance of one model kind in an LPU.
type ComponentSpec struct {
	Model  string               `yaml:"model"`
	IDs    []string             `yaml:"ids"`
	Params map[string][]float64 `yaml:"params,omitempty"`
}

// Connection feeds the published Source variable of node Pre into the
// accessed Variable of node Post. Source defaults to Variable.
type Connection struct {
	Pre      string `yaml:"pre"`
	Post     string `yaml:"post"`
	Variable string `yaml:"variable"`
	Source   string `yaml:"source,omitempty"`
}

// SourceVariable returns the variable read from Pre.
func (c Connection) SourceVariable() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Variable
}

// PortSpec binds an externally addressable port to a node variable.
// An out-port publishes the node's updated Variable; an in-port feeds the
// routed value into the node's accessed Variable.
type PortSpec struct {
	Port      string            `yaml:"port"`
	Node      string            `yaml:"node"`
	Variable  string            `yaml:"variable"`
	Direction pattern.Direction `yaml:"direction"`
	Kind      pattern.Kind      `yaml:"kind"`
}

// Network is the descriptor an LPU is built from: the opaque output of a
// network loader.
type Network struct {
	Components  []ComponentSpec `yaml:"components"`
	Connections []Connection    `yaml:"connections,omitempty"`
	Ports       []PortSpec      `yaml:"ports,omitempty"`
}

// NodeIDs returns every node id in declaration order.
func (n *Network) NodeIDs() []string {
	var ids []string
	for _, c := range n.Components {
		ids = append(ids, c.IDs...)
	}
	return ids
}

// PortSelector returns the selector of every port with the given direction
// and kind; empty criteria match anything. A malformed port is an error.
func (n *Network) PortSelector(dir pattern.Direction, kind pattern.Kind) (*selector.Selector, error) {
	var ids []string
	for _, p := range n.Ports {
		if dir != "" && p.Direction != dir {
			continue
		}
		if kind != "" && p.Kind != kind {
			continue
		}
		ids = append(ids, p.Port)
	}
	sel, err := selector.FromIdentifiers(ids)
	if err != nil {
		return nil, NewConfigError("network", ErrInvalidValue, "port selector: %w", err)
	}
	return sel, nil
}

// Validate checks the descriptor's internal consistency. Model-specific
// checks (variables, parameters) happen when the LPU prepares components.
func (n *Network) Validate() error {
	nodes := make(map[string]bool)
	for _, c := range n.Components {
		if c.Model == "" {
			return NewConfigError("network", ErrInvalidValue, "component with empty model name")
		}
		if len(c.IDs) == 0 {
			return NewConfigError(c.Model, ErrShapeMismatch, "no instance ids")
		}
		for _, id := range c.IDs {
			if nodes[id] {
				return NewConfigError(id, ErrDuplicateID, "node declared twice")
			}
			nodes[id] = true
		}
		for name, vals := range c.Params {
			if len(vals) != len(c.IDs) {
				return NewConfigError(c.Model, ErrShapeMismatch,
					"parameter %q has %d values for %d instances", name, len(vals), len(c.IDs))
			}
		}
	}
	for _, conn := range n.Connections {
		if !nodes[conn.Pre] {
			return NewConfigError(conn.Pre, ErrUnknownNode, "connection source")
		}
		if !nodes[conn.Post] {
			return NewConfigError(conn.Post, ErrUnknownNode, "connection target")
		}
		if conn.Variable == "" {
			return NewConfigError(conn.Pre+"->"+conn.Post, ErrUnknownVariable, "empty variable")
		}
	}
	ports := make(map[string]bool)
	for _, p := range n.Ports {
		ids, err := selector.Expand(p.Port)
		if err != nil {
			return err
		}
		if len(ids) != 1 {
			return NewConfigError(p.Port, ErrShapeMismatch, "port must name exactly one identifier, got %d", len(ids))
		}
		if ids[0] != p.Port {
			return NewConfigError(p.Port, ErrInvalidValue, "port is not in canonical form %q", ids[0])
		}
		if ports[p.Port] {
			return NewConfigError(p.Port, ErrDuplicateID, "port declared twice")
		}
		ports[p.Port] = true
		if !nodes[p.Node] {
			return NewConfigError(p.Port, ErrUnknownNode, "node %q", p.Node)
		}
		if p.Direction != pattern.DirIn && p.Direction != pattern.DirOut {
			return NewConfigError(p.Port, ErrInvalidValue, "direction %q", p.Direction)
		}
		if p.Kind != pattern.KindSpike && p.Kind != pattern.KindGPot {
			return NewConfigError(p.Port, ErrInvalidValue, "kind %q", p.Kind)
		}
		if p.Variable == "" {
			return NewConfigError(p.Port, ErrUnknownVariable, "empty variable")
		}
	}
	return nil
}
