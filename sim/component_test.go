package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpu-sim/lpu-sim/sim/pattern"
	"github.com/lpu-sim/lpu-sim/sim/selector"
)

func TestAccessBuffer_Reduce(t *testing.T) {
	// GIVEN three instances with 2, 0 and 3 sources
	buf := NewAccessBuffer([]int{2, 0, 3})
	require.Equal(t, 3, buf.Len())
	assert.Equal(t, []int{0, 2, 2, 5}, buf.Offsets)
	copy(buf.Values, []float64{1, 2, 10, 20, 30})

	// WHEN reduced
	dst := make([]float64, 3)
	buf.Reduce(dst)

	// THEN each instance gets the sum of its own sources
	assert.Equal(t, []float64{3, 0, 60}, dst)
	assert.Equal(t, 0, (&AccessBuffer{}).Len())
}

func TestComponentState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "prepared", Prepared.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "unknown", ComponentState(9).String())
}

func TestRegisterModel_DuplicatePanics(t *testing.T) {
	RegisterModel("test.registry.dup", func() Component { return nil })
	assert.True(t, IsRegisteredModel("test.registry.dup"))
	assert.Contains(t, Models(), "test.registry.dup")
	assert.Panics(t, func() {
		RegisterModel("test.registry.dup", func() Component { return nil })
	})
}

func TestConfigError_Matching(t *testing.T) {
	err := NewConfigError("n0", ErrUnknownVariable, "model %s does not access %q", "Relay", "g")
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, ErrUnknownVariable)
	assert.NotErrorIs(t, err, ErrMissingParam)
	assert.Equal(t, `config: n0: unknown variable: model Relay does not access "g"`, err.Error())
}

func TestNetwork_Validate(t *testing.T) {
	valid := func() *Network {
		return &Network{
			Components: []ComponentSpec{
				{Model: "Wilson", IDs: []string{"n0", "n1"}},
				{Model: "AlphaSynapse", IDs: []string{"s0"}, Params: map[string][]float64{"gmax": {2}}},
			},
			Connections: []Connection{{Pre: "n0", Post: "s0", Variable: "spike_state"}},
			Ports: []PortSpec{
				{Port: "/a/out/spk[0]", Node: "n0", Variable: "spike_state", Direction: pattern.DirOut, Kind: pattern.KindSpike},
				{Port: "/a/in/gpot[0]", Node: "n1", Variable: "I", Direction: pattern.DirIn, Kind: pattern.KindGPot},
			},
		}
	}
	require.NoError(t, valid().Validate())
	assert.Equal(t, []string{"n0", "n1", "s0"}, valid().NodeIDs())
	out, err := valid().PortSelector(pattern.DirOut, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/out/spk[0]"}, out.Identifiers())
	all, err := valid().PortSelector("", "")
	require.NoError(t, err)
	assert.Equal(t, 2, all.Len())

	// an unvalidated network with a malformed port reports it
	bad := valid()
	bad.Ports[0].Port = "/a/out[0"
	_, err = bad.PortSelector("", "")
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, selector.ErrParse)

	tests := []struct {
		name   string
		mutate func(n *Network)
		cause  error
	}{
		{"duplicate node", func(n *Network) { n.Components[1].IDs = []string{"n0"} }, ErrDuplicateID},
		{"param length", func(n *Network) { n.Components[1].Params["gmax"] = []float64{1, 2} }, ErrShapeMismatch},
		{"no ids", func(n *Network) { n.Components[0].IDs = nil }, ErrShapeMismatch},
		{"empty model", func(n *Network) { n.Components[0].Model = "" }, ErrInvalidValue},
		{"unknown pre", func(n *Network) { n.Connections[0].Pre = "zz" }, ErrUnknownNode},
		{"empty variable", func(n *Network) { n.Connections[0].Variable = "" }, ErrUnknownVariable},
		{"port not single", func(n *Network) { n.Ports[0].Port = "/a/out/spk[0:2]" }, ErrShapeMismatch},
		{"port not canonical", func(n *Network) { n.Ports[0].Port = "/a/out/spk/[0]" }, ErrInvalidValue},
		{"duplicate port", func(n *Network) { n.Ports[1].Port = n.Ports[0].Port }, ErrDuplicateID},
		{"bad direction", func(n *Network) { n.Ports[0].Direction = "sideways" }, ErrInvalidValue},
		{"bad kind", func(n *Network) { n.Ports[0].Kind = "" }, ErrInvalidValue},
		{"port node", func(n *Network) { n.Ports[0].Node = "zz" }, ErrUnknownNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid()
			tt.mutate(n)
			err := n.Validate()
			assert.ErrorIs(t, err, ErrConfig)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}
