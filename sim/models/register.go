// register.go wires the built-in kernels into the sim package's model
// registry. This init() runs when any package imports sim/models; production
// code imports it for side effects.
package models

import "github.com/lpu-sim/lpu-sim/sim"

// Builtins lists the kernels registered by this package.
var Builtins = []Kernel{Wilson{}, LeakyIAF{}, AlphaSynapse{}, PowerGPotGPot{}, Relay{}}

func init() {
	for _, k := range Builtins {
		sim.RegisterModel(k.Name(), func() sim.Component { return NewBase(k) })
	}
}
