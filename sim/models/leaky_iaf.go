package models

import "math"

// LeakyIAF is a leaky integrate-and-fire neuron integrated exactly over each
// sub-step. Units: mV, nA, MΩ, nF (so R*C is in ms).
//
// The optional noise parameter adds Gaussian membrane noise (mV per sub-step)
// drawn from the LPU's random stream; with noise 0 the model is deterministic.
// Nonzero noise without a stream is a configuration error.
type LeakyIAF struct{}

func (LeakyIAF) Name() string       { return "LeakyIAF" }
func (LeakyIAF) Accesses() []string { return []string{"I"} }
func (LeakyIAF) Updates() []string  { return []string{"spike_state", "V"} }
func (LeakyIAF) MaxStep() float64   { return 1e-4 }

func (LeakyIAF) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "resting_potential", Default: -65},
		{Name: "threshold", Default: -50},
		{Name: "reset_potential", Default: -70},
		{Name: "resistance", Default: 10},
		{Name: "capacitance", Default: 2},
		{Name: "noise", Default: 0},
	}
}

// RandomParams implements Stochastic.
func (LeakyIAF) RandomParams() []string { return []string{"noise"} }

func (LeakyIAF) States() []StateSpec {
	return []StateSpec{{Name: "V", Init: -65, SeedFrom: "initV"}}
}

func (LeakyIAF) Run(f *Frame) {
	in, vs := f.In["I"], f.S["V"]
	vr, vt, vreset := f.P["resting_potential"], f.P["threshold"], f.P["reset_potential"]
	res, capac, noise := f.P["resistance"], f.P["capacitance"], f.P["noise"]
	outV, outSpike := f.Out["V"], f.Out["spike_state"]
	dtMs := 1000 * f.DDT
	for i := 0; i < f.N; i++ {
		V := vs[i]
		bh := math.Exp(-dtMs / (res[i] * capac[i]))
		spiked := false
		for j := 0; j < f.Steps; j++ {
			V = V*bh + (res[i]*in[i]+vr[i])*(1-bh)
			if noise[i] != 0 {
				V += noise[i] * f.Rand.NormFloat64()
			}
			if V >= vt[i] {
				V = vreset[i]
				spiked = true
			}
		}
		vs[i] = V
		outV[i] = V
		outSpike[i] = boolToFloat(spiked)
	}
}
