package models

import "math"

// PowerGPotGPot is a graded-potential synapse: g = min(saturation,
// (slope * max(0, V - threshold))^power). It has no state.
type PowerGPotGPot struct{}

func (PowerGPotGPot) Name() string        { return "PowerGPotGPot" }
func (PowerGPotGPot) Accesses() []string  { return []string{"V"} }
func (PowerGPotGPot) Updates() []string   { return []string{"g"} }
func (PowerGPotGPot) States() []StateSpec { return nil }
func (PowerGPotGPot) MaxStep() float64    { return 0 }

func (PowerGPotGPot) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "threshold", Required: true},
		{Name: "slope", Required: true},
		{Name: "power", Default: 1},
		{Name: "saturation", Default: math.Inf(1)},
	}
}

func (PowerGPotGPot) Run(f *Frame) {
	v, g := f.In["V"], f.Out["g"]
	thr, slope, pow, sat := f.P["threshold"], f.P["slope"], f.P["power"], f.P["saturation"]
	for i := 0; i < f.N; i++ {
		x := math.Pow(slope[i]*math.Max(0, v[i]-thr[i]), pow[i])
		g[i] = math.Min(sat[i], x)
	}
}
