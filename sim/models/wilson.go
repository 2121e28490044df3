package models

// Wilson is the Wilson (1999) two-variable reduction of the Hodgkin-Huxley
// neuron. The rule works in milliseconds; sub-steps are scaled accordingly.
// A spike is counted when the previous sample is a local maximum above 20 mV.
type Wilson struct{}

func (Wilson) Name() string        { return "Wilson" }
func (Wilson) Accesses() []string  { return []string{"I"} }
func (Wilson) Updates() []string   { return []string{"spike_state", "V"} }
func (Wilson) Params() []ParamSpec { return nil }
func (Wilson) MaxStep() float64    { return 1e-5 }

func (Wilson) States() []StateSpec {
	return []StateSpec{
		{Name: "R", Init: 0.088},
		{Name: "V", Init: -70, SeedFrom: "initV"},
		{Name: "Vprev1", Init: -70, SeedFrom: "initV"},
		{Name: "Vprev2", Init: -70, SeedFrom: "initV"},
	}
}

func (Wilson) Run(f *Frame) {
	dt := 1000 * f.DDT
	in := f.In["I"]
	rs, vs, p1s, p2s := f.S["R"], f.S["V"], f.S["Vprev1"], f.S["Vprev2"]
	outV, outSpike := f.Out["V"], f.Out["spike_state"]
	for i := 0; i < f.N; i++ {
		I, V, R := in[i], vs[i], rs[i]
		vprev1, vprev2 := p1s[i], p2s[i]
		spikes := 0
		for j := 0; j < f.Steps; j++ {
			rInf := 0.0135*V + 1.03
			dR := rInf/1.9 - R/1.9
			dV := 1. / 0.8 * (I - (17.81+0.4771*V+0.003263*V*V)*(V-55.) - 26.*R*(V+92.))
			V += dt * dV
			R += dt * dR
			if vprev2 <= vprev1 && vprev1 >= V && vprev1 > 20. {
				spikes++
			}
			vprev2, vprev1 = vprev1, V
		}
		vs[i], rs[i], p1s[i], p2s[i] = V, R, vprev1, vprev2
		outV[i] = V
		outSpike[i] = boolToFloat(spikes > 0)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
