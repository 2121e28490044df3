package models

// AlphaSynapse produces an alpha-function conductance in response to
// presynaptic spikes: g = gmax * z with z'' = -(ar+ad) z' - ar*ad*z and each
// spike adding ar*ad to z'. Rates are in 1/s.
type AlphaSynapse struct{}

func (AlphaSynapse) Name() string       { return "AlphaSynapse" }
func (AlphaSynapse) Accesses() []string { return []string{"spike_state"} }
func (AlphaSynapse) Updates() []string  { return []string{"g"} }
func (AlphaSynapse) MaxStep() float64   { return 1e-5 }

func (AlphaSynapse) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "ar", Default: 110},
		{Name: "ad", Default: 190},
		{Name: "gmax", Default: 1},
	}
}

func (AlphaSynapse) States() []StateSpec {
	return []StateSpec{{Name: "z"}, {Name: "dz"}, {Name: "d2z"}}
}

func (AlphaSynapse) Run(f *Frame) {
	spk := f.In["spike_state"]
	ar, ad, gmax := f.P["ar"], f.P["ad"], f.P["gmax"]
	zs, dzs, d2zs := f.S["z"], f.S["dz"], f.S["d2z"]
	g := f.Out["g"]
	for i := 0; i < f.N; i++ {
		z, dz, d2z := zs[i], dzs[i], d2zs[i]
		for j := 0; j < f.Steps; j++ {
			nz := z + f.DDT*dz
			ndz := dz + f.DDT*d2z
			// The round's spike arrives once, at the first sub-step.
			if j == 0 && spk[i] > 0 {
				ndz += ar[i] * ad[i]
			}
			d2z = -(ar[i]+ad[i])*dz - ar[i]*ad[i]*z
			z, dz = nz, ndz
		}
		zs[i], dzs[i], d2zs[i] = z, dz, d2z
		g[i] = z * gmax[i]
	}
}
