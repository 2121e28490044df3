package models

// Relay publishes its summed input unchanged.
type Relay struct{}

func (Relay) Name() string        { return "Relay" }
func (Relay) Accesses() []string  { return []string{"I"} }
func (Relay) Updates() []string   { return []string{"V"} }
func (Relay) Params() []ParamSpec { return nil }
func (Relay) States() []StateSpec { return nil }
func (Relay) MaxStep() float64    { return 0 }

func (Relay) Run(f *Frame) {
	copy(f.Out["V"], f.In["I"])
}
