package control

// SimDefault leaves longitudinal control to the simulator's built-in model.
// Noise and failsafes are not applied to it.
type SimDefault struct{}

func (SimDefault) Name() string { return LawSimDefault }

func (SimDefault) Accel(Observation) (float64, error) { return 0, ErrDefer }
