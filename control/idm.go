package control

import (
	"math"

	logutil "consensus-engine/logging"
)

// IDM is the Intelligent Driver Model (Treiber, Hennecke, Helbing 2000).
type IDM struct {
	v0, t, a, b, delta, s0 float64
}

func NewIDM(p Params) *IDM {
	return &IDM{v0: p.V0, t: p.T, a: p.A, b: p.B, delta: p.Delta, s0: p.S0}
}

func (m *IDM) Name() string { return LawIDM }

func (m *IDM) Accel(obs Observation) (float64, error) {
	v := obs.Self.Speed
	h := obs.Self.Headway
	if math.Abs(h) < MinHeadway {
		h = MinHeadway
	}

	sStar := 0.0
	if lead, ok := obs.Leader(); ok {
		sStar = m.s0 + math.Max(0, v*m.t+v*(v-lead.Speed)/(2*math.Sqrt(m.a*m.b)))
	}

	acc := m.a * (1 - math.Pow(v/m.v0, m.delta) - Pow2(sStar/h))
	obs.Log.V(logutil.TRACE).Info("idm", "headway", h, "sStar", sStar, "accel", acc)
	return acc, nil
}
