package control

import (
	"math"

	logutil "consensus-engine/logging"
)

// SelfRegulating is the baseline law: relax toward v0 and, when the leader is
// close, toward the leader's speed. It has no minimum-gap term.
type SelfRegulating struct {
	v0 float64
	a  float64
}

func NewSelfRegulating(p Params) *SelfRegulating {
	return &SelfRegulating{v0: p.V0, a: p.A}
}

func (m *SelfRegulating) Name() string { return LawSelfRegulating }

func (m *SelfRegulating) Accel(obs Observation) (float64, error) {
	v := obs.Self.Speed
	desired := 1 - v/m.v0

	slowing := 0.0
	if lead, ok := obs.Leader(); ok {
		if math.Abs(lead.Position-obs.Self.Position) < ProximityThreshold {
			slowing = v - lead.Speed
		}
	}

	acc := m.a * (desired + slowing)
	obs.Log.V(logutil.TRACE).Info("baseline", "desired", desired, "slowing", slowing, "accel", acc)
	return acc, nil
}
