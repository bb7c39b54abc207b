package control

import (
	"fmt"

	logutil "consensus-engine/logging"
)

// GlobalConsensus averages headway, speed and acceleration differences over
// the whole fleet every tick. Cost is O(fleet) per vehicle.
type GlobalConsensus struct {
	v0, a float64
	gains Gains
}

func NewGlobalConsensus(p Params) *GlobalConsensus {
	return &GlobalConsensus{
		v0:    p.V0,
		a:     p.A,
		gains: Gains{Headway: p.CHeadway, Velocity: p.CVelocity, Accel: p.CAcceleration},
	}
}

func (m *GlobalConsensus) Name() string { return LawGlobal }

func (m *GlobalConsensus) Accel(obs Observation) (float64, error) {
	dt := obs.Frame.TickDuration()
	others := make([]Neighbor, 0, obs.Frame.Len())
	for _, s := range obs.Frame.Vehicles() {
		if s.ID == obs.Self.ID {
			continue
		}
		others = append(others, NeighborOf(s, dt))
	}
	if len(others) == 0 {
		return 0, fmt.Errorf("%w: fleet size %d", ErrFleetTooSmall, obs.Frame.Len())
	}

	terms, err := Aggregate(NeighborOf(obs.Self, dt), others)
	if err != nil {
		return 0, err
	}
	acc := consensusAccel(m.a, obs.Self.Speed, m.v0, m.gains, terms)
	obs.Log.V(logutil.TRACE).Info("consensus",
		"vehicles", obs.Frame.Len(),
		"headwayTerm", m.gains.Headway*terms.Headway,
		"velocityTerm", m.gains.Velocity*terms.Velocity,
		"accelTerm", m.gains.Accel*terms.Accel,
		"accel", acc)
	return acc, nil
}
