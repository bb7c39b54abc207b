package control

import (
	logutil "consensus-engine/logging"
)

// TopologyConsensus is the headway-only bounded consensus law used on loop
// intersections. A fixed parity bias breaks the symmetry between vehicles
// arriving at the crossing together.
type TopologyConsensus struct {
	v0, a float64
	cache *neighborCache
}

func NewTopologyConsensus(p Params) *TopologyConsensus {
	return &TopologyConsensus{
		v0:    p.V0,
		a:     p.A,
		cache: newNeighborCache(p.NeighborCount, p.ResyncInterval),
	}
}

func (m *TopologyConsensus) Name() string { return LawTopology }

func (m *TopologyConsensus) Accel(obs Observation) (float64, error) {
	nbs := m.cache.read(obs, LawTopology)
	terms, err := Aggregate(NeighborOf(obs.Self, obs.Frame.TickDuration()), nbs)
	if err != nil {
		return 0, err
	}
	headwayTerm := TopologyHeadwayGain * terms.Headway
	bias := parityBias(obs.Self.Slot)
	acc := m.a * (freeRoad(obs.Self.Speed, m.v0, consensusExponent) + headwayTerm + bias)
	obs.Log.V(logutil.TRACE).Info("topology consensus",
		"slot", obs.Self.Slot, "headwayTerm", headwayTerm, "bias", bias, "accel", acc)
	return acc, nil
}

func (m *TopologyConsensus) Checkpoint() func() { return m.cache.checkpoint() }

// Neighbors returns a copy of the cached neighbor set.
func (m *TopologyConsensus) Neighbors() []Neighbor { return append([]Neighbor(nil), m.cache.entries...) }

func parityBias(slot int) float64 {
	if slot%2 == 0 {
		return ParityBias
	}
	return -ParityBias
}
