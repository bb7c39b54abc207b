package control

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"

	logutil "consensus-engine/logging"
	"consensus-engine/metrics"
)

// neighborCache holds the nearest vehicles captured at the last resync. The
// captured values are not refreshed between resyncs.
type neighborCache struct {
	count    int
	interval uint64
	counter  uint64
	entries  []Neighbor
}

func newNeighborCache(count, interval int) *neighborCache {
	if interval < 1 {
		interval = 1
	}
	return &neighborCache{count: count, interval: uint64(interval)}
}

// read rebuilds the cache on resync ticks and returns it. The counter
// advances after every read and never resets.
func (c *neighborCache) read(obs Observation, law string) []Neighbor {
	if c.counter%c.interval == 0 {
		c.entries = nearest(obs.Self, obs.Frame, c.count)
		metrics.NeighborResyncs.WithLabelValues(law).Inc()
		obs.Log.V(logutil.DEBUG).Info("neighbor resync",
			"counter", c.counter, "neighbors", lo.Map(c.entries, func(n Neighbor, _ int) VehicleID { return n.ID }))
	}
	c.counter++
	return c.entries
}

func (c *neighborCache) checkpoint() func() {
	counter, entries := c.counter, c.entries
	return func() { c.counter, c.entries = counter, entries }
}

type candidate struct {
	snap Snapshot
	dist float64
}

// nearest returns up to k vehicles closest to self in the plane. Ties keep
// the frame's id order.
func nearest(self Snapshot, f *Frame, k int) []Neighbor {
	others := lo.Filter(f.Vehicles(), func(s Snapshot, _ int) bool { return s.ID != self.ID })
	cands := lo.Map(others, func(s Snapshot, _ int) candidate {
		return candidate{snap: s, dist: floats.Distance(self.Position2D[:], s.Position2D[:], 2)}
	})
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > k {
		cands = cands[:k]
	}
	dt := f.TickDuration()
	return lo.Map(cands, func(c candidate, _ int) Neighbor { return NeighborOf(c.snap, dt) })
}

// BoundedConsensus is GlobalConsensus restricted to a cached set of the
// nearest vehicles, refreshed every ResyncInterval ticks.
type BoundedConsensus struct {
	v0, a float64
	gains Gains
	cache *neighborCache
}

func NewBoundedConsensus(p Params) *BoundedConsensus {
	return &BoundedConsensus{
		v0:    p.V0,
		a:     p.A,
		gains: Gains{Headway: p.CHeadway, Velocity: p.CVelocity, Accel: p.CAcceleration},
		cache: newNeighborCache(p.NeighborCount, p.ResyncInterval),
	}
}

func (m *BoundedConsensus) Name() string { return LawBounded }

func (m *BoundedConsensus) Accel(obs Observation) (float64, error) {
	nbs := m.cache.read(obs, LawBounded)
	terms, err := Aggregate(NeighborOf(obs.Self, obs.Frame.TickDuration()), nbs)
	if err != nil {
		return 0, err
	}
	acc := consensusAccel(m.a, obs.Self.Speed, m.v0, m.gains, terms)
	obs.Log.V(logutil.TRACE).Info("bounded consensus",
		"counter", m.cache.counter,
		"neighbors", terms.N,
		"headwayTerm", m.gains.Headway*terms.Headway,
		"velocityTerm", m.gains.Velocity*terms.Velocity,
		"accelTerm", m.gains.Accel*terms.Accel,
		"accel", acc)
	return acc, nil
}

func (m *BoundedConsensus) Checkpoint() func() { return m.cache.checkpoint() }

// Neighbors returns a copy of the cached neighbor set.
func (m *BoundedConsensus) Neighbors() []Neighbor { return append([]Neighbor(nil), m.cache.entries...) }

// Ticks returns how many times the law has been evaluated.
func (m *BoundedConsensus) Ticks() uint64 { return m.cache.counter }
