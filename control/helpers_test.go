package control

import (
	"fmt"
	"math"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

// ring places n vehicles evenly on a circle of the given length, each
// following the one ahead of it.
func ring(n int, length, speed float64) []Snapshot {
	snaps := make([]Snapshot, n)
	gap := length / float64(n)
	radius := length / (2 * math.Pi)
	for i := range snaps {
		theta := 2 * math.Pi * float64(i) / float64(n)
		snaps[i] = Snapshot{
			ID:         fmt.Sprintf("idm_%d", i),
			Slot:       i,
			Speed:      speed,
			PrevSpeed:  speed,
			Position:   float64(i) * gap,
			Position2D: [2]float64{radius * math.Cos(theta), radius * math.Sin(theta)},
			Headway:    gap,
			Leader:     fmt.Sprintf("idm_%d", (i+1)%n),
		}
	}
	return snaps
}

func mustFrame(t *testing.T, tick uint64, snaps ...Snapshot) *Frame {
	t.Helper()
	f, err := NewFrame(tick, DefaultTickDuration, snaps)
	require.NoError(t, err)
	return f
}

func observe(t *testing.T, f *Frame, id VehicleID) Observation {
	t.Helper()
	self, ok := f.Vehicle(id)
	require.True(t, ok, "vehicle %s", id)
	return Observation{Self: self, Frame: f, Log: logr.Discard()}
}

// mapSource is a mutable Source keyed by id.
type mapSource struct {
	dt   float64
	vehs map[VehicleID]Snapshot
	ids  []VehicleID
}

func newMapSource(dt float64, snaps ...Snapshot) *mapSource {
	s := &mapSource{dt: dt, vehs: make(map[VehicleID]Snapshot)}
	for _, v := range snaps {
		s.vehs[v.ID] = v
		s.ids = append(s.ids, v.ID)
	}
	return s
}

func (s *mapSource) IDs() []VehicleID                   { return s.ids }
func (s *mapSource) Speed(id VehicleID) float64         { return s.vehs[id].Speed }
func (s *mapSource) PrevSpeed(id VehicleID) float64     { return s.vehs[id].PrevSpeed }
func (s *mapSource) Position(id VehicleID) float64      { return s.vehs[id].Position }
func (s *mapSource) Position2D(id VehicleID) [2]float64 { return s.vehs[id].Position2D }
func (s *mapSource) Headway(id VehicleID) float64       { return s.vehs[id].Headway }
func (s *mapSource) Slot(id VehicleID) int              { return s.vehs[id].Slot }
func (s *mapSource) TickDuration() float64              { return s.dt }
func (s *mapSource) Leader(id VehicleID) (VehicleID, bool) {
	l := s.vehs[id].Leader
	return l, l != ""
}

// constLaw returns a fixed value.
type constLaw struct{ v float64 }

func (constLaw) Name() string                         { return "const" }
func (l constLaw) Accel(Observation) (float64, error) { return l.v, nil }
