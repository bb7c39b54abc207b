package control

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// VehicleID identifies one vehicle for the lifetime of a simulation.
type VehicleID = string

// Snapshot is the read-only kinematic state of one vehicle at the end of the
// previous tick.
type Snapshot struct {
	ID         VehicleID
	Slot       int // topology slot assigned at vehicle creation
	Speed      float64
	PrevSpeed  float64
	Position   float64 // arc length along the route
	Position2D [2]float64
	Headway    float64
	Leader     VehicleID // empty when there is no vehicle ahead
}

// HasLeader reports whether the simulator reported a vehicle ahead.
func (s Snapshot) HasLeader() bool { return s.Leader != "" }

// Accel is the finite-difference acceleration over the last tick.
func (s Snapshot) Accel(dt float64) float64 { return (s.Speed - s.PrevSpeed) / dt }

// Source is the kinematic query surface of the simulator. Implementations
// must return IDs in a stable order; Frame uses lexicographic order.
type Source interface {
	IDs() []VehicleID
	Speed(id VehicleID) float64
	PrevSpeed(id VehicleID) float64
	Position(id VehicleID) float64
	Position2D(id VehicleID) [2]float64
	Headway(id VehicleID) float64
	Leader(id VehicleID) (VehicleID, bool)
	Slot(id VehicleID) int
	TickDuration() float64
}

// Frame is an immutable copy of every vehicle's state for one tick. Laws only
// ever see a Frame, so no controller can observe another vehicle's
// partially-advanced state.
type Frame struct {
	tick  uint64
	dt    float64
	ids   []VehicleID
	index map[VehicleID]int
	vehs  []Snapshot
}

// NewFrame copies snaps into a frame ordered by vehicle id.
func NewFrame(tick uint64, dt float64, snaps []Snapshot) (*Frame, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("tick duration must be positive, got %v", dt)
	}
	vehs := make([]Snapshot, len(snaps))
	copy(vehs, snaps)
	sort.SliceStable(vehs, func(i, j int) bool { return vehs[i].ID < vehs[j].ID })

	f := &Frame{
		tick:  tick,
		dt:    dt,
		ids:   make([]VehicleID, len(vehs)),
		index: make(map[VehicleID]int, len(vehs)),
		vehs:  vehs,
	}
	for i, v := range vehs {
		if v.ID == "" {
			return nil, fmt.Errorf("snapshot %d has an empty id", i)
		}
		if _, dup := f.index[v.ID]; dup {
			return nil, fmt.Errorf("duplicate vehicle %q", v.ID)
		}
		f.ids[i] = v.ID
		f.index[v.ID] = i
	}
	return f, nil
}

// Freeze returns src as a Frame, copying it unless it already is one.
func Freeze(tick uint64, src Source) (*Frame, error) {
	if f, ok := src.(*Frame); ok {
		return f, nil
	}
	ids := src.IDs()
	snaps := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		leader, _ := src.Leader(id)
		snaps = append(snaps, Snapshot{
			ID:         id,
			Slot:       src.Slot(id),
			Speed:      src.Speed(id),
			PrevSpeed:  src.PrevSpeed(id),
			Position:   src.Position(id),
			Position2D: src.Position2D(id),
			Headway:    src.Headway(id),
			Leader:     leader,
		})
	}
	return NewFrame(tick, src.TickDuration(), snaps)
}

func (f *Frame) Tick() uint64          { return f.tick }
func (f *Frame) TickDuration() float64 { return f.dt }
func (f *Frame) Len() int              { return len(f.vehs) }

// IDs returns vehicle ids in lexicographic order. The slice is shared; do not modify it.
func (f *Frame) IDs() []VehicleID { return f.ids }

// Vehicles returns the snapshots in id order. The slice is shared; do not modify it.
func (f *Frame) Vehicles() []Snapshot { return f.vehs }

// Vehicle looks up one snapshot.
func (f *Frame) Vehicle(id VehicleID) (Snapshot, bool) {
	i, ok := f.index[id]
	if !ok {
		return Snapshot{}, false
	}
	return f.vehs[i], true
}

func (f *Frame) Speed(id VehicleID) float64         { s, _ := f.Vehicle(id); return s.Speed }
func (f *Frame) PrevSpeed(id VehicleID) float64     { s, _ := f.Vehicle(id); return s.PrevSpeed }
func (f *Frame) Position(id VehicleID) float64      { s, _ := f.Vehicle(id); return s.Position }
func (f *Frame) Position2D(id VehicleID) [2]float64 { s, _ := f.Vehicle(id); return s.Position2D }
func (f *Frame) Headway(id VehicleID) float64       { s, _ := f.Vehicle(id); return s.Headway }
func (f *Frame) Slot(id VehicleID) int              { s, _ := f.Vehicle(id); return s.Slot }
func (f *Frame) Leader(id VehicleID) (VehicleID, bool) {
	s, ok := f.Vehicle(id)
	if !ok || !s.HasLeader() {
		return "", false
	}
	return s.Leader, true
}

// SlotFromID derives a topology slot from a trailing numeric suffix such as
// "idm_7". The snapshot decoder uses it for vehicles sent without a slot;
// laws never parse ids.
func SlotFromID(id VehicleID) (int, bool) {
	i := strings.LastIndexFunc(id, func(r rune) bool { return r < '0' || r > '9' })
	suffix := id[i+1:]
	if suffix == "" {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}
