package control

import (
	"math"

	"github.com/go-logr/logr"
)

// Law computes the raw acceleration of one vehicle. Stateful laws keep their
// state in the instance, so every vehicle owns its own Law value.
type Law interface {
	Name() string
	Accel(obs Observation) (float64, error)
}

// Checkpointer is implemented by laws that keep state across ticks. The
// returned func puts the law back to the state it had when Checkpoint ran.
type Checkpointer interface {
	Checkpoint() (restore func())
}

// Observation is what a law may look at during one tick.
type Observation struct {
	Self  Snapshot
	Frame *Frame
	Log   logr.Logger
}

// Leader returns the snapshot of the vehicle ahead, if the simulator reported
// one and it is present in the frame.
func (o Observation) Leader() (Snapshot, bool) {
	if !o.Self.HasLeader() || o.Frame == nil {
		return Snapshot{}, false
	}
	return o.Frame.Vehicle(o.Self.Leader)
}

// freeRoad is the leading term shared by IDM and the consensus laws.
func freeRoad(v, v0, delta float64) float64 {
	return 1 - math.Pow(v/v0, delta)
}
