package control

import (
	"github.com/samber/lo"
)

// failsafe corrects a command using the current (not delayed) state of self.
type failsafe func(accel float64, self Snapshot, f *Frame, p Params) float64

var failsafes = map[FailsafeMode]failsafe{
	FailsafeNone:          func(accel float64, _ Snapshot, _ *Frame, _ Params) float64 { return accel },
	FailsafeInstantaneous: instantaneousFailsafe,
	FailsafeSafeVelocity:  safeVelocityFailsafe,
	FailsafeFeasibleAccel: feasibleAccelFailsafe,
}

// instantaneousFailsafe stops the vehicle within one tick when, assuming the
// leader halts now, the distance covered next tick would reach it.
func instantaneousFailsafe(accel float64, self Snapshot, f *Frame, _ Params) float64 {
	if _, ok := f.Vehicle(self.Leader); !ok {
		return accel
	}
	dt := f.TickDuration()
	v := self.Speed
	next := v + accel*dt
	if next <= 0 {
		return accel
	}
	// the last two terms cover the distance travelled before braking takes hold
	if self.Headway < dt*next+v*failsafeReactionTimeFactor+0.5*v*dt {
		return -v / dt
	}
	return accel
}

// safeVelocityFailsafe caps next-tick speed at the largest value from which
// the vehicle can still stop behind its leader.
func safeVelocityFailsafe(accel float64, self Snapshot, f *Frame, p Params) float64 {
	lead, ok := f.Vehicle(self.Leader)
	if !ok {
		return accel
	}
	dt := f.TickDuration()
	v := self.Speed
	delay := float64(p.DelayTicks) * dt
	vSafe := 2*self.Headway/dt + (lead.Speed - v) - v*(2*delay)
	if v+accel*dt <= vSafe {
		return accel
	}
	if vSafe > 0 {
		return (vSafe - v) / dt
	}
	return -v / dt
}

func feasibleAccelFailsafe(accel float64, _ Snapshot, _ *Frame, p Params) float64 {
	return lo.Clamp(accel, -p.MaxDecel, p.MaxAccel)
}
