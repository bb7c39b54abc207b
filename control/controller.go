package control

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/stat/distuv"

	logutil "consensus-engine/logging"
	"consensus-engine/metrics"
)

// Command is the executed acceleration for one vehicle and one tick.
type Command struct {
	ID    VehicleID
	Accel float64
	Raw   float64 // law output before noise and failsafes
	// Defer asks the simulator to apply its own car-following model.
	Defer bool
	// Failsafe is set when a failsafe changed the value.
	Failsafe bool
}

// Controller wraps a Law with actuation delay, noise and failsafes. It owns
// the law's state and must only be driven for the vehicle it was built for.
type Controller struct {
	id      VehicleID
	law     Law
	params  Params
	history []*Frame
	src     *rand.PCG
	noise   *distuv.Normal
	ticks   uint64
	log     logr.Logger
}

// NewController builds a controller for vehicle id around law.
func NewController(id VehicleID, law Law, p Params, logger logr.Logger) *Controller {
	c := &Controller{
		id:     id,
		law:    law,
		params: p,
		log:    logger.WithValues("vehicle", id, "law", law.Name()),
	}
	if p.Noise > 0 {
		h := fnv.New64a()
		h.Write([]byte(id))
		c.src = rand.NewPCG(p.Seed, h.Sum64())
		c.noise = &distuv.Normal{Mu: 0, Sigma: p.Noise, Src: c.src}
	}
	return c
}

func (c *Controller) ID() VehicleID { return c.id }
func (c *Controller) Law() Law      { return c.law }

// Checkpoint captures the delay history, the noise stream and the law state.
// Calling the returned func undoes every Command made since.
func (c *Controller) Checkpoint() (restore func()) {
	history := slices.Clone(c.history)
	ticks := c.ticks
	var src rand.PCG
	if c.src != nil {
		src = *c.src
	}
	restoreLaw := func() {}
	if cp, ok := c.law.(Checkpointer); ok {
		restoreLaw = cp.Checkpoint()
	}
	return func() {
		c.history, c.ticks = history, ticks
		if c.src != nil {
			*c.src = src
		}
		restoreLaw()
	}
}

// observe records f and returns the frame DelayTicks ticks old, or the
// oldest one held while the history is still filling.
func (c *Controller) observe(f *Frame) *Frame {
	c.history = append(c.history, f)
	if extra := len(c.history) - (c.params.DelayTicks + 1); extra > 0 {
		c.history = c.history[extra:]
	}
	return c.history[0]
}

// Command computes this tick's command from src.
func (c *Controller) Command(src Source) (Command, error) {
	frame, err := Freeze(c.ticks, src)
	if err != nil {
		return Command{}, err
	}
	c.ticks++

	current, ok := frame.Vehicle(c.id)
	if !ok {
		return Command{}, fmt.Errorf("vehicle %s: %w", c.id, ErrUnknownVehicle)
	}
	observed := c.observe(frame)
	self, ok := observed.Vehicle(c.id)
	if !ok {
		// inserted after the delayed frame was taken
		observed, self = frame, current
	}

	raw, err := c.law.Accel(Observation{Self: self, Frame: observed, Log: c.log})
	if errors.Is(err, ErrDefer) {
		return Command{ID: c.id, Defer: true}, nil
	}
	if err != nil {
		return Command{}, fmt.Errorf("vehicle %s: %w", c.id, err)
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		metrics.NonFinite.WithLabelValues(c.law.Name()).Inc()
		return Command{}, fmt.Errorf("vehicle %s: %w (%v)", c.id, ErrNonFinite, raw)
	}

	accel := raw
	if c.noise != nil {
		accel += c.noise.Rand()
	}

	engaged := false
	for _, mode := range c.params.Failsafes {
		fs, ok := failsafes[mode]
		if !ok {
			continue
		}
		corrected := fs(accel, current, frame, c.params)
		if corrected != accel {
			engaged = true
			metrics.FailsafeInterventions.WithLabelValues(string(mode)).Inc()
			c.log.V(logutil.DEBUG).Info("failsafe engaged", "mode", mode, "from", accel, "to", corrected)
			accel = corrected
		}
	}

	return Command{ID: c.id, Accel: accel, Raw: raw, Failsafe: engaged}, nil
}
