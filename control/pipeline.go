package control

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	logutil "consensus-engine/logging"
	"consensus-engine/metrics"
)

// TickResult holds one command per vehicle, in frame id order.
type TickResult struct {
	Tick     uint64
	Commands []Command
}

// Pipeline keeps one Controller per vehicle and evaluates all of them
// against the same frozen frame each tick.
type Pipeline struct {
	law         string
	params      Params
	ctrls       map[VehicleID]*Controller
	tick        uint64
	parallelism int
	log         logr.Logger
}

type Option func(*Pipeline)

// WithParallelism evaluates up to n controllers concurrently. Results do not
// depend on n because every controller reads the same immutable frame.
func WithParallelism(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

func WithLogger(logger logr.Logger) Option {
	return func(p *Pipeline) { p.log = logger }
}

// NewPipeline validates the law configuration up front so a bad config
// fails before the first tick.
func NewPipeline(law string, params Params, opts ...Option) (*Pipeline, error) {
	if _, err := New(law, params); err != nil {
		return nil, err
	}
	p := &Pipeline{
		law:         law,
		params:      params,
		ctrls:       make(map[VehicleID]*Controller),
		parallelism: 1,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pipeline) Law() string { return p.law }
func (p *Pipeline) Tick() uint64 { return p.tick }

// Controller returns the controller of id, if the vehicle has been seen.
func (p *Pipeline) Controller(id VehicleID) (*Controller, bool) {
	c, ok := p.ctrls[id]
	return c, ok
}

// Step computes commands for every vehicle in src. Vehicles that appear get
// a fresh controller; vehicles that left are forgotten. A failed step leaves
// the pipeline and every controller as they were before the call.
func (p *Pipeline) Step(ctx context.Context, src Source) (TickResult, error) {
	if err := ctx.Err(); err != nil {
		return TickResult{}, err
	}
	start := time.Now()

	frame, err := Freeze(p.tick, src)
	if err != nil {
		return TickResult{}, fmt.Errorf("tick %d: %w", p.tick, err)
	}
	ids := frame.IDs()
	if n := len(ids); n > 0 && n < minFleetSize(p.law) {
		return TickResult{}, fmt.Errorf("tick %d: %w: %s with %d vehicle(s)", p.tick, ErrFleetTooSmall, p.law, n)
	}

	ctrls, restores := p.stage(ids)
	cmds := make([]Command, len(ids))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, ctrl := range ctrls {
		g.Go(func() error {
			cmd, err := ctrl.Command(frame)
			if err != nil {
				return err
			}
			cmds[i] = cmd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, restore := range restores {
			restore()
		}
		return TickResult{}, fmt.Errorf("tick %d: %w", p.tick, err)
	}
	p.commit(ctrls)

	for _, cmd := range cmds {
		outcome := "applied"
		switch {
		case cmd.Defer:
			outcome = "deferred"
		case cmd.Failsafe:
			outcome = "failsafe"
		}
		metrics.Commands.WithLabelValues(p.law, outcome).Inc()
	}
	metrics.Ticks.Inc()
	metrics.FleetSize.Set(float64(len(ids)))
	metrics.StepDuration.Observe(time.Since(start).Seconds())

	res := TickResult{Tick: p.tick, Commands: cmds}
	p.tick++
	return res, nil
}

// stage returns the controllers for ids, building fresh ones for new
// vehicles without registering them, and checkpoints the existing ones.
func (p *Pipeline) stage(ids []VehicleID) ([]*Controller, []func()) {
	ctrls := make([]*Controller, len(ids))
	var restores []func()
	for i, id := range ids {
		if c, ok := p.ctrls[id]; ok {
			ctrls[i] = c
			restores = append(restores, c.Checkpoint())
			continue
		}
		// params were validated in NewPipeline
		ctrls[i] = NewController(id, registry[p.law](p.params), p.params, p.log)
	}
	return ctrls, restores
}

// commit makes ctrls the fleet.
func (p *Pipeline) commit(ctrls []*Controller) {
	next := make(map[VehicleID]*Controller, len(ctrls))
	for _, c := range ctrls {
		next[c.ID()] = c
		if _, ok := p.ctrls[c.ID()]; !ok {
			p.log.V(logutil.VERBOSE).Info("vehicle joined", "vehicle", c.ID(), "tick", p.tick)
		}
	}
	for id := range p.ctrls {
		if _, ok := next[id]; !ok {
			p.log.V(logutil.VERBOSE).Info("vehicle left", "vehicle", id, "tick", p.tick)
		}
	}
	p.ctrls = next
}
