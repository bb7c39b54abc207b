package control

import (
	"math"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logutil "consensus-engine/logging"
)

func TestControllerDelay(t *testing.T) {
	p := DefaultParams()
	p.DelayTicks = 2
	c := NewController("a", NewIDM(p), p, logr.Discard())

	speeds := []float64{0, 15, 30, 30, 30}
	// the law sees the frame from two ticks ago, or the first one while warming up
	want := []float64{1, 1, 1, 1 - math.Pow(0.5, 4), 0}
	for tick, v := range speeds {
		f := mustFrame(t, uint64(tick), Snapshot{ID: "a", Speed: v, Headway: 100})
		cmd, err := c.Command(f)
		require.NoError(t, err)
		assert.InDelta(t, want[tick], cmd.Accel, 1e-12, "tick %d", tick)
	}
}

func TestControllerFailsafeUsesCurrentState(t *testing.T) {
	p := DefaultParams()
	p.DelayTicks = 1
	p.Failsafes = []FailsafeMode{FailsafeInstantaneous}
	c := NewController("a", constLaw{v: 0}, p, logr.Discard())

	_, err := c.Command(mustFrame(t, 0,
		Snapshot{ID: "a", Speed: 10, Headway: 50, Leader: "b"}, Snapshot{ID: "b", Speed: 10}))
	require.NoError(t, err)

	cmd, err := c.Command(mustFrame(t, 1,
		Snapshot{ID: "a", Speed: 10, Headway: 1, Leader: "b"}, Snapshot{ID: "b", Speed: 10}))
	require.NoError(t, err)
	assert.True(t, cmd.Failsafe)
	assert.InDelta(t, -100.0, cmd.Accel, 1e-9)
	assert.Equal(t, 0.0, cmd.Raw)
}

func TestControllerFailsafeChain(t *testing.T) {
	p := DefaultParams()
	p.Failsafes = []FailsafeMode{FailsafeNone, FailsafeFeasibleAccel}
	p.MaxAccel, p.MaxDecel = 0.5, 2
	c := NewController("a", NewIDM(p), p, logutil.NewTestLogger())

	cmd, err := c.Command(mustFrame(t, 0, Snapshot{ID: "a", Headway: 100}))
	require.NoError(t, err)
	assert.Equal(t, Command{ID: "a", Accel: 0.5, Raw: 1, Failsafe: true}, cmd)
}

func TestControllerNoise(t *testing.T) {
	p := DefaultParams()
	p.Noise = 0.2
	p.Seed = 7
	f := mustFrame(t, 0, Snapshot{ID: "a", Headway: 100})

	c1 := NewController("a", NewIDM(p), p, logr.Discard())
	c2 := NewController("a", NewIDM(p), p, logr.Discard())
	var differs bool
	for range 10 {
		x, err := c1.Command(f)
		require.NoError(t, err)
		y, err := c2.Command(f)
		require.NoError(t, err)
		assert.Equal(t, x, y)
		assert.Equal(t, 1.0, x.Raw)
		differs = differs || x.Accel != x.Raw
	}
	assert.True(t, differs)
}

func TestControllerCheckpoint(t *testing.T) {
	p := DefaultParams()
	p.CHeadway = 0.1
	p.ResyncInterval = 2
	p.DelayTicks = 1
	p.Noise = 0.2
	p.Seed = 3

	frame := func(tick int, speed float64) *Frame {
		snaps := line(3)
		for i := range snaps {
			snaps[i].Speed = speed + float64(i)
			snaps[i].Position2D[0] += speed * float64(i)
		}
		return mustFrame(t, uint64(tick), snaps...)
	}

	c := NewController("a", NewBoundedConsensus(p), p, logr.Discard())
	twin := NewController("a", NewBoundedConsensus(p), p, logr.Discard())
	for _, ctrl := range []*Controller{c, twin} {
		_, err := ctrl.Command(frame(0, 5))
		require.NoError(t, err)
	}

	restore := c.Checkpoint()
	for tick := 1; tick < 4; tick++ {
		_, err := c.Command(frame(tick, 40))
		require.NoError(t, err)
	}
	restore()
	assert.Equal(t, uint64(1), c.Law().(*BoundedConsensus).Ticks())

	for tick := 1; tick < 5; tick++ {
		want, err := twin.Command(frame(tick, 6))
		require.NoError(t, err)
		got, err := c.Command(frame(tick, 6))
		require.NoError(t, err)
		assert.Equal(t, want, got, "tick %d", tick)
	}
}

func TestControllerDefer(t *testing.T) {
	p := DefaultParams()
	p.Failsafes = []FailsafeMode{FailsafeFeasibleAccel}
	p.MaxAccel, p.MaxDecel = 1, 1
	p.Noise = 1
	c := NewController("a", SimDefault{}, p, logr.Discard())
	cmd, err := c.Command(mustFrame(t, 0, Snapshot{ID: "a"}))
	require.NoError(t, err)
	assert.Equal(t, Command{ID: "a", Defer: true}, cmd)
}

func TestControllerErrors(t *testing.T) {
	p := DefaultParams()

	c := NewController("a", constLaw{v: math.NaN()}, p, logr.Discard())
	_, err := c.Command(mustFrame(t, 0, Snapshot{ID: "a"}))
	assert.ErrorIs(t, err, ErrNonFinite)

	c = NewController("a", constLaw{v: math.Inf(-1)}, p, logr.Discard())
	_, err = c.Command(mustFrame(t, 0, Snapshot{ID: "a"}))
	assert.ErrorIs(t, err, ErrNonFinite)

	c = NewController("z", NewIDM(p), p, logr.Discard())
	_, err = c.Command(mustFrame(t, 0, Snapshot{ID: "a"}))
	assert.ErrorIs(t, err, ErrUnknownVehicle)

	c = NewController("a", NewGlobalConsensus(p), p, logr.Discard())
	_, err = c.Command(mustFrame(t, 0, Snapshot{ID: "a"}))
	assert.ErrorIs(t, err, ErrFleetTooSmall)
	assert.ErrorContains(t, err, "vehicle a")
}

func TestControllerAcceptsSource(t *testing.T) {
	p := DefaultParams()
	c := NewController("idm_0", NewIDM(p), p, logr.Discard())
	cmd, err := c.Command(newMapSource(0.1, ring(3, 300, 0)...))
	require.NoError(t, err)
	// s* = s0 at standstill
	assert.InDelta(t, 1-Pow2(DefaultS0/100), cmd.Accel, 1e-12)
}
