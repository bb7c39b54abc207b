package control

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineStep(t *testing.T) {
	p := DefaultParams()
	pl, err := NewPipeline(LawIDM, p)
	require.NoError(t, err)

	res, err := pl.Step(context.Background(), newMapSource(0.1, ring(3, 300, 0)...))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Tick)
	require.Len(t, res.Commands, 3)
	for i, id := range []VehicleID{"idm_0", "idm_1", "idm_2"} {
		assert.Equal(t, id, res.Commands[i].ID)
	}
	assert.Equal(t, uint64(1), pl.Tick())
	assert.Equal(t, LawIDM, pl.Law())
}

func TestPipelineFleetChanges(t *testing.T) {
	pl, err := NewPipeline(LawBounded, DefaultParams())
	require.NoError(t, err)
	ctx := context.Background()

	snaps := ring(4, 100, 5)
	_, err = pl.Step(ctx, mustFrame(t, 0, snaps...))
	require.NoError(t, err)
	c0, ok := pl.Controller("idm_0")
	require.True(t, ok)

	res, err := pl.Step(ctx, mustFrame(t, 1, snaps[:3]...))
	require.NoError(t, err)
	assert.Len(t, res.Commands, 3)
	_, ok = pl.Controller("idm_3")
	assert.False(t, ok)

	again, _ := pl.Controller("idm_0")
	assert.Same(t, c0, again)
	assert.Equal(t, uint64(2), c0.Law().(*BoundedConsensus).Ticks())
}

func TestPipelineParallelMatchesSequential(t *testing.T) {
	p := DefaultParams()
	p.CHeadway, p.CVelocity, p.CAcceleration = 0.1, 0.2, 0.05
	p.NeighborCount = 3
	p.ResyncInterval = 2

	seq, err := NewPipeline(LawBounded, p)
	require.NoError(t, err)
	par, err := NewPipeline(LawBounded, p, WithParallelism(8))
	require.NoError(t, err)

	ctx := context.Background()
	snaps := ring(12, 240, 8)
	for tick := 0; tick < 5; tick++ {
		for i := range snaps {
			snaps[i].PrevSpeed = snaps[i].Speed
			snaps[i].Speed += 0.1 * float64(i%3)
			snaps[i].Headway += float64(tick) * 0.5 * float64(i%2)
		}
		f := mustFrame(t, uint64(tick), snaps...)
		a, err := seq.Step(ctx, f)
		require.NoError(t, err)
		b, err := par.Step(ctx, f)
		require.NoError(t, err)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("tick %d: parallel result differs (-seq +par):\n%s", tick, diff)
		}
	}
}

func TestPipelineErrors(t *testing.T) {
	_, err := NewPipeline("pid", DefaultParams())
	assert.ErrorIs(t, err, ErrUnknownLaw)

	pl, err := NewPipeline(LawGlobal, DefaultParams())
	require.NoError(t, err)
	_, err = pl.Step(context.Background(), mustFrame(t, 0, Snapshot{ID: "a"}))
	assert.ErrorIs(t, err, ErrFleetTooSmall)
	assert.Equal(t, uint64(0), pl.Tick())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pl.Step(ctx, mustFrame(t, 0, ring(2, 10, 0)...))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineRejectedTickLeavesStateUntouched(t *testing.T) {
	p := DefaultParams()
	p.CHeadway, p.CVelocity = 0.1, 0.2
	p.NeighborCount = 2
	p.ResyncInterval = 5
	p.Noise = 0.3
	p.Seed = 7

	clean, err := NewPipeline(LawBounded, p)
	require.NoError(t, err)
	hit, err := NewPipeline(LawBounded, p, WithParallelism(4))
	require.NoError(t, err)

	ctx := context.Background()
	snaps := ring(4, 100, 5)
	frames := make([]*Frame, 6)
	for tick := range frames {
		for i := range snaps {
			snaps[i].PrevSpeed = snaps[i].Speed
			snaps[i].Speed += 0.2 * float64(i%2)
		}
		frames[tick] = mustFrame(t, uint64(tick), snaps...)
	}
	bad := append([]Snapshot(nil), frames[0].Vehicles()...)
	bad[1].Speed = math.NaN()

	// rejected before any controller exists
	_, err = hit.Step(ctx, mustFrame(t, 0, bad...))
	require.ErrorIs(t, err, ErrNonFinite)
	assert.Equal(t, uint64(0), hit.Tick())
	_, ok := hit.Controller("idm_0")
	assert.False(t, ok)

	for tick, f := range frames {
		if tick == 2 {
			// rejected on a resync-free tick with a warm fleet
			_, err := hit.Step(ctx, mustFrame(t, 2, bad...))
			require.ErrorIs(t, err, ErrNonFinite)
			c, _ := hit.Controller("idm_0")
			assert.Equal(t, uint64(2), c.Law().(*BoundedConsensus).Ticks())
		}
		want, err := clean.Step(ctx, f)
		require.NoError(t, err)
		got, err := hit.Step(ctx, f)
		require.NoError(t, err, "tick %d", tick)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("tick %d: result after a rejected tick differs (-clean +hit):\n%s", tick, diff)
		}
	}
}

func TestPipelineFleetTooSmall(t *testing.T) {
	for _, law := range []string{LawGlobal, LawBounded, LawTopology} {
		t.Run(law, func(t *testing.T) {
			pl, err := NewPipeline(law, DefaultParams())
			require.NoError(t, err)
			_, err = pl.Step(context.Background(), mustFrame(t, 0, ring(1, 100, 5)...))
			assert.ErrorIs(t, err, ErrFleetTooSmall)
			_, ok := pl.Controller("idm_0")
			assert.False(t, ok)
		})
	}

	pl, err := NewPipeline(LawIDM, DefaultParams())
	require.NoError(t, err)
	res, err := pl.Step(context.Background(), mustFrame(t, 0, ring(1, 100, 0)...))
	require.NoError(t, err)
	require.Len(t, res.Commands, 1)
}
