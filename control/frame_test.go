package control

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrameSortsByID(t *testing.T) {
	f, err := NewFrame(3, 0.1, []Snapshot{{ID: "b"}, {ID: "c"}, {ID: "a"}})
	require.NoError(t, err)
	assert.Equal(t, []VehicleID{"a", "b", "c"}, f.IDs())
	assert.Equal(t, uint64(3), f.Tick())
	assert.Equal(t, 3, f.Len())
}

func TestNewFrameErrors(t *testing.T) {
	_, err := NewFrame(0, 0, []Snapshot{{ID: "a"}})
	assert.Error(t, err)
	_, err = NewFrame(0, 0.1, []Snapshot{{ID: ""}})
	assert.Error(t, err)
	_, err = NewFrame(0, 0.1, []Snapshot{{ID: "a"}, {ID: "a"}})
	assert.ErrorContains(t, err, "duplicate")
}

func TestNewFrameCopiesInput(t *testing.T) {
	snaps := []Snapshot{{ID: "a", Speed: 1}}
	f, err := NewFrame(0, 0.1, snaps)
	require.NoError(t, err)
	snaps[0].Speed = 99
	assert.Equal(t, 1.0, f.Speed("a"))
}

func TestFreezeMatchesSource(t *testing.T) {
	snaps := ring(4, 100, 7)
	src := newMapSource(0.1, snaps[2], snaps[0], snaps[3], snaps[1])
	f, err := Freeze(5, src)
	require.NoError(t, err)

	if diff := cmp.Diff(snaps, f.Vehicles()); diff != "" {
		t.Errorf("frozen vehicles differ (-want +got):\n%s", diff)
	}
	leader, ok := f.Leader("idm_3")
	assert.True(t, ok)
	assert.Equal(t, "idm_0", leader)
	_, ok = f.Leader("missing")
	assert.False(t, ok)

	same, err := Freeze(9, f)
	require.NoError(t, err)
	assert.Same(t, f, same)
}

func TestSnapshotAccel(t *testing.T) {
	s := Snapshot{Speed: 10, PrevSpeed: 9.5}
	assert.InDelta(t, 5.0, s.Accel(0.1), 1e-12)
}

func TestSlotFromID(t *testing.T) {
	tests := []struct {
		id   string
		slot int
		ok   bool
	}{
		{"idm_7", 7, true},
		{"car12", 12, true},
		{"42", 42, true},
		{"human", 0, false},
		{"", 0, false},
		{"x99999999999999999999999", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			slot, ok := SlotFromID(tt.id)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.slot, slot)
		})
	}
}
