package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus-engine/control"
	"consensus-engine/logging"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, logging.DEFAULT, cfg.LogLevel())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "exp.yaml", `
controller:
  law: consensus_bounded
  parallelism: 4
  params:
    v0: 25
    c_headway: 0.02
    neighbor_count: 5
    resync_interval: 10
    failsafe: [safe_velocity, feasible_accel]
    max_accel: 2
    max_decel: 3
fleet:
  size: 22
  tick_duration: 0.05
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, control.LawBounded, cfg.Controller.Law)
	assert.Equal(t, 4, cfg.Controller.Parallelism)
	assert.Equal(t, 25.0, cfg.Controller.Params.V0)
	// unset keys keep their defaults
	assert.Equal(t, control.DefaultA, cfg.Controller.Params.A)
	assert.Equal(t, []control.FailsafeMode{control.FailsafeSafeVelocity, control.FailsafeFeasibleAccel}, cfg.Controller.Params.Failsafes)
	assert.Equal(t, 22, cfg.ControllerParams().FleetSize)
	assert.Equal(t, 0.05, cfg.Fleet.TickDuration)
	assert.Equal(t, logging.DEBUG, cfg.LogLevel())
	assert.Equal(t, DefaultUDPPort, cfg.Server.UDPPort)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "exp.json", `{"controller": {"law": "baseline", "parallelism": 1}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, control.LawSelfRegulating, cfg.Controller.Law)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "exp.yaml", "controller:\n  law: idm\n  params:\n    v0: 20\n")
	t.Setenv("CONSENSUS_LAW", "consensus")
	t.Setenv("CONSENSUS_V0", "35")
	t.Setenv("CONSENSUS_FAILSAFE", "instantaneous, safe_velocity")
	t.Setenv("CONSENSUS_SEED", "42")
	t.Setenv("CONSENSUS_UDP_PORT", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, control.LawGlobal, cfg.Controller.Law)
	assert.Equal(t, 35.0, cfg.Controller.Params.V0)
	assert.Equal(t, []control.FailsafeMode{control.FailsafeInstantaneous, control.FailsafeSafeVelocity}, cfg.Controller.Params.Failsafes)
	assert.Equal(t, uint64(42), cfg.Controller.Params.Seed)
	assert.Equal(t, 5000, cfg.Server.UDPPort)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "unknown law", body: "controller:\n  law: pid\n"},
		{name: "single vehicle consensus", body: "controller:\n  law: consensus\nfleet:\n  size: 1\n"},
		{name: "bad tick", body: "fleet:\n  tick_duration: 0\n"},
		{name: "bad log level", body: "log:\n  level: loud\n"},
		{name: "bad port", body: "server:\n  udp_port: 70000\n"},
		{name: "malformed env", body: "", env: map[string]string{"CONSENSUS_NOISE": "lots"}},
		{name: "unparseable file", body: "controller: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, "exp.yaml", tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPresets(t *testing.T) {
	for _, name := range Presets() {
		cfg, err := Preset(name)
		require.NoError(t, err, name)
		assert.NoError(t, cfg.Validate(), name)
		assert.Equal(t, presetVehicles, cfg.Fleet.Size)
	}

	fig := FigureEightPreset()
	assert.Equal(t, control.LawTopology, fig.Controller.Law)
	assert.Equal(t, control.DefaultTopologyNeighbors, fig.Controller.Params.NeighborCount)

	ring, err := RingPreset(control.LawGlobal)
	require.NoError(t, err)
	assert.Equal(t, 0.001, ring.Controller.Params.CAcceleration)

	_, err = RingPreset(control.LawIDM)
	assert.Error(t, err)
	_, err = Preset("highway")
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := FigureEightPreset()
	data, err := cfg.Marshal()
	require.NoError(t, err)
	loaded, err := Load(writeFile(t, "out.yaml", string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromPreset(t *testing.T) {
	base := FigureEightPreset()
	path := writeFile(t, "exp.yaml", "fleet:\n  size: 14\n")
	cfg, err := LoadFrom(base, path)
	require.NoError(t, err)
	assert.Equal(t, control.LawTopology, cfg.Controller.Law)
	assert.Equal(t, 14, cfg.Fleet.Size)
	assert.Equal(t, presetVehicles, base.Fleet.Size)
}
