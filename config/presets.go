package config

import (
	"fmt"

	"consensus-engine/control"
)

const (
	presetVehicles = 20
	presetMaxAccel = 2.0
	presetMaxDecel = 2.0
	presetV0       = 30.0
)

// RingPreset is the 20-vehicle ring experiment. law must be the baseline or
// one of the consensus laws.
func RingPreset(law string) (Config, error) {
	switch law {
	case control.LawSelfRegulating, control.LawGlobal, control.LawBounded:
	default:
		return Config{}, fmt.Errorf("ring preset does not support law %q", law)
	}
	cfg := preset(law)
	cfg.Controller.Params.CHeadway = 0.01
	cfg.Controller.Params.CVelocity = 0.01
	cfg.Controller.Params.CAcceleration = 0.001
	return cfg, nil
}

// FigureEightPreset is the figure-eight experiment with the topology law.
func FigureEightPreset() Config {
	cfg := preset(control.LawTopology)
	cfg.Controller.Params.CHeadway = 0.001
	cfg.Controller.Params.NeighborCount = control.DefaultTopologyNeighbors
	return cfg
}

// Presets lists the named presets accepted by Preset.
func Presets() []string {
	return []string{"ring", "ring_consensus", "ring_bounded", "figure_eight"}
}

// Preset resolves a preset by name.
func Preset(name string) (Config, error) {
	switch name {
	case "ring":
		return RingPreset(control.LawSelfRegulating)
	case "ring_consensus":
		return RingPreset(control.LawGlobal)
	case "ring_bounded":
		return RingPreset(control.LawBounded)
	case "figure_eight":
		return FigureEightPreset(), nil
	}
	return Config{}, fmt.Errorf("unknown preset %q (known: %v)", name, Presets())
}

func preset(law string) Config {
	cfg := Default()
	cfg.Controller.Law = law
	cfg.Controller.Params.V0 = presetV0
	cfg.Controller.Params.A = presetMaxAccel
	cfg.Controller.Params.MaxAccel = presetMaxAccel
	cfg.Controller.Params.MaxDecel = presetMaxDecel
	cfg.Fleet.Size = presetVehicles
	return cfg
}
