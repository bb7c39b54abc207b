package control

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// FailsafeMode selects one correction applied after the law and noise.
type FailsafeMode string

const (
	FailsafeNone          FailsafeMode = "none"
	FailsafeInstantaneous FailsafeMode = "instantaneous"
	FailsafeSafeVelocity  FailsafeMode = "safe_velocity"
	FailsafeFeasibleAccel FailsafeMode = "feasible_accel"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Params configures one controller. Values are fixed at construction.
type Params struct {
	V0    float64 `json:"v0" yaml:"v0" validate:"gt=0"`
	A     float64 `json:"a" yaml:"a" validate:"gt=0"`
	B     float64 `json:"b" yaml:"b" validate:"gt=0"`
	T     float64 `json:"T" yaml:"T" validate:"gte=0"`
	S0    float64 `json:"s0" yaml:"s0" validate:"gte=0"`
	Delta float64 `json:"delta" yaml:"delta" validate:"gt=0"`

	CHeadway      float64 `json:"c_headway" yaml:"c_headway"`
	CVelocity     float64 `json:"c_velocity" yaml:"c_velocity"`
	CAcceleration float64 `json:"c_acceleration" yaml:"c_acceleration"`

	NeighborCount  int `json:"neighbor_count" yaml:"neighbor_count" validate:"gte=0"`
	ResyncInterval int `json:"resync_interval" yaml:"resync_interval" validate:"gte=1"`

	DelayTicks int            `json:"delay_ticks" yaml:"delay_ticks" validate:"gte=0"`
	Noise      float64        `json:"noise" yaml:"noise" validate:"gte=0"`
	Failsafes  []FailsafeMode `json:"failsafe,omitempty" yaml:"failsafe,omitempty" validate:"dive,oneof=none instantaneous safe_velocity feasible_accel"`
	MaxAccel   float64        `json:"max_accel" yaml:"max_accel" validate:"gte=0"`
	MaxDecel   float64        `json:"max_decel" yaml:"max_decel" validate:"gte=0"`

	// FleetSize is the expected number of vehicles, 0 when unknown.
	FleetSize int    `json:"fleet_size" yaml:"fleet_size" validate:"gte=0"`
	Seed      uint64 `json:"seed" yaml:"seed"`
}

// DefaultParams returns the IDM defaults with no noise and no failsafe.
func DefaultParams() Params {
	return Params{
		V0:             DefaultV0,
		A:              DefaultA,
		B:              DefaultB,
		T:              DefaultT,
		S0:             DefaultS0,
		Delta:          DefaultDelta,
		NeighborCount:  DefaultNeighborCount,
		ResyncInterval: DefaultResyncInterval,
	}
}

// Validate checks p for the given law. Every failure wraps ErrConfig.
func (p Params) Validate(law string) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	for _, fs := range p.Failsafes {
		if fs == FailsafeFeasibleAccel && (p.MaxAccel <= 0 || p.MaxDecel <= 0) {
			return fmt.Errorf("%w: feasible_accel needs positive max_accel and max_decel", ErrConfig)
		}
	}
	switch law {
	case LawGlobal:
		if p.FleetSize == 1 {
			return fmt.Errorf("%w: %s needs more than one vehicle", ErrConfig, law)
		}
	case LawBounded, LawTopology:
		if p.NeighborCount <= 0 {
			return fmt.Errorf("%w: %s needs neighbor_count > 0", ErrConfig, law)
		}
		if p.FleetSize == 1 {
			return fmt.Errorf("%w: %s needs more than one vehicle", ErrConfig, law)
		}
	}
	return nil
}
