package control

import "errors"

var (
	// ErrConfig marks parameters that can never produce a valid command.
	ErrConfig = errors.New("invalid controller configuration")

	// ErrDefer is returned by a law that leaves the decision to the simulator's
	// own car-following model. Controller turns it into Command{Defer: true}.
	ErrDefer = errors.New("defer to simulator default")

	ErrFleetTooSmall    = errors.New("fleet has no other vehicle to average over")
	ErrEmptyNeighborSet = errors.New("neighbor cache is empty")
	ErrNonFinite        = errors.New("law produced a non-finite acceleration")
	ErrUnknownVehicle   = errors.New("vehicle not present in frame")
	ErrUnknownLaw       = errors.New("unknown law")
)
