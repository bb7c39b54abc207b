package control

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// Factory builds a fresh law instance for one vehicle.
type Factory func(p Params) Law

var registry = map[string]Factory{
	LawSelfRegulating: func(p Params) Law { return NewSelfRegulating(p) },
	LawIDM:            func(p Params) Law { return NewIDM(p) },
	LawGlobal:         func(p Params) Law { return NewGlobalConsensus(p) },
	LawBounded:        func(p Params) Law { return NewBoundedConsensus(p) },
	LawTopology:       func(p Params) Law { return NewTopologyConsensus(p) },
	LawSimDefault:     func(Params) Law { return SimDefault{} },
}

// minFleetSize is the smallest fleet a law can produce commands for.
func minFleetSize(law string) int {
	switch law {
	case LawGlobal, LawBounded, LawTopology:
		return 2
	}
	return 1
}

// Laws lists the registered law names in sorted order.
func Laws() []string {
	names := lo.Keys(registry)
	slices.Sort(names)
	return names
}

// New validates p for the named law and builds one instance.
func New(law string, p Params) (Law, error) {
	factory, ok := registry[law]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownLaw, law, Laws())
	}
	if err := p.Validate(law); err != nil {
		return nil, err
	}
	return factory(p), nil
}
