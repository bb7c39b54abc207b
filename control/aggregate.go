package control

import (
	"gonum.org/v1/gonum/floats"
)

// Neighbor is the state of another vehicle as seen by a consensus law.
type Neighbor struct {
	ID      VehicleID
	Headway float64
	Speed   float64
	Accel   float64
}

// NeighborOf captures s at tick duration dt.
func NeighborOf(s Snapshot, dt float64) Neighbor {
	return Neighbor{ID: s.ID, Headway: s.Headway, Speed: s.Speed, Accel: s.Accel(dt)}
}

// Terms are the mean pairwise differences self - neighbor, before gains.
type Terms struct {
	Headway  float64
	Velocity float64
	Accel    float64
	N        int
}

// Aggregate averages the differences between self and every neighbor. Sums
// run in neighbor order so results are reproducible for a given ordering.
func Aggregate(self Neighbor, neighbors []Neighbor) (Terms, error) {
	n := len(neighbors)
	if n == 0 {
		return Terms{}, ErrEmptyNeighborSet
	}
	dh := make([]float64, n)
	dv := make([]float64, n)
	da := make([]float64, n)
	for i, nb := range neighbors {
		dh[i] = self.Headway - nb.Headway
		dv[i] = self.Speed - nb.Speed
		da[i] = self.Accel - nb.Accel
	}
	fn := float64(n)
	return Terms{
		Headway:  floats.Sum(dh) / fn,
		Velocity: floats.Sum(dv) / fn,
		Accel:    floats.Sum(da) / fn,
		N:        n,
	}, nil
}

// Gains scale consensus terms.
type Gains struct {
	Headway, Velocity, Accel float64
}

// consensusAccel combines the free-road term with gain-scaled terms:
// a * ((1 - (v/v0)^4) + cH*H - cV*V - cA*A).
func consensusAccel(a, v, v0 float64, g Gains, t Terms) float64 {
	return a * (freeRoad(v, v0, consensusExponent) + g.Headway*t.Headway - g.Velocity*t.Velocity - g.Accel*t.Accel)
}
