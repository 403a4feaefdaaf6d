package interaction

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErfcPart approximates exp(x^2)*erfc(x) for x >= 0 (Abramowitz and Stegun
// 7.1.26, absolute error below 1.5e-7).
func ErfcPart(x float64) float64 {
	const (
		p  = 0.3275911
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
	)
	t := 1 / (1 + p*x)
	return t * (a1 + t*(a2+t*(a3+t*(a4+t*a5))))
}

// LJForceFactor returns the scalar f such that the force on the first
// particle is f*d/dist. It is zero outside [offset, cutoff+offset).
func LJForceFactor(p Params, dist float64) float64 {
	if p.Cutoff <= 0 || dist >= p.Cutoff+p.Offset {
		return 0
	}
	rOff := dist - p.Offset
	if rOff <= 0 {
		return 0
	}
	frac2 := (p.Sigma / rOff) * (p.Sigma / rOff)
	frac6 := frac2 * frac2 * frac2
	return 24 * p.Epsilon * (2*frac6*frac6 - frac6 + p.Shift) / rOff
}

// LJEnergy is 4*eps*(frac6^2 - frac6 + shift). The shift only offsets the
// energy here, while LJForceFactor scales it by 6/rOff into the force, so
// with a nonzero shift the energy is not the exact potential of that force.
func LJEnergy(p Params, dist float64) float64 {
	if p.Cutoff <= 0 || dist >= p.Cutoff+p.Offset {
		return 0
	}
	rOff := dist - p.Offset
	if rOff <= 0 {
		return 0
	}
	frac2 := (p.Sigma / rOff) * (p.Sigma / rOff)
	frac6 := frac2 * frac2 * frac2
	return 4 * p.Epsilon * (frac6*frac6 - frac6 + p.Shift)
}

// CoulombForceFactor returns the scalar f such that the force on the first
// particle is f*d. It is zero at and beyond the coulomb cutoff.
func CoulombForceFactor(g Globals, q1q2, dist float64) float64 {
	if q1q2 == 0 || dist >= g.CoulombCut {
		return 0
	}
	ar := g.Alpha * dist
	return g.Bjerrum * q1q2 * math.Exp(-ar*ar) *
		(ErfcPart(ar)/dist + 2*g.Alpha/math.Sqrt(math.Pi)) / (dist * dist)
}

// CoulombEnergy is the damped real-space pair energy bjerrum*q1q2*erfc(ar)/r.
func CoulombEnergy(g Globals, q1q2, dist float64) float64 {
	if q1q2 == 0 || dist >= g.CoulombCut {
		return 0
	}
	ar := g.Alpha * dist
	return g.Bjerrum * q1q2 * ErfcPart(ar) * math.Exp(-ar*ar) / dist
}

// PairForce returns the force on particle 1 from particle 2 where d is
// pos1 - pos2. The force on particle 2 is its negation. Callers must not
// pass coincident particles.
func PairForce(p Params, g Globals, coulomb bool, q1q2 float64, d r3.Vec) r3.Vec {
	dist := r3.Norm(d)
	var f r3.Vec
	if fac := LJForceFactor(p, dist); fac != 0 {
		f = r3.Scale(fac/dist, d)
	}
	if coulomb {
		if fac := CoulombForceFactor(g, q1q2, dist); fac != 0 {
			f = r3.Add(f, r3.Scale(fac, d))
		}
	}
	return f
}
