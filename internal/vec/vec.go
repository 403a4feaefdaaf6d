// Package vec adds per-component access to gonum's r3.Vec, which the
// Cartesian bookkeeping (subdomains, rescaling along one axis) needs.
package vec

import "gonum.org/v1/gonum/spatial/r3"

// Dims is the spatial dimension of the simulation.
const Dims = 3

func Get(v r3.Vec, d int) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func Set(v *r3.Vec, d int, x float64) {
	switch d {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	default:
		v.Z = x
	}
}

func FromArray(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

func ToArray(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Volume returns the product of the box lengths.
func Volume(box r3.Vec) float64 { return box.X * box.Y * box.Z }
