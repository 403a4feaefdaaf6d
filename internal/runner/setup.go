package runner

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/config"
)

// maxAttempts bounds the random placement tries per particle.
const maxAttempts = 1000

var ErrPacking = errors.New("runner: cannot place particles at the requested minimum distance")

// Placement is the initial state of one particle.
type Placement struct {
	ID   int
	Type int
	Q    float64
	Pos  r3.Vec
	Vel  r3.Vec
}

// Seed generates the initial particles of cfg. The result only depends on
// cfg, so every run of a configuration starts from the same state.
func Seed(cfg *config.Config) ([]Placement, error) {
	pc := cfg.Particles
	rng := rand.New(rand.NewSource(cfg.Seed))

	var (
		pos []r3.Vec
		err error
	)
	switch pc.Layout {
	case "lattice":
		pos = lattice(cfg.Box, pc.Count)
	case "random":
		pos, err = random(rng, cfg.Box, cfg.Periodic, pc.Count, pc.MinDistance)
	default:
		err = fmt.Errorf("runner: unknown layout %q", pc.Layout)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Placement, len(pos))
	for i, p := range pos {
		out[i] = Placement{ID: i, Pos: p}
		if len(pc.TypePattern) > 0 {
			out[i].Type = pc.TypePattern[i%len(pc.TypePattern)]
		}
		if pc.Charge != 0 {
			out[i].Q = pc.Charge
			if i%2 == 1 {
				out[i].Q = -pc.Charge
			}
		}
	}
	thermalize(rng, out, pc.Temperature)
	return out, nil
}

// lattice fills the box with a simple cubic lattice of at least n sites and
// keeps the first n.
func lattice(box [3]float64, n int) []r3.Vec {
	if n == 0 {
		return nil
	}
	k := int(math.Ceil(math.Cbrt(float64(n))))
	for k*k*k < n {
		k++
	}
	var sp [3]float64
	for d := range sp {
		sp[d] = box[d] / float64(k)
	}
	out := make([]r3.Vec, 0, n)
	for x := 0; x < k && len(out) < n; x++ {
		for y := 0; y < k && len(out) < n; y++ {
			for z := 0; z < k && len(out) < n; z++ {
				out = append(out, r3.Vec{
					X: (float64(x) + 0.5) * sp[0],
					Y: (float64(y) + 0.5) * sp[1],
					Z: (float64(z) + 0.5) * sp[2],
				})
			}
		}
	}
	return out
}

func random(rng *rand.Rand, box [3]float64, periodic [3]bool, n int, minDist float64) ([]r3.Vec, error) {
	out := make([]r3.Vec, 0, n)
	for len(out) < n {
		placed := false
		for try := 0; try < maxAttempts; try++ {
			p := r3.Vec{X: rng.Float64() * box[0], Y: rng.Float64() * box[1], Z: rng.Float64() * box[2]}
			if minDist <= 0 || farEnough(p, out, box, periodic, minDist) {
				out = append(out, p)
				placed = true
				break
			}
		}
		if !placed {
			return nil, fmt.Errorf("%w: placed %d of %d at %v", ErrPacking, len(out), n, minDist)
		}
	}
	return out, nil
}

func farEnough(p r3.Vec, others []r3.Vec, box [3]float64, periodic [3]bool, minDist float64) bool {
	for _, o := range others {
		d := [3]float64{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
		for k := range d {
			if periodic[k] {
				d[k] -= box[k] * math.Round(d[k]/box[k])
			}
		}
		if floats.Dot(d[:], d[:]) < minDist*minDist {
			return false
		}
	}
	return true
}

// thermalize draws Maxwell-Boltzmann velocities for unit masses at
// temperature t and removes the net momentum.
func thermalize(rng *rand.Rand, ps []Placement, t float64) {
	if t <= 0 || len(ps) == 0 {
		return
	}
	sd := math.Sqrt(t)
	var sum r3.Vec
	for i := range ps {
		v := r3.Vec{X: rng.NormFloat64() * sd, Y: rng.NormFloat64() * sd, Z: rng.NormFloat64() * sd}
		ps[i].Vel = v
		sum = r3.Add(sum, v)
	}
	mean := r3.Scale(1/float64(len(ps)), sum)
	for i := range ps {
		ps[i].Vel = r3.Sub(ps[i].Vel, mean)
	}
}
