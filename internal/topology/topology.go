// Package topology maps ranks onto a periodic 3D Cartesian grid and the
// simulation box onto per-rank subdomains.
package topology

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/vec"
)

var (
	ErrBadDims = errors.New("topology: grid dims do not match rank count")
	ErrBadSize = errors.New("topology: rank count must be positive")
)

// Grid is the rank <-> Cartesian coordinate mapping. Ranks are laid out in
// row-major order, the last dimension varying fastest.
type Grid struct {
	dims     [3]int
	periodic [3]bool
	size     int
}

// DimsCreate splits n ranks into a balanced 3D grid with non-increasing dims.
func DimsCreate(n int) [3]int {
	dims := [3]int{1, 1, 1}
	if n < 1 {
		return dims
	}
	var factors []int
	for p, m := 2, n; m > 1; {
		if p*p > m {
			factors = append(factors, m)
			break
		}
		if m%p == 0 {
			factors = append(factors, p)
			m /= p
			continue
		}
		p++
	}
	sort.Sort(sort.Reverse(sort.IntSlice(factors)))
	for _, f := range factors {
		smallest := 0
		for d := 1; d < 3; d++ {
			if dims[d] < dims[smallest] {
				smallest = d
			}
		}
		dims[smallest] *= f
	}
	sort.Sort(sort.Reverse(sort.IntSlice(dims[:])))
	return dims
}

// New builds a grid for size ranks. A zero dims value asks for DimsCreate.
func New(size int, dims [3]int, periodic [3]bool) (*Grid, error) {
	if size < 1 {
		return nil, ErrBadSize
	}
	if dims == [3]int{} {
		dims = DimsCreate(size)
	}
	if dims[0]*dims[1]*dims[2] != size || dims[0] < 1 || dims[1] < 1 || dims[2] < 1 {
		return nil, fmt.Errorf("%w: %v for %d ranks", ErrBadDims, dims, size)
	}
	return &Grid{dims: dims, periodic: periodic, size: size}, nil
}

func (g *Grid) Size() int             { return g.size }
func (g *Grid) Dims() [3]int          { return g.dims }
func (g *Grid) Periodic() [3]bool     { return g.periodic }
func (g *Grid) IsPeriodic(d int) bool { return g.periodic[d] }

func (g *Grid) Coords(rank int) [3]int {
	var c [3]int
	c[2] = rank % g.dims[2]
	rank /= g.dims[2]
	c[1] = rank % g.dims[1]
	c[0] = rank / g.dims[1]
	return c
}

// RankOf returns the rank at c, wrapping periodic dims. It returns -1 when c
// lies off the grid in a non-periodic dim.
func (g *Grid) RankOf(c [3]int) int {
	for d := 0; d < 3; d++ {
		if c[d] >= 0 && c[d] < g.dims[d] {
			continue
		}
		if !g.periodic[d] {
			return -1
		}
		c[d] = ((c[d] % g.dims[d]) + g.dims[d]) % g.dims[d]
	}
	return (c[0]*g.dims[1]+c[1])*g.dims[2] + c[2]
}

// Neighbor returns the rank displaced by disp along dim from rank, or -1.
func (g *Grid) Neighbor(rank, dim, disp int) int {
	c := g.Coords(rank)
	c[dim] += disp
	return g.RankOf(c)
}

// Neighbors returns the distinct ranks in the 3x3x3 block around rank,
// excluding rank itself.
func (g *Grid) Neighbors(rank int) []int {
	seen := map[int]bool{rank: true}
	var out []int
	c := g.Coords(rank)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				r := g.RankOf([3]int{c[0] + dx, c[1] + dy, c[2] + dz})
				if r < 0 || seen[r] {
					continue
				}
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	sort.Ints(out)
	return out
}

// Subdomain returns the half-open region [lo, hi) of box owned by rank.
func (g *Grid) Subdomain(rank int, box r3.Vec) (lo, hi r3.Vec) {
	c := g.Coords(rank)
	for d := 0; d < 3; d++ {
		l := vec.Get(box, d) / float64(g.dims[d])
		vec.Set(&lo, d, float64(c[d])*l)
		vec.Set(&hi, d, float64(c[d]+1)*l)
	}
	return lo, hi
}

// Fold maps pos into the primary box along periodic dims.
func (g *Grid) Fold(pos r3.Vec, box r3.Vec) r3.Vec {
	for d := 0; d < 3; d++ {
		if !g.periodic[d] {
			continue
		}
		l := vec.Get(box, d)
		x := vec.Get(pos, d)
		x -= l * math.Floor(x/l)
		if x >= l {
			x = 0
		}
		vec.Set(&pos, d, x)
	}
	return pos
}

// InBox reports whether pos lies inside the box along every non-periodic dim.
func (g *Grid) InBox(pos r3.Vec, box r3.Vec) bool {
	for d := 0; d < 3; d++ {
		if g.periodic[d] {
			continue
		}
		x := vec.Get(pos, d)
		if x < 0 || x >= vec.Get(box, d) {
			return false
		}
	}
	return true
}

// Owner returns the rank whose subdomain contains pos. Positions are folded
// along periodic dims and clamped to the edge cells along the others.
func (g *Grid) Owner(pos r3.Vec, box r3.Vec) int {
	pos = g.Fold(pos, box)
	var c [3]int
	for d := 0; d < 3; d++ {
		ci := int(math.Floor(vec.Get(pos, d) * float64(g.dims[d]) / vec.Get(box, d)))
		if ci < 0 {
			ci = 0
		}
		if ci >= g.dims[d] {
			ci = g.dims[d] - 1
		}
		c[d] = ci
	}
	return (c[0]*g.dims[1]+c[1])*g.dims[2] + c[2]
}
