package engine

import (
	"context"
	"io"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/interaction"
	"github.com/san-kum/mdmesh/internal/mesh"
)

var unitLJ = interaction.Params{Epsilon: 1, Sigma: 1, Cutoff: 2.5}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testOptions() Options {
	return Options{
		Box:      r3.Vec{X: 10, Y: 10, Z: 10},
		Periodic: [3]bool{true, true, true},
		Dt:       0.005,
		Skin:     0.4,
		Globals:  interaction.DefaultGlobals(),
	}
}

// cluster is an in-process mesh of Systems driven from rank 0.
type cluster struct {
	systems []*System

	mu     sync.Mutex
	aborts []error
}

func (c *cluster) abortCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.aborts)
}

// runCluster starts n ranks, lets setup adjust each System before it runs,
// and calls drive on the coordinator. The coordinator shuts the executors
// down once drive returns nil.
func runCluster(n int, opts Options, setup func(*System), drive func(root *System) error) (*cluster, error) {
	c := &cluster{systems: make([]*System, n)}
	err := mesh.RunLocal(context.Background(), n, func(ctx context.Context, comm mesh.Comm) error {
		o := opts
		o.Logger = quietLogger()
		o.Abort = func(err error) {
			c.mu.Lock()
			c.aborts = append(c.aborts, err)
			c.mu.Unlock()
		}
		s, err := New(comm, o)
		if err != nil {
			return err
		}
		c.systems[comm.Rank()] = s
		if setup != nil {
			setup(s)
		}
		if !s.IsCoordinator() {
			return s.Loop()
		}
		if err := drive(s); err != nil {
			return err
		}
		return s.Shutdown()
	})
	return c, err
}

// placeLattice puts k^3 particles on a cubic lattice of the given spacing
// and gives them seeded random velocities.
func placeLattice(root *System, k int, spacing float64, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for x := 0; x < k; x++ {
		for y := 0; y < k; y++ {
			for z := 0; z < k; z++ {
				pos := r3.Vec{X: (float64(x) + 0.5) * spacing, Y: (float64(y) + 0.5) * spacing, Z: (float64(z) + 0.5) * spacing}
				id, err := root.AddParticle(pos)
				if err != nil {
					return err
				}
				v := r3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: rng.Float64() - 0.5}
				if err := root.SetVelocity(id, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// fakeFluid reports fixed per-rank shares.
type fakeFluid struct{}

func (fakeFluid) FluidMomentum() r3.Vec     { return r3.Vec{X: 1, Y: 2, Z: 3} }
func (fakeFluid) BoundaryForces() []float64 { return []float64{0.5, 0, -0.5} }
