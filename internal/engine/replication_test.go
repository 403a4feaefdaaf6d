package engine

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/dispatch"
	"github.com/san-kum/mdmesh/internal/interaction"
)

var _ = Describe("command replication", func() {
	var (
		mu   sync.Mutex
		seen map[int][]dispatch.Header
	)

	record := func(s *System) {
		rank := s.Rank()
		s.Dispatcher().OnCommand = func(h dispatch.Header) {
			mu.Lock()
			seen[rank] = append(seen[rank], h)
			mu.Unlock()
		}
	}

	drive := func(root *System) error {
		if err := root.SetIAParams(0, 0, unitLJ); err != nil {
			return err
		}
		if err := root.SetIAParams(0, 1, interaction.Params{Epsilon: 0.5, Sigma: 1.1, Cutoff: 2}); err != nil {
			return err
		}
		if err := placeLattice(root, 4, 2.5, 5); err != nil {
			return err
		}
		if err := root.SetType(3, 1); err != nil {
			return err
		}
		if err := root.Integrate(10, false); err != nil {
			return err
		}
		if _, err := root.Energy(); err != nil {
			return err
		}
		if err := root.RescaleParticles(-1, 0.99); err != nil {
			return err
		}
		return root.Integrate(5, true)
	}

	BeforeEach(func() {
		seen = make(map[int][]dispatch.Header)
	})

	for _, ranks := range []int{2, 3, 4} {
		ranks := ranks

		It(fmt.Sprintf("runs the same commands in the same order on %d ranks", ranks), func() {
			c, err := runCluster(ranks, testOptions(), record, drive)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.abortCount()).To(BeZero())

			Expect(seen).To(HaveLen(ranks))
			Expect(seen[0]).NotTo(BeEmpty())
			for r := 1; r < ranks; r++ {
				Expect(seen[r]).To(Equal(seen[0]), "rank %d", r)
			}
			for i, h := range seen[0] {
				Expect(h.Seq).To(Equal(uint64(i + 1)))
			}
		})

		It(fmt.Sprintf("leaves identical replicated state on %d ranks", ranks), func() {
			c, err := runCluster(ranks, testOptions(), nil, drive)
			Expect(err).NotTo(HaveOccurred())

			want := c.systems[0].Replicated()
			Expect(want.NumParticles).To(Equal(64))
			Expect(want.MaxSeenID).To(Equal(63))
			Expect(want.Table.N).To(Equal(2))
			Expect(want.Started).To(BeTrue())
			Expect(want.Time).To(BeNumerically("~", 15*0.005, 1e-12))
			for _, s := range c.systems[1:] {
				Expect(s.Replicated()).To(Equal(want), "rank %d", s.Rank())
			}

			total := 0
			for _, s := range c.systems {
				total += s.Store().Len()
			}
			Expect(total).To(Equal(64))
		})
	}

	It("delivers each placed particle to exactly one owner", func() {
		c, err := runCluster(4, testOptions(), nil, func(root *System) error {
			for id, x := range []float64{1, 3, 6, 9} {
				for _, y := range []float64{1, 6} {
					if err := root.PlaceParticle(id*2+int(y)/6, r3.Vec{X: x, Y: y, Z: 1}); err != nil {
						return err
					}
				}
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		owners := map[int]int{}
		for _, s := range c.systems {
			for _, id := range s.Store().IDs() {
				_, dup := owners[id]
				Expect(dup).To(BeFalse(), "particle %d on two ranks", id)
				owners[id] = s.Rank()
			}
		}
		Expect(owners).To(HaveLen(8))
		for _, s := range c.systems {
			for _, p := range s.Store().Locals() {
				Expect(s.Grid().Owner(p.Pos, s.Box())).To(Equal(s.Rank()))
			}
		}
	})

	It("makes a broadcast parameter block visible mirrored on every rank", func() {
		p := interaction.Params{Epsilon: 2, Sigma: 1, Cutoff: 1.5, Offset: 0.1}
		c, err := runCluster(3, testOptions(), nil, func(root *System) error {
			return root.SetIAParams(2, 3, p)
		})
		Expect(err).NotTo(HaveOccurred())
		for _, s := range c.systems {
			Expect(s.Table().Lookup(3, 2)).To(Equal(p))
			Expect(s.Table().Lookup(2, 3)).To(Equal(p))
		}
	})
})
