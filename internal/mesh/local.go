package mesh

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

type localMesh struct {
	// boxes[dst][src]
	boxes [][]*inbox
	once  sync.Once
}

type localComm struct {
	rank int
	mesh *localMesh
}

// NewLocal returns the endpoints of an in-process mesh of n ranks. Closing
// any endpoint closes the whole mesh.
func NewLocal(n int) []Comm {
	m := &localMesh{boxes: make([][]*inbox, n)}
	for dst := range m.boxes {
		m.boxes[dst] = make([]*inbox, n)
		for src := range m.boxes[dst] {
			m.boxes[dst][src] = newInbox()
		}
	}
	comms := make([]Comm, n)
	for r := range comms {
		comms[r] = &localComm{rank: r, mesh: m}
	}
	return comms
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return len(c.mesh.boxes) }

func (c *localComm) Send(dst int, tag Tag, payload []byte) error {
	if err := checkRank(c, dst); err != nil {
		return &TransferError{Rank: c.rank, Peer: dst, Tag: tag, Op: "send", Err: err}
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.mesh.boxes[dst][c.rank].push(frame{tag: tag, payload: buf})
	return nil
}

func (c *localComm) Recv(src int, tag Tag) ([]byte, error) {
	if err := checkRank(c, src); err != nil {
		return nil, &TransferError{Rank: c.rank, Peer: src, Tag: tag, Op: "recv", Err: err}
	}
	f, err := c.mesh.boxes[c.rank][src].pop()
	if err != nil {
		return nil, &TransferError{Rank: c.rank, Peer: src, Tag: tag, Op: "recv", Err: err}
	}
	return expect(c, src, tag, f)
}

func (c *localComm) Close() error {
	c.mesh.once.Do(func() {
		for _, row := range c.mesh.boxes {
			for _, q := range row {
				q.close(ErrClosed)
			}
		}
	})
	return nil
}

// RunLocal runs fn once per rank of a fresh n-rank in-process mesh and waits
// for all of them. If any rank fails the mesh is closed so that ranks blocked
// on it fail too instead of hanging.
func RunLocal(ctx context.Context, n int, fn func(ctx context.Context, c Comm) error) error {
	comms := NewLocal(n)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range comms {
		c := c
		g.Go(func() error { return fn(gctx, c) })
	}
	go func() {
		<-gctx.Done()
		comms[0].Close()
	}()
	return g.Wait()
}
