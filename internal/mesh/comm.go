package mesh

import (
	"fmt"
	"sync"
)

// Tag separates independent message streams between the same two ranks.
type Tag int32

const (
	// TagCommand carries dispatched command headers.
	TagCommand Tag = iota + 1
	// TagRendezvous carries the point-to-point follow-up of a command.
	TagRendezvous
	// TagCollective carries reductions and broadcasts issued inside handlers.
	TagCollective
	// TagGhost carries ghost positions and ghost forces.
	TagGhost
	// TagMigrate carries particles changing owner.
	TagMigrate
)

func (t Tag) String() string {
	switch t {
	case TagCommand:
		return "command"
	case TagRendezvous:
		return "rendezvous"
	case TagCollective:
		return "collective"
	case TagGhost:
		return "ghost"
	case TagMigrate:
		return "migrate"
	default:
		return fmt.Sprintf("tag(%d)", int32(t))
	}
}

// Comm is one rank's endpoint on the mesh.
type Comm interface {
	Rank() int
	Size() int
	// Send queues payload for dst. It does not wait for dst to receive.
	Send(dst int, tag Tag, payload []byte) error
	// Recv blocks until the next message from src arrives. The message must
	// carry tag; anything else is reported as ErrTagMismatch.
	Recv(src int, tag Tag) ([]byte, error)
	Close() error
}

type frame struct {
	tag     Tag
	payload []byte
}

// inbox is an unbounded FIFO of frames from a single peer.
type inbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames []frame
	err    error
}

func newInbox() *inbox {
	q := &inbox{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *inbox) push(f frame) {
	q.mu.Lock()
	if q.err == nil {
		q.frames = append(q.frames, f)
	}
	q.mu.Unlock()
	q.cond.Signal()
}

// pop drains queued frames before reporting a close.
func (q *inbox) pop() (frame, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && q.err == nil {
		q.cond.Wait()
	}
	if len(q.frames) == 0 {
		return frame{}, q.err
	}
	f := q.frames[0]
	q.frames[0] = frame{}
	q.frames = q.frames[1:]
	return f, nil
}

func (q *inbox) close(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

func checkRank(c Comm, r int) error {
	if r < 0 || r >= c.Size() {
		return fmt.Errorf("%w: %d (size %d)", ErrBadRank, r, c.Size())
	}
	return nil
}

func expect(c Comm, src int, want Tag, f frame) ([]byte, error) {
	if f.tag != want {
		return nil, &TransferError{Rank: c.Rank(), Peer: src, Tag: want, Op: "recv",
			Err: fmt.Errorf("%w: got %s", ErrTagMismatch, f.tag)}
	}
	return f.payload, nil
}
