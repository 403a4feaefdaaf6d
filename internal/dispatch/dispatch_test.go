package dispatch

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mdmesh/internal/mesh"
)

const (
	cmdAppend CommandID = iota + 1
	cmdFail
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// recorder is a per-rank replicated state: the list of (a, b) it has seen.
type recorder struct {
	mu  sync.Mutex
	got map[int][][2]int
}

func (r *recorder) registry(rank int) *Registry {
	reg := NewRegistry()
	reg.Add(cmdAppend, "append", func(a, b int) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.got[rank] = append(r.got[rank], [2]int{a, b})
		return nil
	})
	reg.Add(cmdFail, "fail", func(a, b int) error {
		if rank == a {
			return errors.New("handler failed")
		}
		return nil
	})
	return reg
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Add(3, "three", func(a, b int) error { return nil })
	reg.Add(1, "one", func(a, b int) error { return nil })

	assert.Equal(t, []CommandID{1, 3}, reg.IDs())
	assert.Equal(t, "three", reg.Name(3))
	assert.Equal(t, "shutdown", reg.Name(Shutdown))
	assert.Equal(t, "command(9)", reg.Name(9))
	_, ok := reg.Lookup(9)
	assert.False(t, ok)

	assert.Panics(t, func() { reg.Add(3, "again", nil) })
	assert.Panics(t, func() { reg.Add(Shutdown, "zero", nil) })
}

func TestCommandsRunInOrderOnEveryRank(t *testing.T) {
	const ranks = 4
	rec := &recorder{got: make(map[int][][2]int)}
	err := mesh.RunLocal(context.Background(), ranks, func(ctx context.Context, c mesh.Comm) error {
		d := New(c, rec.registry(c.Rank()), quietLogger())
		if !d.IsCoordinator() {
			return d.Loop()
		}
		for i := 0; i < 20; i++ {
			if err := d.Call(cmdAppend, i, i*i); err != nil {
				return err
			}
		}
		return d.Shutdown()
	})
	require.NoError(t, err)

	require.Len(t, rec.got, ranks)
	for r := 1; r < ranks; r++ {
		assert.Equal(t, rec.got[0], rec.got[r], "rank %d", r)
	}
	assert.Len(t, rec.got[0], 20)
	assert.Equal(t, [2]int{19, 361}, rec.got[0][19])
}

func TestOnlyCoordinatorCalls(t *testing.T) {
	comms := mesh.NewLocal(2)
	defer comms[0].Close()
	d := New(comms[1], NewRegistry(), quietLogger())
	assert.ErrorIs(t, d.Call(cmdAppend, 0, 0), ErrNotCoordinator)
	assert.ErrorIs(t, d.Shutdown(), ErrNotCoordinator)

	root := New(comms[0], NewRegistry(), quietLogger())
	assert.ErrorIs(t, root.Loop(), ErrNotCoordinator)
}

func TestUnknownCommandIsNotBroadcast(t *testing.T) {
	comms := mesh.NewLocal(2)
	defer comms[0].Close()
	d := New(comms[0], NewRegistry(), quietLogger())
	assert.ErrorIs(t, d.Call(42, 0, 0), ErrUnknownCommand)
	assert.Zero(t, d.Seq())
}

func TestHandlerErrorNamesRankAndCommand(t *testing.T) {
	rec := &recorder{got: make(map[int][][2]int)}
	err := mesh.RunLocal(context.Background(), 3, func(ctx context.Context, c mesh.Comm) error {
		d := New(c, rec.registry(c.Rank()), quietLogger())
		if !d.IsCoordinator() {
			return d.Loop()
		}
		if err := d.Call(cmdFail, 2, 0); err != nil {
			return err
		}
		return d.Shutdown()
	})
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 2, cerr.Rank)
	assert.Equal(t, "fail", cerr.Command)
	assert.Equal(t, uint64(1), cerr.Seq)
}

func TestOutOfSequenceHeaderIsFatal(t *testing.T) {
	comms := mesh.NewLocal(2)
	defer comms[0].Close()
	rec := &recorder{got: make(map[int][][2]int)}
	d := New(comms[1], rec.registry(1), quietLogger())

	require.NoError(t, headers.Send(comms[0], 1, Header{ID: cmdAppend, Seq: 5}))
	err := d.Loop()
	assert.ErrorIs(t, err, ErrOutOfSequence)
	assert.Empty(t, rec.got[1])
}

func TestOnCommandObservesHeaders(t *testing.T) {
	var seen []Header
	err := mesh.RunLocal(context.Background(), 2, func(ctx context.Context, c mesh.Comm) error {
		reg := NewRegistry()
		reg.Add(cmdAppend, "append", func(a, b int) error { return nil })
		d := New(c, reg, quietLogger())
		if !d.IsCoordinator() {
			d.OnCommand = func(h Header) { seen = append(seen, h) }
			return d.Loop()
		}
		if err := d.Call(cmdAppend, 1, 2); err != nil {
			return err
		}
		return d.Shutdown()
	})
	require.NoError(t, err)
	assert.Equal(t, []Header{{ID: cmdAppend, A: 1, B: 2, Seq: 1}}, seen)
}
