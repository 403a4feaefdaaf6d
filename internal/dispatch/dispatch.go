package dispatch

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/mdmesh/internal/mesh"
)

// Header is the broadcast form of a command.
type Header struct {
	ID  CommandID
	A   int
	B   int
	Seq uint64
}

var headers = mesh.NewChannel[Header](mesh.TagCommand)

// Dispatcher sends commands from the coordinator and executes them on every
// rank in the order they were sent.
type Dispatcher struct {
	comm mesh.Comm
	reg  *Registry
	log  logrus.FieldLogger
	seq  uint64

	// OnCommand, if set, sees every header just before its handler runs.
	OnCommand func(Header)
}

func New(comm mesh.Comm, reg *Registry, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{comm: comm, reg: reg, log: log}
}

func (d *Dispatcher) IsCoordinator() bool { return d.comm.Rank() == Root }

// Seq is the number of the last command this rank executed.
func (d *Dispatcher) Seq() uint64 { return d.seq }

// Call broadcasts {id, a, b} and then runs the handler on the coordinator.
func (d *Dispatcher) Call(id CommandID, a, b int) error {
	if !d.IsCoordinator() {
		return ErrNotCoordinator
	}
	if _, ok := d.reg.Lookup(id); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCommand, int(id))
	}
	h := Header{ID: id, A: a, B: b, Seq: d.seq + 1}
	if _, err := headers.Bcast(d.comm, Root, h); err != nil {
		return &CommandError{Rank: d.comm.Rank(), Command: d.reg.Name(id), Seq: h.Seq, Err: err}
	}
	return d.run(h)
}

// Shutdown tells every executor to leave its Loop.
func (d *Dispatcher) Shutdown() error {
	if !d.IsCoordinator() {
		return ErrNotCoordinator
	}
	d.seq++
	_, err := headers.Bcast(d.comm, Root, Header{ID: Shutdown, Seq: d.seq})
	return err
}

// Loop receives and runs commands until Shutdown arrives. It returns the
// first handler or transfer error.
func (d *Dispatcher) Loop() error {
	if d.IsCoordinator() {
		return ErrNotCoordinator
	}
	for {
		h, err := headers.Bcast(d.comm, Root, Header{})
		if err != nil {
			return &CommandError{Rank: d.comm.Rank(), Command: "receive", Seq: d.seq + 1, Err: err}
		}
		if h.Seq != d.seq+1 {
			return &CommandError{Rank: d.comm.Rank(), Command: d.reg.Name(h.ID), Seq: h.Seq,
				Err: fmt.Errorf("%w: expected #%d", ErrOutOfSequence, d.seq+1)}
		}
		if h.ID == Shutdown {
			d.seq = h.Seq
			d.log.WithField("seq", h.Seq).Debug("shutdown received")
			return nil
		}
		if err := d.run(h); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) run(h Header) error {
	fn, ok := d.reg.Lookup(h.ID)
	if !ok {
		return &CommandError{Rank: d.comm.Rank(), Command: d.reg.Name(h.ID), Seq: h.Seq, Err: ErrUnknownCommand}
	}
	d.seq = h.Seq
	d.log.WithFields(logrus.Fields{
		"command": d.reg.Name(h.ID),
		"a":       h.A,
		"b":       h.B,
		"seq":     h.Seq,
	}).Debug("dispatch")
	if d.OnCommand != nil {
		d.OnCommand(h)
	}
	if err := fn(h.A, h.B); err != nil {
		return &CommandError{Rank: d.comm.Rank(), Command: d.reg.Name(h.ID), Seq: h.Seq, Err: err}
	}
	return nil
}
