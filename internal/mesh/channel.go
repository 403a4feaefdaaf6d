package mesh

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Channel is a typed message stream bound to one tag. Using the same Channel
// value on both ends of a transfer keeps the payload type of a send and its
// receive in agreement.
type Channel[T any] struct {
	tag Tag
}

func NewChannel[T any](tag Tag) Channel[T] { return Channel[T]{tag: tag} }

// envelope lets gob carry zero and nil values of T.
type envelope[T any] struct {
	V T
}

func (ch Channel[T]) Tag() Tag { return ch.tag }

func (ch Channel[T]) encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope[T]{V: v}); err != nil {
		return nil, fmt.Errorf("mesh: encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func (ch Channel[T]) decode(b []byte) (T, error) {
	var env envelope[T]
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return env.V, fmt.Errorf("mesh: decode %T: %w", env.V, err)
	}
	return env.V, nil
}

func (ch Channel[T]) decodeAll(bs [][]byte) ([]T, error) {
	out := make([]T, len(bs))
	for i, b := range bs {
		v, err := ch.decode(b)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ch Channel[T]) Send(c Comm, dst int, v T) error {
	b, err := ch.encode(v)
	if err != nil {
		return err
	}
	return c.Send(dst, ch.tag, b)
}

func (ch Channel[T]) Recv(c Comm, src int) (T, error) {
	b, err := c.Recv(src, ch.tag)
	if err != nil {
		var zero T
		return zero, err
	}
	return ch.decode(b)
}

// Bcast returns root's value on every rank.
func (ch Channel[T]) Bcast(c Comm, root int, v T) (T, error) {
	var b []byte
	if c.Rank() == root {
		var err error
		if b, err = ch.encode(v); err != nil {
			return v, err
		}
	}
	b, err := Bcast(c, root, ch.tag, b)
	if err != nil {
		var zero T
		return zero, err
	}
	if c.Rank() == root {
		return v, nil
	}
	return ch.decode(b)
}

// Gather returns every rank's value on root and nil elsewhere.
func (ch Channel[T]) Gather(c Comm, root int, v T) ([]T, error) {
	b, err := ch.encode(v)
	if err != nil {
		return nil, err
	}
	bs, err := Gather(c, root, ch.tag, b)
	if err != nil || bs == nil {
		return nil, err
	}
	return ch.decodeAll(bs)
}

func (ch Channel[T]) Allgather(c Comm, v T) ([]T, error) {
	b, err := ch.encode(v)
	if err != nil {
		return nil, err
	}
	bs, err := Allgather(c, ch.tag, b)
	if err != nil {
		return nil, err
	}
	return ch.decodeAll(bs)
}

func (ch Channel[T]) Alltoall(c Comm, vs []T) ([]T, error) {
	if len(vs) != c.Size() {
		return nil, ErrBadCount
	}
	bs := make([][]byte, len(vs))
	for i, v := range vs {
		b, err := ch.encode(v)
		if err != nil {
			return nil, err
		}
		bs[i] = b
	}
	out, err := Alltoall(c, ch.tag, bs)
	if err != nil {
		return nil, err
	}
	return ch.decodeAll(out)
}
