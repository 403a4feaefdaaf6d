package mesh

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the mesh was shut down while a receive was pending.
	ErrClosed = errors.New("mesh: closed")

	// ErrTagMismatch indicates the next message from a peer carried a
	// different tag than expected, meaning the ranks are out of step.
	ErrTagMismatch = errors.New("mesh: tag mismatch (ranks desynchronized)")

	// ErrBadRank indicates an address outside [0, size).
	ErrBadRank = errors.New("mesh: rank out of range")

	// ErrBadCount indicates a collective was handed the wrong number of payloads.
	ErrBadCount = errors.New("mesh: payload count does not match mesh size")
)

// TransferError wraps a failed point-to-point transfer with its addressing.
type TransferError struct {
	Rank int
	Peer int
	Tag  Tag
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("mesh: rank %d %s peer %d (tag %s): %v", e.Rank, e.Op, e.Peer, e.Tag, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
