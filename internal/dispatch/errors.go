package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrNotCoordinator = errors.New("dispatch: only the coordinator may issue commands")
	ErrUnknownCommand = errors.New("dispatch: unknown command")
	ErrOutOfSequence  = errors.New("dispatch: command sequence broken")
)

// CommandError records which rank failed which command.
type CommandError struct {
	Rank    int
	Command string
	Seq     uint64
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("dispatch: rank %d command %s (#%d): %v", e.Rank, e.Command, e.Seq, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
