package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedJob indicates a statistics job code this build cannot
	// compute. It is fatal.
	ErrUnsupportedJob = errors.New("engine: unsupported statistics job")

	// ErrGlobalsFrozen indicates an attempt to change the electrostatics
	// globals after integration started.
	ErrGlobalsFrozen = errors.New("engine: electrostatics globals are frozen once integration starts")

	ErrNoParticle   = errors.New("engine: no such particle")
	ErrBoxTooSmall  = errors.New("engine: periodic box must exceed twice the interaction range")
	ErrGhostMissing = errors.New("engine: ghost owner did not publish the particle")
)

// FatalError is the diagnostic of a condition that ends the run.
type FatalError struct {
	Rank    int
	Command string
	Job     Job
	Err     error
}

func (e *FatalError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "engine: fatal on rank %d", e.Rank)
	if e.Command != "" {
		fmt.Fprintf(&b, " in %s", e.Command)
	}
	if e.Job != 0 {
		fmt.Fprintf(&b, " (job %d)", int(e.Job))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *FatalError) Unwrap() error { return e.Err }

// RuntimeError is a recoverable physical error raised during a command and
// collected by the coordinator.
type RuntimeError struct {
	Rank    int
	Step    int
	Message string
}

func (e RuntimeError) String() string {
	return fmt.Sprintf("rank %d step %d: %s", e.Rank, e.Step, e.Message)
}

// RuntimeErrors is every runtime error the ranks reported at one check.
type RuntimeErrors []RuntimeError

func (errs RuntimeErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.String()
	}
	return fmt.Sprintf("engine: %d runtime error(s): %s", len(errs), strings.Join(msgs, "; "))
}
