// Package dispatch replicates coordinator commands to every rank of a mesh.
//
// Rank 0 is the only originator. A command is a small header broadcast on
// the command tag; its arrival on a rank is the point at which that rank
// runs the handler registered under the command id. Handlers that need more
// data than the header carries exchange it on their own tags afterwards.
package dispatch

import (
	"fmt"
	"sort"
)

// Root is the coordinator rank.
const Root = 0

// CommandID identifies a registered command. Shutdown is reserved.
type CommandID int

const Shutdown CommandID = 0

// Handler runs a command on one rank with the header's two arguments.
type Handler func(a, b int) error

type entry struct {
	name string
	fn   Handler
}

// Registry maps command ids to handlers. It is filled once at startup and
// must be identical on every rank.
type Registry struct {
	entries map[CommandID]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[CommandID]entry)}
}

// Add registers h under id. It panics on Shutdown or a duplicate id.
func (r *Registry) Add(id CommandID, name string, h Handler) {
	if id == Shutdown {
		panic("dispatch: command id 0 is reserved for shutdown")
	}
	if prev, ok := r.entries[id]; ok {
		panic(fmt.Sprintf("dispatch: command id %d registered twice (%s, %s)", id, prev.name, name))
	}
	r.entries[id] = entry{name: name, fn: h}
}

func (r *Registry) Lookup(id CommandID) (Handler, bool) {
	e, ok := r.entries[id]
	return e.fn, ok
}

func (r *Registry) Name(id CommandID) string {
	if id == Shutdown {
		return "shutdown"
	}
	if e, ok := r.entries[id]; ok {
		return e.name
	}
	return fmt.Sprintf("command(%d)", int(id))
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []CommandID {
	ids := make([]CommandID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
