// Package mesh provides the process mesh that ranks communicate over.
//
// A [Comm] is one rank's endpoint. Point-to-point messages carry a [Tag] and
// are delivered in FIFO order per (source, destination) pair. Sends never
// block on the receiver; receives block with no timeout, so a stalled rank
// stalls every rank waiting on it.
//
// Two transports are provided:
//
//   - [NewLocal]: every rank is a goroutine in one process
//   - [ListenTCP]: every rank is a process, fully connected over TCP
//
// Collectives ([Bcast], [Gather], [Allgather], [Alltoall]) are built on the
// point-to-point layer, and [Channel] binds a Go type to a tag so that a
// send and its matching receive always agree on the payload type.
package mesh
