// Package engine implements the IPC deadlock simulation core.
//
// The engine owns all simulation state behind a single mutex: the entity
// store (processes, connections, shared-memory regions), the resource
// coordinator (the acquire/release state machine per IPC mechanism), the
// wait-for-graph analyzer, and the release scheduler. Commands, queries,
// and timer callbacks all serialize through that lock, and events are
// published only after a mutation has committed.
//
// Blocking in the simulation is always a modeled process state; no
// goroutine ever waits on a simulated resource.
package engine
