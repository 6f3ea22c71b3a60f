// Package types provides shared data structures for the simulation backend.
//
// This package defines the core records every component exchanges,
// keeping the engine, API, and WebSocket layers on one vocabulary.
//
// Core Types:
//   - Process: Simulated process with state and held resources
//   - Connection: Directed IPC link (pipe, queue, memory)
//   - MemoryRegion, Semaphore: Shared-memory region and its guard
//   - DataTransfer: In-flight transfer advanced by the scheduler
//   - DeadlockCycle: Detected circular wait
//   - Snapshot: Immutable copy of the full simulation state
//
// Event Types:
//   - Event: Structured notification pushed to the presentation layer
//   - EventKind, Severity: Classification for the log panel
//
// Example Usage:
//
//	proc := &types.Process{
//	    ID:    id.NewProcessID().String(),
//	    Name:  "Producer",
//	    State: types.ProcessIdle,
//	}
package types
