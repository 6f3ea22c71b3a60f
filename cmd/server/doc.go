// Package main is the entry point for the IPC deadlock simulator backend.
//
// The server exposes a REST API for driving the simulation (spawning
// processes, wiring connections, sending and consuming data) and a
// WebSocket stream that pushes every state transition to the frontend
// visualization.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
