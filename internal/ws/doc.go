// Package ws streams simulation events to frontend clients over WebSocket.
//
// Each connection subscribes to the event broker; state transitions
// (transfers, blocks, releases, deadlocks) are pushed as they happen so
// the visualization stays live without polling.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - snapshot: Request a full state snapshot
//
// Message Types (Server → Client):
//   - system: Connection banner
//   - event: A simulation event
//   - snapshot: Full simulation state
//   - pong: Ping reply
//   - error: Error occurred
//
// Example Usage:
//
//	handler := ws.NewHandler(engine, broker, logger, metrics)
//	router.GET("/stream", handler.HandleConnection)
package ws
