// Package server wires the simulation backend together.
//
// It assembles the engine, event broker, scenario runner, HTTP routes,
// and WebSocket stream behind one Server type.
//
// Server Lifecycle:
//  1. Load configuration from environment
//  2. Initialize logger (production or development)
//  3. Build engine, broker, and scenario runner
//  4. Setup HTTP routes and middleware (CORS, rate limit, metrics)
//  5. Start the simulation ticker and HTTP server
//  6. Graceful shutdown on signal
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(cfg, logger)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
