// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Example:
//
//	logger := logging.NewDefault()
//	logger.Info("engine started", zap.String("tick", "200ms"))
//	logger.Error("send failed", zap.Error(err))
package logging
