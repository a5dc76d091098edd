// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("relay starting", zap.String("port", "8600"))
//	logger.Error("upstream unreachable", zap.Error(err))
package logging
