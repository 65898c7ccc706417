// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a plain *zap.Logger (logger.Logger) and name it after
// themselves, e.g. logger.Named("resolver"). Script console output is
// mirrored at debug level under the "script" name.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "3000"))
//	logger.Error("Failed to open database", zap.Error(err))
package logging
