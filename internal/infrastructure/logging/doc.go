// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a *zap.Logger named after themselves (lifecycle,
// permission, bridge, sandbox, registry). Output produced by extension code
// is routed through Logger.Extension so it is always tagged with ext_id.
//
// Example Usage:
//
//	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)
//	logger.Info("Host starting", zap.String("addr", cfg.Addr()))
//	logger.Extension("lab.monitor").Warn("console", zap.String("message", msg))
package logging
