// Package logging provides structured logging using uber/zap.
//
// Production loggers write JSON; development loggers write colored console
// lines. Every entry carries service=chatbridge, and components add their own
// name:
//
//	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
//	defer logger.Sync()
//
//	manager := session.NewManager(factory, sessCfg, logger.Component("sessions"))
//
// Session-scoped loggers add session_id, so one session's start, exchanges
// and stop can be followed with a single filter.
package logging
