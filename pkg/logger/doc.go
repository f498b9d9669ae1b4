// Package logger provides the structured logging interface used across the service.
//
// It wraps zerolog behind a small Logger interface so components receive a logger
// through their constructors and tests can swap in NewTestLogger or NewNopLogger.
//
// Basic usage:
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("request_id", id).InfoWithFields("cache hit", map[string]interface{}{
//	    "key": key,
//	})
//
// Console output goes to stderr. When LoggingConfig.File is set, every line is also
// appended to that file.
package logger
