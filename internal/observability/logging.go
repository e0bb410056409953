// Package observability holds the shared CLI logger.
//
// The CLI logger writes human-oriented console output to stderr so that
// stdout stays reserved for machine-readable results (image identifiers,
// JSONL records).
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger used by commands and the pipeline.
//
// It defaults to a no-op logger so that library consumers and tests that
// never call InitCLILogger do not panic on nil dereference.
var CLILogger = zap.NewNop()

// cliLevel backs the logger so the level can be adjusted after init.
var cliLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// SetLevel adjusts the logger's minimum level. Unknown names are ignored.
func SetLevel(level string) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return
	}
	cliLevel.SetLevel(parsed)
}

// InitCLILogger configures the CLI logger.
//
// name is attached to every entry so multi-tool log streams stay
// attributable. debug enables Debug-level output and caller annotations.
func InitCLILogger(name string, debug bool) {
	if debug {
		cliLevel.SetLevel(zapcore.DebugLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = cliLevel
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableCaller = !debug
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		// Fall back to the no-op logger rather than failing CLI startup.
		return
	}

	CLILogger = logger.Named(name)
}

// Sync flushes any buffered log entries. Safe to call on the no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}
