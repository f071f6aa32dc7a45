// Package observability holds process-wide logger construction.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the console logger used by cobra commands. Initialized to a
// no-op so packages can log before InitCLI runs (e.g. in tests).
var CLILogger = zap.NewNop()

// ServerLogger is the JSON logger used by the HTTP server and the
// orchestrator workers.
var ServerLogger = zap.NewNop()

// InitCLI configures the console logger. Verbose enables debug output.
func InitCLI(verbose bool) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return
	}
	CLILogger = logger
}

// InitServer configures the structured JSON logger for serve mode.
func InitServer(level string) error {
	cfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return err
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	ServerLogger = logger
	return nil
}

// Sync flushes both loggers; safe to call at process exit.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
