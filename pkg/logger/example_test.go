package logger_test

import (
	"log/slog"
	"os"

	"github.com/soundprediction/likeness/pkg/logger"
)

func ExampleNewDefaultLogger() {
	// Create a logger with default settings
	log := logger.NewDefaultLogger(slog.LevelDebug)

	// Log different levels
	log.Debug("This is a debug message")
	log.Info("This is an info message")
	log.Info("Persisting likeness verdicts") // Will be green in terminal
	log.Warn("This is a warning message")    // Will be yellow in terminal
	log.Error("This is an error message")    // Will be red in terminal
}

func ExampleNewLogger() {
	// JSON output for log collectors
	log := logger.NewLogger(os.Stderr, slog.LevelInfo, "json")

	log.Info("Scoring started", "tasks", 120, "concurrency", 2)
	log.Info("table written", "table", "likeness_verdicts", "rows", 120)
	log.Warn("Retrying backend call", "backend", "ollama-0", "attempt", 2)
	log.Error("Backend call failed", "error", "timeout", "attempts", 3)
}
