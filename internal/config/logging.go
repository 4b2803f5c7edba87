package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger creates a dual-output logger: text to stderr, JSON to file.
// Returns the logger and a cleanup function to close the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	return setupLogger(os.Stderr, logFile, level)
}

// SetupFileLogger logs JSON to logFile only. Used while a full-screen
// terminal UI owns stderr.
func SetupFileLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	return setupLogger(nil, logFile, level)
}

func setupLogger(stderr io.Writer, logFile string, level slog.Level) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if stderr != nil {
		handlers = append(handlers, slog.NewTextHandler(stderr, opts))
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if stderr == nil {
			// Nowhere else to write; keep errors visible.
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		}
		logger := slog.New(slogmulti.Fanout(handlers...))
		logger.Error("failed to open log file", "error", err, "file", logFile)
		return logger, func() error { return nil }
	}

	handlers = append(handlers, slog.NewJSONHandler(file, opts))
	return slog.New(slogmulti.Fanout(handlers...)), file.Close
}

// SetupLoggerWithWriters creates a logger with custom writers (for testing).
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}
