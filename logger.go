package awmkit

import (
	"log/slog"
	"os"
)

// Logger is the module's logging seam. It is satisfied by *slog.Logger
// directly; nothing here wraps or reinterprets slog. The Orchestrator is
// the only subsystem that logs: its "log" field starts as defaultLogger
// and is replaced by Orchestrator.WithLogger.
type Logger = *slog.Logger

// defaultLogger is the Orchestrator's logger until WithLogger sets another,
// and what WithLogger(nil) restores, so callers who don't care about
// logging never need to pass slog.Default() themselves.
var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// orDefault returns l, or defaultLogger if l is nil.
func orDefault(l Logger) Logger {
	if l == nil {
		return defaultLogger
	}
	return l
}
