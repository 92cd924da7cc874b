package application

import "log/slog"

// ModuleName is the "module" attribute carried by every voting-engine log line.
const ModuleName = "group-decision/voting-engine"

// ResolveLogger guarantees a non-nil logger for application/worker code paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
