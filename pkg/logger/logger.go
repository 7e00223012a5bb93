package logger

import (
	"log"
	"log/slog"
)

// New returns a stdlib *log.Logger that forwards lines to base at error level,
// tagged with component. Used where APIs still take *log.Logger, such as
// http.Server.ErrorLog.
func New(component string, base *slog.Logger) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), slog.LevelError)
}
