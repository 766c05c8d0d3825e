package types

// Logger is the structured logger every framepipe component writes to.
//
// Methods take a message followed by alternating key-value pairs, the
// calling convention of zap.SugaredLogger and slog. Components log with
// session_id and seq keys so one session can be followed across the
// dispatcher, collector, reorder buffer and workers.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// Fatal logs at the highest level. Implementations may terminate the process.
	Fatal(msg string, keysAndValues ...any)
}
