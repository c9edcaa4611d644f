// Package repositories contains the PostgreSQL persistence layer for
// molecules and screening runs.
package repositories

// Logger is the minimal logging contract the repositories need. A sugared
// adapter over the platform logging.Logger satisfies it (see cmd wiring).
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
