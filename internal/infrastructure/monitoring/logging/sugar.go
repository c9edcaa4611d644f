package logging

// SugaredLogger is the loosely-typed key/value logging style some
// consumers (notably the repository layer) prefer over structured fields.
type SugaredLogger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Sugar adapts a structured Logger to the key/value style. Keys must be
// strings; a trailing unpaired value is logged under "extra".
func Sugar(l Logger) SugaredLogger {
	return sugaredLogger{l: l}
}

type sugaredLogger struct {
	l Logger
}

func toFields(keysAndValues []interface{}) []Field {
	fields := make([]Field, 0, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = "invalid_key"
		}
		fields = append(fields, Any(key, keysAndValues[i+1]))
	}
	if len(keysAndValues)%2 == 1 {
		fields = append(fields, Any("extra", keysAndValues[len(keysAndValues)-1]))
	}
	return fields
}

func (s sugaredLogger) Debug(msg string, kv ...interface{}) { s.l.Debug(msg, toFields(kv)...) }
func (s sugaredLogger) Info(msg string, kv ...interface{})  { s.l.Info(msg, toFields(kv)...) }
func (s sugaredLogger) Warn(msg string, kv ...interface{})  { s.l.Warn(msg, toFields(kv)...) }
func (s sugaredLogger) Error(msg string, kv ...interface{}) { s.l.Error(msg, toFields(kv)...) }
