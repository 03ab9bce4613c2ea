package flux

// Logger receives low-severity diagnostics the Executor and Store would
// otherwise swallow silently: malformed flat key-path segments and
// unknown queue names. Transaction lifecycle transitions are not sent
// here; they reach Middleware instead. Implementations must
// not block or panic; internal/fluxlog ships a
// github.com/rs/zerolog-backed implementation. A nil Logger is valid
// everywhere one is accepted and simply discards everything.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// nopLogger discards every call. Used as the zero value so callers never
// need a nil check before logging.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Infof(string, ...any)  {}

func logOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
