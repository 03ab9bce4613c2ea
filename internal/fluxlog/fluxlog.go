// Package fluxlog is the reference logging middleware: a concrete
// github.com/rs/zerolog backend behind the small adapter interface flux
// uses for its own low-severity diagnostics, the way the corpus ships a
// concrete logiface-zerolog backend rather than leaving every consumer
// of logiface's generic Event/Object machinery to write their own.
package fluxlog

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	flux "github.com/joeycumines/go-flux"
)

// for testing purposes, mirrors catrate/limiter.go's timeNow test seam.
var timeNow = time.Now

// Logger adapts a zerolog.Logger to flux.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New wraps zl as a flux.Logger.
func New(zl zerolog.Logger) Logger {
	return Logger{zl: zl}
}

func (l Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }

var _ flux.Logger = Logger{}

// LoggingMiddleware logs every flux.Transaction state transition: debug
// on Pending/Started, info with duration on Completed, warn with
// duration and reason on Canceled. Keeps a per-transaction start time in
// a plain mutex-guarded map, entries removed the same transition that
// consumes them rather than pooled, since a transaction id is never
// reused.
type LoggingMiddleware struct {
	zl zerolog.Logger

	mu      sync.Mutex
	started map[string]time.Time
}

// NewLoggingMiddleware constructs a LoggingMiddleware writing to zl.
func NewLoggingMiddleware(zl zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{zl: zl, started: make(map[string]time.Time)}
}

func (m *LoggingMiddleware) OnStateChange(info flux.TransitionInfo) {
	switch info.State {
	case flux.TransactionPending:
		m.zl.Debug().
			Str("tx", info.TransactionID).
			Str("action", info.ActionID).
			Msg("transaction pending")

	case flux.TransactionStarted:
		m.mu.Lock()
		m.started[info.TransactionID] = timeNow()
		m.mu.Unlock()
		m.zl.Debug().
			Str("tx", info.TransactionID).
			Str("action", info.ActionID).
			Msg("transaction started")

	case flux.TransactionCompleted:
		ev := m.zl.Info().
			Str("tx", info.TransactionID).
			Str("action", info.ActionID).
			Dur("duration", m.takeDuration(info.TransactionID))
		if info.Err != nil {
			ev = ev.Err(info.Err)
		}
		ev.Msg("transaction completed")

	case flux.TransactionCanceled:
		m.zl.Warn().
			Str("tx", info.TransactionID).
			Str("action", info.ActionID).
			Dur("duration", m.takeDuration(info.TransactionID)).
			AnErr("reason", info.Err).
			Msg("transaction canceled")
	}
}

func (m *LoggingMiddleware) takeDuration(id string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, ok := m.started[id]
	if !ok {
		return 0
	}
	delete(m.started, id)
	return timeNow().Sub(start)
}

var _ flux.Middleware = (*LoggingMiddleware)(nil)
