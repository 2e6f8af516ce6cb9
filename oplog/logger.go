// Package oplog defines the narrow logging interface the runtime consumes
// from its host application. Per spec.md §1, user-facing logging is an
// external collaborator: this package only specifies the interface and a
// thin default adapter onto log/slog, mirroring how rzbill-flo's
// bridgeHandler adapts a structured logger onto slog rather than
// reimplementing one.
package oplog

import (
	"fmt"
	"log/slog"
)

// Logger is the interface opqueue logs through (see opqueue.WithLogger); op,
// opgroup, and retry do not log. All methods take a message and printf-style arguments, same convention as
// flo's convenience wrappers over its Fields-based Entry type.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Nop discards everything. It is the default used when a caller does not
// supply a Logger.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}

// Slog adapts a *slog.Logger to the Logger interface.
type Slog struct {
	L *slog.Logger
}

func NewSlog(l *slog.Logger) Slog {
	if l == nil {
		l = slog.Default()
	}
	return Slog{L: l}
}

func (s Slog) Debugf(format string, args ...any) { s.L.Debug(fmt.Sprintf(format, args...)) }
func (s Slog) Infof(format string, args ...any)  { s.L.Info(fmt.Sprintf(format, args...)) }
func (s Slog) Warnf(format string, args ...any)  { s.L.Warn(fmt.Sprintf(format, args...)) }
func (s Slog) Errorf(format string, args ...any) { s.L.Error(fmt.Sprintf(format, args...)) }

// OrNop returns l, or a Nop logger if l is nil, so internal call sites
// never need a nil check before logging.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}
