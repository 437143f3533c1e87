// Package log centralizes structured logging for the networking core,
// wrapping github.com/sirupsen/logrus behind a small Logger type instead of
// scattering logrus calls (or global package-level log calls, in the style
// of bt/logger's Wlog) across every package.
package log

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger is a thin wrapper around a logrus.Entry, used by the facade and
// handed down to internal/peer so every line they emit already carries this
// machine's identity.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger at Info level with text output, tagged with this
// machine's id.
func New(machineID uint8) *Logger {
	base := logrus.New()
	base.SetLevel(logrus.InfoLevel)
	return &Logger{entry: base.WithField("machine_id", machineID)}
}

// WithConn returns a derived Logger tagged with a per-connection session id,
// used to distinguish two successive connections to the same peer machine id
// across a reconnect. The session id has no protocol meaning and is never
// sent on the wire.
func (l *Logger) WithConn(sessionID uuid.UUID) *Logger {
	return &Logger{entry: l.entry.WithField("conn_id", sessionID.String())}
}

// Info logs a recoverable transition: connect, redial, an absorbed transport
// error.
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Info(msg)
}

// Error logs a malformed batch or another condition that precedes a fatal
// path.
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Error(msg)
}
