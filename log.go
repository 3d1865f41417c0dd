package boc

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// loggerValue holds the runtime's structured logger. The default is a nop so
// the hot paths cost a single load and a level check; tests and
// embedders enable it with SetLogger.
var loggerValue atomic.Pointer[zap.Logger]

func init() {
	loggerValue.Store(zap.NewNop())
}

// SetLogger routes the runtime's debug events to l. Pass zap.NewNop to
// silence it again. The runtime logs at debug level only: scheduling
// groups, pool lifecycle events, fast steals, and every strong
// reference change on a cown, including those made when slots are
// released.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerValue.Store(l)
}

func logDebug(msg string, fields ...zap.Field) {
	l := loggerValue.Load()
	if l.Core().Enabled(zap.DebugLevel) {
		l.Debug(msg, fields...)
	}
}

func debugSchedule(bodies int) {
	logDebug("schedule group", zap.Int("behaviours", bodies))
}

func debugCown(event string, c *Cown) {
	l := loggerValue.Load()
	if l.Core().Enabled(zap.DebugLevel) {
		l.Debug("cown "+event,
			zap.Uint64("cown", c.id),
			zap.Int64("strong", c.strong.Load()),
			zap.Int64("weak", c.weak.Load()))
	}
}
