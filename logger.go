package corebind

import (
	"go.uber.org/zap"

	"github.com/wippyai/corebind/bridge"
)

// SetLogger routes the package-level loggers of the binding to l.
// Per-instance loggers are passed with store.WithLogger.
func SetLogger(l *zap.Logger) {
	bridge.SetLogger(l)
}

// Logger returns the logger configured with SetLogger, or a no-op logger.
func Logger() *zap.Logger {
	return bridge.Logger()
}
