package obs

import (
	"sync"

	"go.uber.org/zap"
)

var (
	loggerOnce sync.Once
	logger     *zap.Logger
)

// Logger returns the shared structured logger used across the service.
// Defaults to production JSON output; InitLogger may replace it once at
// startup before any request traffic.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			l, err := zap.NewProduction()
			if err != nil {
				l = zap.NewNop()
			}
			logger = l
		}
	})
	return logger
}

// InitLogger installs the process-wide logger. Call before Logger.
func InitLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	loggerOnce.Do(func() {})
	logger = l
}
