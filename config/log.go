package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log configures the zap logger built by Build.
type Log struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"`
	Development bool   `yaml:"development,omitempty"`
}

// DefaultLog logs info and above to the console.
func DefaultLog() Log {
	return Log{Level: "info", Encoding: "console"}
}

func (l Log) validate() error {
	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		return invalid([]string{"log", "level"}, "unknown level %q", l.Level)
	}
	switch l.Encoding {
	case "console", "json":
	default:
		return invalid([]string{"log", "encoding"}, "unknown encoding %q", l.Encoding)
	}
	return nil
}

// Build creates a logger writing to stderr.
func (l Log) Build(opts ...zap.Option) (*zap.Logger, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	level, _ := zapcore.ParseLevel(l.Level)

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = l.Encoding
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build(opts...)
}
