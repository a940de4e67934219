package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production JSON logger writing to stderr.
func NewLogger(level string) (*zap.Logger, error) {
	return NewFileLogger("", level)
}

// NewFileLogger also appends every entry to filename when it is not empty.
func NewFileLogger(filename, level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	// Parse level
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		l = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(l)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if filename != "" {
		config.OutputPaths = append(config.OutputPaths, filename)
	}

	return config.Build()
}
