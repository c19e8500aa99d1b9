package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the simulator's logger. Entries always go to stderr so they
// stay out of the REPL's stdout; outputs (logger.outputs, e.g. a log file) are
// added as extra sinks. Format "json" selects the production encoder.
func NewLogger(level string, format string, outputs ...string) (*zap.Logger, error) {
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(logLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = append([]string{"stderr"}, outputs...)

	return cfg.Build()
}
