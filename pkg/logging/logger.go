// Package logging builds component-scoped structured loggers for Pilot.
// Every component takes a *zap.Logger; passing nil gets a no-op logger so
// library consumers are never forced to configure logging.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// envLogLevel overrides the default info level when set (debug, info,
// warn, error).
const envLogLevel = "PILOT_LOG_LEVEL"

// New returns a production logger named after the component. Output goes
// to stderr so engine output and reports stay clean on stdout.
func New(component string) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		levelFromEnv(),
	)

	return zap.New(core).Named(component)
}

// Component returns logger scoped to a sub-component, tolerating nil.
func Component(logger *zap.Logger, component string) *zap.Logger {
	if logger == nil {
		return zap.NewNop().Named(component)
	}
	return logger.Named(component)
}

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv(envLogLevel)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
