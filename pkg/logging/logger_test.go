package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNew_ReturnsNamedLogger(t *testing.T) {
	logger := New("engine")
	assert.NotNil(t, logger)
	// Must not panic when used immediately.
	logger.Debug("init")
}

func TestComponent_NilLogger(t *testing.T) {
	logger := Component(nil, "resolver")
	assert.NotNil(t, logger)
	logger.Info("noop")
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		value    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run("level "+tt.value, func(t *testing.T) {
			t.Setenv(envLogLevel, tt.value)
			assert.Equal(t, tt.expected, levelFromEnv())
		})
	}
}
