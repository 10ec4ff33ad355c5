package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_SetsGlobalLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"shouting", zerolog.InfoLevel},
	}

	for _, tc := range tests {
		t.Run("level "+tc.level, func(t *testing.T) {
			New(Config{Level: tc.level})
			if got := zerolog.GlobalLevel(); got != tc.want {
				t.Errorf("GlobalLevel() = %v, want %v", got, tc.want)
			}
		})
	}

	// Restore the default so later tests are unaffected
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestNew_PrettyDoesNotPanic(t *testing.T) {
	l := New(Config{Level: "info", Pretty: true})
	l.Info().Str("check", "console").Msg("pretty output")
}
