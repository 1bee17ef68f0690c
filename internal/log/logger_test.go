package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		env   string
		level string
		want  zerolog.Level
	}{
		{"production", "", zerolog.InfoLevel},
		{"development", "", zerolog.DebugLevel},
		{"production", "debug", zerolog.DebugLevel},
		{"development", " WARN ", zerolog.WarnLevel},
		{"production", "trace", zerolog.TraceLevel},
		{"production", "verbose", zerolog.InfoLevel},
		{"staging", "nonsense", zerolog.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveLevel(tt.env, tt.level))
		})
	}
}
