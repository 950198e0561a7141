package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"":         zerolog.InfoLevel,
		"INFO":     zerolog.InfoLevel,
		"Warn":     zerolog.WarnLevel,
		"ERROR":    zerolog.ErrorLevel,
		"DISABLED": zerolog.Disabled,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLevel("LOUD")
	assert.Error(t, err)
}
