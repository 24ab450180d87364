package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{" warning ", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	Info("hidden")
	Debug("hidden too")
	Warn("shown", "group", "КИ23-01Б")
	Error("failed", errors.New("boom"), "status", 500)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown group=КИ23-01Б")
	assert.Contains(t, out, "[ERROR] failed err=boom status=500")
}

func TestFormatKVsQuotesSpaces(t *testing.T) {
	assert.Equal(t, ` target="КИ23-01Б (1 подгруппа)" n=2`, formatKVs("target", "КИ23-01Б (1 подгруппа)", "n", 2, "dangling"))
}
