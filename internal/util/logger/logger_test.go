package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_SharedInstance(t *testing.T) {
	a := Logger("shared")
	b := Logger("shared")
	assert.Same(t, a, b)
}

func TestSetOutput_AppliesToExistingLoggers(t *testing.T) {
	log := Logger("output-test")
	SetLevel("output-test", slog.LevelInfo)

	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log.Info("after switch", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "after switch")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "subsystem=output-test")
	assert.Contains(t, out, "level=info")
}

func TestSetLevel(t *testing.T) {
	log := Logger("level-test")
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	SetLevel("level-test", slog.LevelWarn)
	log.Info("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, slog.LevelWarn, Level("level-test"))

	SetLevel("level-test", slog.LevelDebug)
	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestParseEnv(t *testing.T) {
	tests := []struct {
		name      string
		levels    string
		format    string
		addSource string
		check     func(t *testing.T, e *Env)
	}{
		{
			name: "默认配置",
			check: func(t *testing.T, e *Env) {
				assert.Equal(t, slog.LevelInfo, e.Default)
				assert.Equal(t, FormatText, e.Format)
				assert.False(t, e.AddSource)
			},
		},
		{
			name:   "子系统级别与默认级别",
			levels: "conn=debug, relay = warn ,error",
			check: func(t *testing.T, e *Env) {
				assert.Equal(t, slog.LevelError, e.Default)
				assert.Equal(t, slog.LevelDebug, e.levelFor("conn"))
				assert.Equal(t, slog.LevelWarn, e.levelFor("relay"))
				assert.Equal(t, slog.LevelError, e.levelFor("pool"))
			},
		},
		{
			name:   "忽略无法识别的级别",
			levels: "conn=verbose,loud",
			check: func(t *testing.T, e *Env) {
				assert.Equal(t, slog.LevelInfo, e.Default)
				assert.Empty(t, e.Levels)
			},
		},
		{
			name:      "JSON 与源码位置",
			format:    "JSON",
			addSource: "true",
			check: func(t *testing.T, e *Env) {
				assert.Equal(t, FormatJSON, e.Format)
				assert.True(t, e.AddSource)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ParseEnv(tt.levels, tt.format, tt.addSource)
			require.NotNil(t, e)
			tt.check(t, e)
		})
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
	log.Error("nothing")
}
