package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.InfoLevel, true, true)

	l.Debug().Msg("hidden")
	l.Info().Msg("playback: track started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "playback: track started", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.NotContains(t, entry, "caller")
}

func TestNew_ConsoleDebugHasCaller(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.DebugLevel, false, true)

	l.Debug().Msg("state: applied")
	assert.Contains(t, buf.String(), "state: applied")
	assert.Contains(t, buf.String(), "logger_test.go")
}

func TestShortCaller(t *testing.T) {
	assert.Equal(t, "playback/engine.go:10", shortCaller(0, "/src/internal/app/playback/engine.go", 10))
	assert.Equal(t, "main.go:3", shortCaller(0, "main.go", 3))
}

func TestInit_File(t *testing.T) {
	prev := zlog.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zlog.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "logs", "tunebox.log")
	closer, err := Init(Config{Output: path, Level: "info"})
	require.NoError(t, err)

	zlog.Info().Msg("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"written to file"`)
}
