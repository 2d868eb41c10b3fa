package logger

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestFileWriterDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lvm.log")

	w, ok := FileWriter(path, 0).(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, path, w.Filename)
	assert.Equal(t, DEFAULT_LOG_FILE_MAX_MB, w.MaxSize)
	assert.Equal(t, LOG_FILE_MAX_BACKUPS, w.MaxBackups)

	w, ok = FileWriter(path, 10).(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, 10, w.MaxSize)
}
