package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/sai-cache/types"
)

func TestNewDefaultLogger_NilConfig(t *testing.T) {
	log, err := NewDefaultLogger(nil)
	require.NoError(t, err)
	require.NotNil(t, log)

	wrapper, ok := log.(*ZapWrapper)
	require.True(t, ok)
	assert.True(t, wrapper.Logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, wrapper.Logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewDefaultLogger_LevelFromConfig(t *testing.T) {
	log, err := NewDefaultLogger(&types.LoggerConfig{Level: "error"})
	require.NoError(t, err)

	wrapper := log.(*ZapWrapper)
	assert.True(t, wrapper.Logger.Core().Enabled(zapcore.ErrorLevel))
	assert.False(t, wrapper.Logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewDefaultLogger_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "cache.log")

	log, err := NewDefaultLogger(&types.LoggerConfig{
		Level: "debug",
		Config: map[string]interface{}{
			"format": "json",
			"output": "file",
			"file":   logFile,
		},
	})
	require.NoError(t, err)

	log.Info("file sink check")
	require.NoError(t, log.(*ZapWrapper).Sync())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "file sink check")
}

func TestNewDefaultLogger_BadConfigValue(t *testing.T) {
	_, err := NewDefaultLogger(&types.LoggerConfig{
		Config: map[string]interface{}{"output": 123},
	})
	assert.Error(t, err)
}

func TestEnsureLogDir(t *testing.T) {
	assert.ErrorIs(t, ensureLogDir(""), types.ErrLogFileIsEmpty)
	assert.ErrorIs(t, ensureLogDir("cache.log"), types.ErrLogFileWrongFormat)

	logFile := filepath.Join(t.TempDir(), "nested", "cache.log")
	require.NoError(t, ensureLogDir(logFile))
	assert.DirExists(t, filepath.Dir(logFile))
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"WARN":    zapcore.WarnLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}

	for input, want := range cases {
		assert.Equal(t, want, parseLogLevel(input), "level %q", input)
	}
}

func TestNopLoggerIsSilentAndSafe(t *testing.T) {
	log := NewNopLogger()

	assert.NotPanics(t, func() {
		log.Debug("debug", zap.String("k", "v"))
		log.Info("info")
		log.Warn("warn")
		log.Error("error")
		log.ErrorWithErrStack("with stack", errors.Wrap(errors.New("inner"), "outer"))
		log.ErrorWithErrStack("nil error", nil)
	})
}

func TestExtractStackFromError(t *testing.T) {
	// pkg/errors values carry a stack trace, plain errors do not.
	assert.NotEmpty(t, extractStackFromError(errors.New("boom")))
	assert.NotEmpty(t, extractStackFromError(errors.Wrap(errors.New("inner"), "outer")))
	assert.Empty(t, extractStackFromError(types.NewErrorf("plain")))
	assert.Empty(t, extractStackFromError(nil))
}

func TestCondenseStack(t *testing.T) {
	raw := "main.doWork\n\t/app/main.go:10\nruntime.goexit\n\t/usr/local/go/src/runtime/asm_amd64.s:1700\n"

	condensed := condenseStack(raw)
	assert.Contains(t, condensed, "main.doWork")
	assert.Contains(t, condensed, "/app/main.go:10")
	assert.NotContains(t, condensed, "runtime.goexit")
	assert.NotContains(t, condensed, "asm_amd64.s")
}