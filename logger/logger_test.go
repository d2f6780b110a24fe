package logger_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/logger"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, logger.ParseLevel("debug"))
	require.Equal(t, slog.LevelInfo, logger.ParseLevel("INFO"))
	require.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	require.Equal(t, slog.LevelWarn, logger.ParseLevel("nonsense"))
}

func TestOpenLogFileCreatesFile(t *testing.T) {
	path := t.TempDir() + "/agora.log"
	f, cleanup, err := logger.OpenLogFile(path)
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, f)
}
