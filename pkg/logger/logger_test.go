package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "travault.log")
	require.NoError(t, Init(&LogConfig{Level: "info", Filename: file}, "release"))

	Info("emergency raised", zap.String("reportId", "r-1"))
	Debug("filtered out")
	Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "emergency raised")
	assert.Contains(t, string(data), "r-1")
	assert.NotContains(t, string(data), "filtered out")
}

func TestInitRejectsBadLevel(t *testing.T) {
	assert.Error(t, Init(&LogConfig{Level: "loud"}, "release"))
}
