package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedEnv(t *testing.T) {
	t.Setenv("TRAVAULT_INT", "42")
	t.Setenv("TRAVAULT_BOOL", "yes")
	t.Setenv("TRAVAULT_FLOAT", "12.5")
	t.Setenv("TRAVAULT_BAD", "abc")

	assert.Equal(t, int64(42), GetIntEnv("TRAVAULT_INT"))
	assert.True(t, GetBoolEnv("TRAVAULT_BOOL"))
	assert.Equal(t, 12.5, GetFloatEnv("TRAVAULT_FLOAT"))
	assert.Equal(t, int64(0), GetIntEnv("TRAVAULT_BAD"))
	assert.False(t, GetBoolEnv("TRAVAULT_MISSING"))
	assert.Equal(t, "fallback", GetEnvDefault("TRAVAULT_MISSING", "fallback"))
}

func TestLoadEnvPrefersEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TRAVAULT_NAME=base\nTRAVAULT_ONLY_BASE=1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte("TRAVAULT_NAME=test\n"), 0o644))
	os.Unsetenv("TRAVAULT_NAME")
	os.Unsetenv("TRAVAULT_ONLY_BASE")
	defer os.Unsetenv("TRAVAULT_NAME")
	defer os.Unsetenv("TRAVAULT_ONLY_BASE")

	require.NoError(t, LoadEnv("test"))
	assert.Equal(t, "test", GetEnv("TRAVAULT_NAME"))
	assert.Equal(t, int64(1), GetIntEnv("TRAVAULT_ONLY_BASE"))
}

func TestInitDatabaseMemory(t *testing.T) {
	db, err := InitDatabase(nil, "", "")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}
