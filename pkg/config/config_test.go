package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "nonexistent")
	t.Setenv("API_PREFIX", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_EXPIRE_HOURS", "")

	require.NoError(t, Load())
	assert.Equal(t, "/api", GlobalConfig.APIPrefix)
	assert.Equal(t, 7*24*time.Hour, GlobalConfig.JWTExpire)
	assert.NotEmpty(t, GlobalConfig.JWTSecret)
	assert.Equal(t, "lru", GlobalConfig.Cache.Type)
	assert.Equal(t, 20*time.Second, GlobalConfig.DispatchTimeout)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "nonexistent")
	t.Setenv("DB_DRIVER", "pg")
	t.Setenv("MAIL_PORT", "2525")
	t.Setenv("JWT_EXPIRE_HOURS", "2")
	t.Setenv("EMERGENCY_SERVICES_EMAIL", "dispatch@example.org")
	t.Setenv("SMS_PROVIDER", "http")
	t.Setenv("MAIL_TIMEOUT_SECONDS", "4")
	t.Setenv("DISPATCH_TIMEOUT_SECONDS", "9")

	require.NoError(t, Load())
	assert.Equal(t, "pg", GlobalConfig.DBDriver)
	assert.Equal(t, int64(2525), GlobalConfig.Mail.Port)
	assert.Equal(t, 2*time.Hour, GlobalConfig.JWTExpire)
	assert.Equal(t, "dispatch@example.org", GlobalConfig.EmergencyServicesEmail)
	assert.Equal(t, "http", GlobalConfig.SMS.Provider)
	assert.Equal(t, 4*time.Second, GlobalConfig.Mail.Timeout)
	assert.Equal(t, 9*time.Second, GlobalConfig.DispatchTimeout)
}
