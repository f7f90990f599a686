package config

import (
	"log"
	"os"
	"time"

	"Travault/pkg/cache"
	"Travault/pkg/logger"
	"Travault/pkg/notification"
	"Travault/pkg/util"
)

// config/config.go
type Config struct {
	DBDriver               string `env:"DB_DRIVER"`
	DSN                    string `env:"DSN"`
	Log                    logger.LogConfig
	Mail                   notification.MailConfig
	SMS                    notification.SMSConfig
	Cache                  cache.Config
	Addr                   string        `env:"ADDR"`
	Mode                   string        `env:"MODE"`
	APIPrefix              string        `env:"API_PREFIX"`
	JWTSecret              string        `env:"JWT_SECRET"`
	JWTExpire              time.Duration `env:"JWT_EXPIRE_HOURS"`
	EmergencyServicesEmail string        `env:"EMERGENCY_SERVICES_EMAIL"`
	RateLimit              string        `env:"RATE_LIMIT"`
	EmergencyRateLimit     string        `env:"EMERGENCY_RATE_LIMIT"`
	AlertExpirySchedule    string        `env:"ALERT_EXPIRY_SCHEDULE"`
	ContactCacheTTL        time.Duration `env:"CONTACT_CACHE_TTL_SECONDS"`
	DispatchTimeout        time.Duration `env:"DISPATCH_TIMEOUT_SECONDS"`
	MetricsPath            string        `env:"METRICS_PATH"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		DBDriver: util.GetEnv("DB_DRIVER"),
		DSN:      util.GetEnv("DSN"),
		Addr:     util.GetEnvDefault("ADDR", ":5000"),
		Mode:     util.GetEnvDefault("MODE", "release"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Mail: notification.MailConfig{
			Host:     util.GetEnv("MAIL_HOST"),
			Username: util.GetEnv("MAIL_USERNAME"),
			Password: util.GetEnv("MAIL_PASSWORD"),
			Port:     util.GetIntEnv("MAIL_PORT"),
			From:     util.GetEnv("MAIL_FROM"),
			Timeout:  time.Duration(util.GetIntEnv("MAIL_TIMEOUT_SECONDS")) * time.Second,
		},
		SMS: notification.SMSConfig{
			Provider:  util.GetEnvDefault("SMS_PROVIDER", "log"),
			Endpoint:  util.GetEnv("SMS_ENDPOINT"),
			AccountID: util.GetEnv("SMS_ACCOUNT_ID"),
			AuthToken: util.GetEnv("SMS_AUTH_TOKEN"),
			From:      util.GetEnv("SMS_FROM"),
			Timeout:   time.Duration(util.GetIntEnv("SMS_TIMEOUT_SECONDS")) * time.Second,
		},
		Cache: cache.Config{
			Type: util.GetEnvDefault("CACHE_TYPE", "lru"),
			Redis: cache.RedisConfig{
				Addr:         util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
				Password:     util.GetEnv("REDIS_PASSWORD"),
				DB:           int(util.GetIntEnv("REDIS_DB")),
				PoolSize:     int(util.GetIntEnv("REDIS_POOL_SIZE")),
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			Local: cache.LocalConfig{
				MaxSize:           int(util.GetIntEnv("LOCAL_CACHE_MAX_SIZE")),
				DefaultExpiration: 5 * time.Minute,
				CleanupInterval:   10 * time.Minute,
			},
		},
		APIPrefix:              util.GetEnvDefault("API_PREFIX", "/api"),
		JWTSecret:              util.GetEnv("JWT_SECRET"),
		JWTExpire:              time.Duration(util.GetIntEnv("JWT_EXPIRE_HOURS")) * time.Hour,
		EmergencyServicesEmail: util.GetEnv("EMERGENCY_SERVICES_EMAIL"),
		RateLimit:              util.GetEnvDefault("RATE_LIMIT", "100-M"),
		EmergencyRateLimit:     util.GetEnvDefault("EMERGENCY_RATE_LIMIT", "10-M"),
		AlertExpirySchedule:    util.GetEnvDefault("ALERT_EXPIRY_SCHEDULE", "*/10 * * * *"),
		ContactCacheTTL:        time.Duration(util.GetIntEnv("CONTACT_CACHE_TTL_SECONDS")) * time.Second,
		DispatchTimeout:        time.Duration(util.GetIntEnv("DISPATCH_TIMEOUT_SECONDS")) * time.Second,
		MetricsPath:            util.GetEnvDefault("METRICS_PATH", "/metrics"),
	}
	if GlobalConfig.JWTExpire <= 0 {
		GlobalConfig.JWTExpire = 7 * 24 * time.Hour
	}
	if GlobalConfig.ContactCacheTTL <= 0 {
		GlobalConfig.ContactCacheTTL = 10 * time.Minute
	}
	if GlobalConfig.DispatchTimeout <= 0 {
		GlobalConfig.DispatchTimeout = 20 * time.Second
	}
	if GlobalConfig.JWTSecret == "" {
		log.Printf("JWT_SECRET is empty, tokens are signed with an insecure default")
		GlobalConfig.JWTSecret = "travault-dev-secret"
	}
	return nil
}
