package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"`
	MaxAge     int    `env:"LOG_MAX_AGE"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
}

var (
	mu  sync.RWMutex
	lg  = zap.NewNop()
	out zapcore.WriteSyncer = zapcore.AddSync(os.Stdout)
)

// Init 初始化全局日志，mode 为 gin 模式，debug 模式下同时输出到控制台
func Init(cfg *LogConfig, mode string) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var syncers []zapcore.WriteSyncer
	if cfg.Filename != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    nonZero(cfg.MaxSize, 100),
			MaxAge:     nonZero(cfg.MaxAge, 30),
			MaxBackups: nonZero(cfg.MaxBackups, 7),
			Compress:   true,
		}))
	}
	if cfg.Filename == "" || mode == "debug" {
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}

	ws := zapcore.NewMultiWriteSyncer(syncers...)
	var encoder zapcore.Encoder
	if mode == "debug" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(encoder, ws, level)

	mu.Lock()
	lg = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	out = ws
	mu.Unlock()
	zap.ReplaceGlobals(lg)
	return nil
}

// Lg 返回当前的 zap.Logger
func Lg() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return lg
}

// Writer 日志输出目标，供 gorm、gin 复用
func Writer() zapcore.WriteSyncer {
	mu.RLock()
	defer mu.RUnlock()
	return out
}

func Debug(msg string, fields ...zap.Field) { Lg().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Lg().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Lg().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Lg().Error(msg, fields...) }

// Sync 刷新缓冲区
func Sync() {
	_ = Lg().Sync()
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
