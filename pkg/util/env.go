package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv 按环境加载 .env 文件，.env.<env> 优先于 .env
func LoadEnv(env string) error {
	files := make([]string, 0, 2)
	if env != "" {
		name := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(name); err == nil {
			files = append(files, name)
		}
	}
	if _, err := os.Stat(".env"); err == nil {
		files = append(files, ".env")
	}
	if len(files) == 0 {
		return fmt.Errorf("no env file found for %q", env)
	}
	// godotenv.Load 不覆盖已有变量，靠前的文件优先
	return godotenv.Load(files...)
}

// GetEnv 读取字符串环境变量
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvDefault 读取字符串环境变量，为空时返回默认值
func GetEnvDefault(key, def string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return def
}

// GetIntEnv 读取整型环境变量，解析失败返回 0
func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

// GetBoolEnv 读取布尔环境变量，支持 1/true/yes
func GetBoolEnv(key string) bool {
	v := strings.ToLower(GetEnv(key))
	if v == "yes" || v == "on" {
		return true
	}
	return cast.ToBool(v)
}

// GetFloatEnv 读取浮点环境变量
func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(GetEnv(key))
}
