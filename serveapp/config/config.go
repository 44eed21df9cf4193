package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/harrison-roh/leaf-disease-detection/serveapp/constants"
	"github.com/joho/godotenv"
)

// Config 서빙 앱 설정정보
type Config struct {
	Port           string
	ModelPath      string
	Backend        string
	ONNXRuntimeLib string
	DSN            string
	ImagesPath     string
	StaticPath     string
	AllowedOrigins []string
	LogLevel       string
}

// Load .env 와 환경변수에서 설정 로드
func Load() *Config {
	// .env 파일이 없으면 환경변수만 사용
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", constants.DefaultPort),
		ModelPath:      getEnv("MODEL_DIR", constants.DefaultModelPath),
		Backend:        getEnv("MODEL_BACKEND", constants.DefaultBackend),
		ONNXRuntimeLib: getEnv("ONNXRUNTIME_LIB", ""),
		DSN:            getEnv("DB_DSN", ""),
		ImagesPath:     getEnv("IMAGES_DIR", constants.ImagesPath),
		StaticPath:     getEnv("STATIC_DIR", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", constants.DefaultOrigins)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// InitLogger JSON slog 핸들러를 기본 로거로 설정
func InitLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: l,
	})
	slog.SetDefault(slog.New(handler))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
