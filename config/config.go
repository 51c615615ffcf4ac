package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration
type Config struct {
	Port               int
	RedisURL           string
	RedisPassword      string
	MaxSessions        int
	SessionTimeout     time.Duration
	GeminiAPIKey       string
	AllowedOrigins     []string
	MaxBufferSize      int   // Maximum microphone buffer size in bytes per session
	MaxUploadSize      int64 // Maximum multipart upload size in bytes
	KnowledgeDir       string
	TempDir            string
	LogLevel           string
	DefaultModel       string
	TranscriptionModel string
	DefaultTemperature float32
	DefaultMaxTokens   int32
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		RedisURL:           getEnvDefault("REDIS_URL", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		AllowedOrigins:     getEnvListDefault("ALLOWED_ORIGINS", []string{"*"}),
		KnowledgeDir:       getEnvDefault("KNOWLEDGE_DIR", "knowledge_base"),
		TempDir:            getEnvDefault("TEMP_DIR", os.TempDir()),
		LogLevel:           strings.ToLower(getEnvDefault("LOG_LEVEL", "info")),
		DefaultModel:       getEnvDefault("DEFAULT_MODEL", DefaultModelName),
		TranscriptionModel: getEnvDefault("TRANSCRIPTION_MODEL", DefaultModelName),
	}
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if _, ok := LookupModel(config.DefaultModel); !ok {
		return nil, fmt.Errorf("invalid DEFAULT_MODEL: unknown model %q", config.DefaultModel)
	}

	var (
		timeoutMinutes int
		maxTokens      int
		temperature    float64
		err            error
	)
	if config.Port, err = getEnvInt("PORT", 8080); err != nil {
		return nil, err
	}
	if config.MaxSessions, err = getEnvInt("MAX_SESSIONS", 100); err != nil {
		return nil, err
	}
	if timeoutMinutes, err = getEnvInt("SESSION_TIMEOUT", 30); err != nil {
		return nil, err
	}
	config.SessionTimeout = time.Duration(timeoutMinutes) * time.Minute

	if config.MaxBufferSize, err = getEnvInt("MAX_BUFFER_SIZE", 5*1024*1024); err != nil {
		return nil, err
	}
	uploadSize, err := getEnvInt("MAX_UPLOAD_SIZE", 32*1024*1024)
	if err != nil {
		return nil, err
	}
	config.MaxUploadSize = int64(uploadSize)

	if temperature, err = getEnvFloat("DEFAULT_TEMPERATURE", float64(DefaultTemperature)); err != nil {
		return nil, err
	}
	config.DefaultTemperature = ClampTemperature(float32(temperature))
	if maxTokens, err = getEnvInt("DEFAULT_MAX_TOKENS", int(DefaultMaxTokens)); err != nil {
		return nil, err
	}
	config.DefaultMaxTokens = ClampMaxTokens(maxTokens)

	return config, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvListDefault splits a comma-separated variable, dropping blanks.
func getEnvListDefault(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
