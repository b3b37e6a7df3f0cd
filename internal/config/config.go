package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort       int
	DBPath         string
	AllowedOrigin  string
	JWTSecret      string
	JWTTTL         time.Duration
	GoogleClientID string
	GoogleSecret   string
	DefaultQuery   string
	IMAPHost       string
	IMAPPort       int
	SMTPHost       string
	SMTPPort       int
}

func Load() Config {
	return Config{
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		DBPath:         getEnvString("DB_PATH", ""),
		AllowedOrigin:  getEnvString("ALLOWED_ORIGIN", "*"),
		JWTSecret:      getEnvString("JWT_SECRET", ""),
		JWTTTL:         getEnvDuration("JWT_TTL", 24*time.Hour),
		GoogleClientID: getEnvString("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:   getEnvString("GOOGLE_CLIENT_SECRET", ""),
		DefaultQuery:   getEnvString("INBOX_QUERY", "in:inbox"),
		IMAPHost:       getEnvString("IMAP_HOST", "imap.gmail.com"),
		IMAPPort:       getEnvInt("IMAP_PORT", 993),
		SMTPHost:       getEnvString("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:       getEnvInt("SMTP_PORT", 587),
	}
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
