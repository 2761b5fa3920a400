package app

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	HTTPAddr string

	DBDriver          string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	JWTSecret string
	AMQPURL   string

	CORSAllowedOrigins []string
	RateLimitPerMin    int
	CSRFEnforced       bool
}

func LoadConfig() Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		AppEnv:             envOrDefault("APP_ENV", "development"),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		DBDriver:           envOrDefault("DB_DRIVER", "postgres"),
		DBDSN:              os.Getenv("DB_DSN"),
		DBMaxOpenConns:     intOrDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:     intOrDefault("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMins:  intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		JWTSecret:          envOrDefault("JWT_SECRET", "examlms-dev-secret"),
		AMQPURL:            os.Getenv("AMQP_URL"),
		CORSAllowedOrigins: splitAndTrim(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitPerMin:    intOrDefault("RATE_LIMIT_PER_MINUTE", 120),
		CSRFEnforced:       boolOrDefault("CSRF_ENFORCED", false),
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func intOrDefault(key string, fallback int) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	if n <= 0 {
		return fallback
	}
	return n
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
