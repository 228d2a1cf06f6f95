package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ServerConfig struct {
	Host            string
	Port            string
	StoreDriver     string
	DatabaseURL     string
	SQLitePath      string
	UploadDir       string
	Retention       time.Duration
	CleanupSchedule string
	AllowedOrigins  []string
	LogLevel        string
}

type ClientConfig struct {
	ServerURL string
	LogLevel  string
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("[CONFIG] No .env file found, relying on system environment variables")
	} else {
		log.Debug().Msg("[CONFIG] Successfully loaded .env file")
	}
}

func LoadServer() (*ServerConfig, error) {
	loadDotEnv()

	cfg := &ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "5001"),
		StoreDriver:     getEnv("STORE_DRIVER", DriverSQLite),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SQLitePath:      getEnv("SQLITE_PATH", "chat.db"),
		UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		CleanupSchedule: getEnv("CLEANUP_SCHEDULE", "@every 1m"),
		AllowedOrigins:  strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	retention, err := time.ParseDuration(getEnv("RETENTION", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETENTION: %w", err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("invalid RETENTION: must be positive, got %s", retention)
	}
	cfg.Retention = retention

	switch cfg.StoreDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", DriverPostgres)
		}
		log.Info().Msgf("[CONFIG] Database URL detected: %s", maskDBSource(cfg.DatabaseURL))
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: must be %q or %q", cfg.StoreDriver, DriverSQLite, DriverPostgres)
	}

	log.Info().Msgf("[CONFIG] Target address: %s:%s (store: %s)", cfg.Host, cfg.Port, cfg.StoreDriver)
	return cfg, nil
}

func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	cfg := &ClientConfig{
		ServerURL: getEnv("CHAT_SERVER_URL", "ws://localhost:5001/ws"),
		LogLevel:  getEnv("LOG_LEVEL", "warn"),
	}
	if _, err := HTTPOrigin(cfg.ServerURL); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPOrigin turns a ws(s):// endpoint into the http(s):// origin serving it.
func HTTPOrigin(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme %q", serverURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", serverURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		log.Debug().Msgf("[CONFIG] Variable %s not found, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func maskDBSource(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[len(parts)-1]
}
