// Package config loads runtime configuration from the environment,
// with .env file support for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the server.
type Config struct {
	// Server
	APIHost string
	APIPort int

	// Processor
	MaxActiveFetches int // matches Universalis's documented per-IP connection cap

	// Upstream Universalis API
	UniversalisBaseURL string
	DefaultRetainDays   float64

	// WebSocket admission control
	WebSocketMaxGlobal int64
	WebSocketMaxPerIP  int64
	AllowedOrigins     []string

	// Catalog
	CatalogDBPath string
	CatalogCSVSeed string

	// Circuit breaker / retry
	FetchTimeout time.Duration
}

// Load reads configuration from environment variables (and any .env
// file present), falling back to defaults suited for local development.
func Load() Config {
	loadEnvironmentConfig()

	return Config{
		APIHost:             getEnv("API_HOST", "0.0.0.0"),
		APIPort:             getEnvInt("API_PORT", 8080),
		MaxActiveFetches:    getEnvInt("MAX_ACTIVE_FETCHES", 8),
		UniversalisBaseURL:  getEnv("UNIVERSALIS_BASE_URL", "https://universalis.app"),
		DefaultRetainDays:   getEnvFloat("DEFAULT_RETAIN_DAYS", 7.0),
		WebSocketMaxGlobal:  int64(getEnvInt("WEBSOCKET_MAX_GLOBAL", 256)),
		WebSocketMaxPerIP:   int64(getEnvInt("WEBSOCKET_MAX_PER_IP", 4)),
		AllowedOrigins:      getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		CatalogDBPath:       getEnv("CATALOG_DB_PATH", "catalog.db"),
		CatalogCSVSeed:      getEnv("CATALOG_CSV_SEED", ""),
		FetchTimeout:        time.Duration(getEnvInt("FETCH_TIMEOUT_SEC", 15)) * time.Second,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p := strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func loadEnvironmentConfig() {
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env file")
	} else {
		log.Printf("config: no .env file found, using system environment variables")
	}
}
