package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig gathers the settings needed to run the service.
type AppConfig struct {
	ListenAddr         string
	Port               string
	GinMode            string
	LogMode            string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	RedisAddr          string
	TimezoneCacheTTL   time.Duration
	DefaultTimezone    string
	HistoryMaxDays     int
	CORSAllowedOrigins []string
}

// Load reads the configuration from the environment, after loading an optional
// .env file, and fills in defaults for anything missing or malformed.
func Load() AppConfig {
	_ = godotenv.Load()

	port := env("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	driver := strings.ToLower(env("DATABASE_DRIVER", "sqlite"))
	if driver != "postgres" {
		driver = "sqlite"
	}

	ttl, err := time.ParseDuration(env("TIMEZONE_CACHE_TTL", "10m"))
	if err != nil || ttl <= 0 {
		ttl = 10 * time.Minute
	}

	maxDays, err := strconv.Atoi(env("HISTORY_MAX_DAYS", "90"))
	if err != nil || maxDays < 1 {
		maxDays = 90
	}

	var origins []string
	for _, o := range strings.Split(env("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return AppConfig{
		ListenAddr:         listenAddr,
		Port:               port,
		GinMode:            env("GIN_MODE", "release"),
		LogMode:            env("LOG_MODE", "development"),
		DatabaseDriver:     driver,
		DatabasePath:       env("DATABASE_PATH", "rutinas.db"),
		DatabaseDSN:        strings.TrimSpace(os.Getenv("DATABASE_DSN")),
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		TimezoneCacheTTL:   ttl,
		DefaultTimezone:    env("DEFAULT_TIMEZONE", "America/Santiago"),
		HistoryMaxDays:     maxDays,
		CORSAllowedOrigins: origins,
	}
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
