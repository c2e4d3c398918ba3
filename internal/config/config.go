package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the directory.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Events    EventsConfig
	Directory DirectoryConfig
}

// AppConfig identifies the process and controls the HTTP listener.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory employee store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig points at the server that carries the event stream.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// EventsConfig controls the Redis stream that hierarchy events are relayed to.
type EventsConfig struct {
	Stream       string
	StreamMaxLen int64
}

// DirectoryConfig holds paging and lookup limits for the directory.
type DirectoryConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	SearchLimit     int
	MaxSearchLimit  int
}

// Load reads a .env file when present, then the environment. Malformed
// tuning knobs fall back to their defaults; a malformed REDIS_DB is an error
// because it would silently point the relay at another database.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redis, err := loadRedis()
	if err != nil {
		return nil, err
	}

	return &Config{
		App:       loadApp(),
		Postgres:  loadPostgres(),
		Redis:     redis,
		Logger:    LoggerConfig{Level: strings.ToLower(envString("LOG_LEVEL", "info"))},
		Events:    loadEvents(),
		Directory: loadDirectory(),
	}, nil
}

func loadApp() AppConfig {
	return AppConfig{
		Name:                  envString("APP_NAME", "employee-directory"),
		Env:                   envString("APP_ENV", "development"),
		Host:                  envString("APP_HOST", "0.0.0.0"),
		Port:                  envString("APP_PORT", "8080"),
		Version:               envString("APP_VERSION", "dev"),
		RequestTimeoutSeconds: envInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
	}
}

func loadPostgres() PostgresConfig {
	return PostgresConfig{
		DSN:            os.Getenv("POSTGRES_DSN"),
		MaxConns:       int32(envInt("POSTGRES_MAX_CONNS", 10)),
		MinConns:       int32(envInt("POSTGRES_MIN_CONNS", 2)),
		RunMigrations:  envBool("POSTGRES_RUN_MIGRATIONS", true),
		ConnMaxIdleSec: int32(envInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
		ConnMaxLifeSec: int32(envInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
	}
}

func loadRedis() (RedisConfig, error) {
	db, err := strconv.Atoi(envString("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	return RedisConfig{
		Addr:     envString("REDIS_ADDR", "127.0.0.1:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func loadEvents() EventsConfig {
	return EventsConfig{
		Stream:       envString("EVENTS_STREAM", "employee-events"),
		StreamMaxLen: int64(envInt("EVENTS_STREAM_MAXLEN", 10000)),
	}
}

func loadDirectory() DirectoryConfig {
	return DirectoryConfig{
		DefaultPageSize: envInt("DIRECTORY_DEFAULT_PAGE_SIZE", 50),
		MaxPageSize:     envInt("DIRECTORY_MAX_PAGE_SIZE", 500),
		SearchLimit:     envInt("DIRECTORY_SEARCH_LIMIT", 10),
		MaxSearchLimit:  envInt("DIRECTORY_MAX_SEARCH_LIMIT", 100),
	}
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return a.Host + ":" + a.Port
}

// RequestTimeout returns the per-request deadline, zero when disabled.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func envString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(envString(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(envString(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return parsed
}
