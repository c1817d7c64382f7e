package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Stats backends
const (
	StatsBackendMemory = "memory"
	StatsBackendRedis  = "redis"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Server    ServerConfig
	Admin     AdminConfig
	GRPC      GRPCConfig
	Redis     RedisConfig
	Stats     StatsConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AdminConfig contains settings of the listener serving /ratelimit/* and /metrics.
// It is bound to loopback unless configured otherwise.
type AdminConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// GRPCConfig contains gRPC server settings
type GRPCConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// StatsConfig selects where decision statistics are recorded
type StatsConfig struct {
	Backend string // memory, redis
	Prefix  string
	TTL     time.Duration
}

// RateLimitConfig contains gate settings
type RateLimitConfig struct {
	PresetsFile       string
	SweepInterval     time.Duration
	TrustForwardedFor bool
}

// Load reads environment variables into Config. It expects godotenv to have been
// executed by the caller when needed (e.g. in development).
func Load() Config {
	server := ServerConfig{
		Host:         getEnv("APP_HOST", "0.0.0.0"),
		Port:         getEnvAsInt("APP_PORT", 3000),
		ReadTimeout:  getEnvAsDuration("APP_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getEnvAsDuration("APP_WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:  getEnvAsDuration("APP_IDLE_TIMEOUT", 10*time.Second),
	}

	admin := AdminConfig{
		Enabled: getEnvAsBool("ADMIN_ENABLED", true),
		Host:    getEnv("ADMIN_HOST", "127.0.0.1"),
		Port:    getEnvAsInt("ADMIN_PORT", 3001),
	}

	grpc := GRPCConfig{
		Enabled: getEnvAsBool("GRPC_ENABLED", false),
		Host:    getEnv("GRPC_HOST", "127.0.0.1"),
		Port:    getEnvAsInt("GRPC_PORT", 50051),
	}

	redis := RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnvAsInt("REDIS_PORT", 6379),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
		PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
	}

	stats := StatsConfig{
		Backend: strings.ToLower(getEnv("STATS_BACKEND", StatsBackendMemory)),
		Prefix:  getEnv("STATS_PREFIX", "ratelimit:stats"),
		TTL:     getEnvAsDuration("STATS_TTL", 24*time.Hour),
	}

	rateLimit := RateLimitConfig{
		PresetsFile:       getEnv("RATE_LIMIT_PRESETS_FILE", ""),
		SweepInterval:     getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		TrustForwardedFor: getEnvAsBool("RATE_LIMIT_TRUST_FORWARDED_FOR", false),
	}

	log := LogConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "console"),
	}

	return Config{
		Server:    server,
		Admin:     admin,
		GRPC:      grpc,
		Redis:     redis,
		Stats:     stats,
		RateLimit: rateLimit,
		Log:       log,
	}
}

// Validate reports settings that cannot be used to start the server.
func (c *Config) Validate() error {
	switch c.Stats.Backend {
	case StatsBackendMemory, StatsBackendRedis:
	default:
		return fmt.Errorf("invalid STATS_BACKEND %q: must be %s or %s", c.Stats.Backend, StatsBackendMemory, StatsBackendRedis)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid APP_PORT %d", c.Server.Port)
	}

	if c.Admin.Enabled {
		if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
			return fmt.Errorf("invalid ADMIN_PORT %d", c.Admin.Port)
		}
		if c.Admin.Port == c.Server.Port {
			return fmt.Errorf("ADMIN_PORT must differ from APP_PORT (%d)", c.Server.Port)
		}
	}

	if c.GRPC.Enabled && (c.GRPC.Port <= 0 || c.GRPC.Port > 65535) {
		return fmt.Errorf("invalid GRPC_PORT %d", c.GRPC.Port)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}

	dur, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}

	return dur
}

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("warning: could not load .env: %v", err)
		}
	}
}

// RedisAddr returns the Redis address in host:port format
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// ServerAddr returns the server address in host:port format
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AdminAddr returns the admin server address in host:port format
func (c *Config) AdminAddr() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// GRPCAddr returns the gRPC address in host:port format
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.GRPC.Host, c.GRPC.Port)
}
