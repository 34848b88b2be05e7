package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Auth           AuthConfig
	RateLimit      RateLimitConfig
	AdminBootstrap AdminBootstrapConfig
	Seed           SeedConfig
	Storage        StorageConfig
	Email          EmailConfig
	Jobs           JobsConfig
	Logging        LoggingConfig
	Tracing        TracingConfig
	Environment    string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
}

type RateLimitConfig struct {
	PublicPerMinute int
	APIPerMinute    int
	AdminPerMinute  int
}

type AdminBootstrapConfig struct {
	Username string
	Password string
	Email    string
}

type SeedConfig struct {
	LoadInitialData bool
	FixturesPath    string
}

type StorageConfig struct {
	Root string
}

type EmailConfig struct {
	ResendAPIKey string
	FromAddress  string
}

type JobsConfig struct {
	RetryAssetProcessing int
	RetryFeedGeneration  int
	RetryFeedDelivery    int
	RetryNotification    int
	AuditRetentionDays   int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string // "stdout", "otlp", or "none"
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// fileConfig mirrors Config with YAML tags. File values act as fallbacks:
// environment variables always win.
type fileConfig struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Database struct {
		URL            string `yaml:"url"`
		MaxConnections int    `yaml:"max_connections"`
		MaxIdle        int    `yaml:"max_idle_connections"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Storage struct {
		Root string `yaml:"root"`
	} `yaml:"storage"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Environment string `yaml:"environment"`
}

// Load builds the configuration from the environment, with an optional YAML
// file providing fallbacks for values the environment does not set. An empty
// path skips the file entirely.
func Load(path string) (Config, error) {
	var file fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", pick(file.Server.Host, "0.0.0.0")),
			Port:    getEnvInt("SERVER_PORT", pickInt(file.Server.Port, 8080)),
			BaseURL: getEnv("SERVER_BASE_URL", pick(file.Server.BaseURL, "http://localhost:8080")),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", file.Database.URL),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", pickInt(file.Database.MaxConnections, 25)),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", pickInt(file.Database.MaxIdle, 5)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", pick(file.Redis.Addr, "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", file.Redis.Password),
			DB:       getEnvInt("REDIS_DB", file.Redis.DB),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute: getEnvInt("RATE_LIMIT_PUBLIC", 60),
			APIPerMinute:    getEnvInt("RATE_LIMIT_API", 300),
			AdminPerMinute:  getEnvInt("RATE_LIMIT_ADMIN", 0),
		},
		AdminBootstrap: AdminBootstrapConfig{
			Username: getEnv("ADMIN_USERNAME", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Email:    getEnv("ADMIN_EMAIL", ""),
		},
		Seed: SeedConfig{
			LoadInitialData: getEnvBool("LOAD_INITIAL_DATA", false),
			FixturesPath:    getEnv("FIXTURES_PATH", "fixtures/initial_data.json"),
		},
		Storage: StorageConfig{
			Root: getEnv("STORAGE_ROOT", pick(file.Storage.Root, "data")),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			FromAddress:  getEnv("EMAIL_FROM", "solidus@localhost"),
		},
		Jobs: JobsConfig{
			RetryAssetProcessing: getEnvInt("JOB_RETRY_ASSET_PROCESSING", 5),
			RetryFeedGeneration:  getEnvInt("JOB_RETRY_FEED_GENERATION", 3),
			RetryFeedDelivery:    getEnvInt("JOB_RETRY_FEED_DELIVERY", 5),
			RetryNotification:    getEnvInt("JOB_RETRY_NOTIFICATION", 10),
			AuditRetentionDays:   getEnvInt("AUDIT_RETENTION_DAYS", 365),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", pick(file.Logging.Level, "info")),
			Format: getEnv("LOG_FORMAT", pick(file.Logging.Format, "json")),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "none"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "solidus-server"),
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: getEnv("ENVIRONMENT", pick(file.Environment, "development")),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func pickInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
