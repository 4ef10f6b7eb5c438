package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DB       DBConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	JWT      JWTConfig
	Admin    AdminConfig
	Worker   WorkerConfig
}

type DBConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

type RedisConfig struct {
	Host          string
	Port          string
	RedisPassword string
	RedisDB       string
	CacheTTL      time.Duration
}

type RabbitMQConfig struct {
	URL   string
	Queue string
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type AdminConfig struct {
	Secret string
}

type WorkerConfig struct {
	Count        int
	MetricsPort  string
	AuditLogPath string // empty writes the audit log to stdout
}

// Enabled reports whether a Redis host was configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Enabled reports whether a RabbitMQ URL was configured.
func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

func Load() *Config {
	return &Config{
		AppName: getEnv("APP_NAME", "asura-backend"),
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", getEnv("PORT", "3001")),

		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", DriverSQLite),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   os.Getenv("DB_PASSWORD"),
			Name:       getEnv("DB_NAME", "asura"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "asura.db"),
		},

		Redis: RedisConfig{
			Host:          os.Getenv("REDIS_HOST"),
			Port:          getEnv("REDIS_PORT", "6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnv("REDIS_DB", "0"),
			CacheTTL:      getDuration("CACHE_TTL", 5*time.Minute),
		},

		RabbitMQ: RabbitMQConfig{
			URL:   os.Getenv("RABBITMQ_URL"),
			Queue: getEnv("RABBITMQ_QUEUE", "user_events"),
		},

		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-secret"),
			TTL:    getDuration("JWT_TTL", 24*time.Hour),
		},

		Admin: AdminConfig{
			Secret: getEnv("ADMIN_SECRET", "change-this-secret"),
		},

		Worker: WorkerConfig{
			Count:        getInt("WORKER_COUNT", 3),
			MetricsPort:  getEnv("WORKER_METRICS_PORT", "8088"),
			AuditLogPath: os.Getenv("AUDIT_LOG_PATH"),
		},
	}
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver))
	}

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.Admin.Secret == "" {
		errs = append(errs, errors.New("ADMIN_SECRET must not be empty"))
	}
	if c.Redis.Enabled() {
		if _, err := strconv.Atoi(c.Redis.RedisDB); err != nil {
			errs = append(errs, fmt.Errorf("invalid REDIS_DB %q", c.Redis.RedisDB))
		}
	}

	if c.Worker.Count < 1 {
		errs = append(errs, errors.New("WORKER_COUNT must be at least 1"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}
