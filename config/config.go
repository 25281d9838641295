package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: only required when checkpointing is enabled.
	Checkpoint    CheckpointConfig
	Auth          AuthConfig
	Router        RouterConfig
	Observability ObservabilityConfig
	ManifestPath  string
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// CheckpointConfig holds the periodic state persistence settings.
type CheckpointConfig struct {
	Enabled  bool
	Interval time.Duration
}

// AuthConfig holds the admin-endpoint JWT settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// RouterConfig holds the fleet-wide routing knobs. Zero values fall back to
// the routing service defaults.
type RouterConfig struct {
	ShedThreshold       float64
	FailureThreshold    int
	TransientCooldown   time.Duration
	RateLimitCooldown   time.Duration
	TimeoutCooldown     time.Duration
	MaxCooldown         time.Duration
	ThrottleWindow      time.Duration
	ThrottleMultiplier  float64
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	HealthWindowSize    int
	HealthEMAAlpha      float64
	HealthRecencyWindow time.Duration
	HealthSuccessWeight float64
	HealthLatencyWeight float64
	HealthRecencyWeight float64
	HealthLatencyScale  time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		ManifestPath: getEnv("BACKENDS_MANIFEST", "backends.yaml"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Checkpoint: CheckpointConfig{
			Enabled:  getEnvAsBool("CHECKPOINT_ENABLED", false),
			Interval: getEnvAsDuration("CHECKPOINT_INTERVAL", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
			Issuer:    getEnv("ADMIN_JWT_ISSUER", "inference-router"),
		},
		Router: RouterConfig{
			ShedThreshold:       getEnvAsFloat("ROUTER_SHED_THRESHOLD", 0.5),
			FailureThreshold:    getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			TransientCooldown:   getEnvAsDuration("BREAKER_TRANSIENT_COOLDOWN", 30*time.Second),
			RateLimitCooldown:   getEnvAsDuration("BREAKER_RATE_LIMIT_COOLDOWN", 2*time.Minute),
			TimeoutCooldown:     getEnvAsDuration("BREAKER_TIMEOUT_COOLDOWN", time.Minute),
			MaxCooldown:         getEnvAsDuration("BREAKER_MAX_COOLDOWN", 10*time.Minute),
			ThrottleWindow:      getEnvAsDuration("THROTTLE_WINDOW", 2*time.Minute),
			ThrottleMultiplier:  getEnvAsFloat("THROTTLE_MULTIPLIER", 2),
			BackoffBase:         getEnvAsDuration("RATE_LIMIT_BACKOFF_BASE", time.Second),
			BackoffCap:          getEnvAsDuration("RATE_LIMIT_BACKOFF_CAP", 2*time.Minute),
			HealthWindowSize:    getEnvAsInt("HEALTH_WINDOW_SIZE", 200),
			HealthEMAAlpha:      getEnvAsFloat("HEALTH_EMA_ALPHA", 0.2),
			HealthRecencyWindow: getEnvAsDuration("HEALTH_RECENCY_HALF_LIFE", 5*time.Minute),
			HealthSuccessWeight: getEnvAsFloat("HEALTH_SUCCESS_WEIGHT", 0.6),
			HealthLatencyWeight: getEnvAsFloat("HEALTH_LATENCY_WEIGHT", 0.2),
			HealthRecencyWeight: getEnvAsFloat("HEALTH_RECENCY_WEIGHT", 0.2),
			HealthLatencyScale:  getEnvAsDuration("HEALTH_LATENCY_SCALE", time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.ManifestPath == "" {
		return fmt.Errorf("backends manifest path is required")
	}

	// Database validation only applies when checkpointing needs it
	if c.Checkpoint.Enabled {
		if c.Database == nil || (c.Database.ConnectionString == "" && c.Database.Host == "") {
			return fmt.Errorf("checkpointing requires a database: set DATABASE_URL or DB_HOST")
		}
		if c.Checkpoint.Interval <= 0 {
			return fmt.Errorf("checkpoint interval must be positive")
		}
	}

	// Admin auth validation (required in production)
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("admin JWT secret is required in production")
	}

	if c.Router.ShedThreshold <= 0 || c.Router.ShedThreshold >= 1 {
		return fmt.Errorf("shed threshold must be in (0, 1)")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither is set (checkpointing disabled).
func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "router"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "router"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
