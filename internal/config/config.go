// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Spot        SpotConfig
	Presence    PresenceConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
	Migrate      bool
}

// DSN returns the connection string for pgxpool
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d&pool_max_conn_lifetime=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
		c.MaxOpenConns, c.MaxIdleConns, c.MaxLifetime,
	)
}

// NATSConfig holds NATS configuration. An empty URL disables the event bus.
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	EventsTopic    string
}

// RedisConfig holds Redis configuration. An empty Addr disables presence.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	TokenSecret string
	TokenIssuer string
	TokenExpiry time.Duration
	BcryptCost  int
}

// SpotConfig holds spot engine configuration
type SpotConfig struct {
	DefaultRadius float64
	MinRadius     float64
	MaxRadius     float64
	PollInterval  time.Duration
	SyncInterval  time.Duration
	SessionIdle   time.Duration
	FetchLimit    int
	FetchAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// PresenceConfig holds presence tracking configuration
type PresenceConfig struct {
	OnlineWindow time.Duration
	Retention    time.Duration
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "spotit"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			Migrate:      getEnvAsBool("DB_MIGRATE", true),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
			EventsTopic:    getEnv("NATS_EVENTS_TOPIC", "spotit"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("AUTH_TOKEN_SECRET", "your-secret-key"),
			TokenIssuer: getEnv("AUTH_TOKEN_ISSUER", "spotit"),
			TokenExpiry: getEnvAsDuration("AUTH_TOKEN_EXPIRY", 7*24*time.Hour),
			BcryptCost:  getEnvAsInt("AUTH_BCRYPT_COST", 0),
		},
		Spot: SpotConfig{
			DefaultRadius: getEnvAsFloat("SPOT_DEFAULT_RADIUS", 100),
			MinRadius:     getEnvAsFloat("SPOT_MIN_RADIUS", 10),
			MaxRadius:     getEnvAsFloat("SPOT_MAX_RADIUS", 500),
			PollInterval:  getEnvAsDuration("SPOT_POLL_INTERVAL", 5*time.Second),
			SyncInterval:  getEnvAsDuration("SPOT_SYNC_INTERVAL", 30*time.Second),
			SessionIdle:   getEnvAsDuration("SPOT_SESSION_IDLE", 30*time.Minute),
			FetchLimit:    getEnvAsInt("SPOT_FETCH_LIMIT", 500),
			FetchAttempts: getEnvAsInt("SPOT_FETCH_ATTEMPTS", 3),
			RetryDelay:    getEnvAsDuration("SPOT_RETRY_DELAY", 200*time.Millisecond),
			RetryMaxDelay: getEnvAsDuration("SPOT_RETRY_MAX_DELAY", 2*time.Second),
		},
		Presence: PresenceConfig{
			OnlineWindow: getEnvAsDuration("PRESENCE_ONLINE_WINDOW", 2*time.Minute),
			Retention:    getEnvAsDuration("PRESENCE_RETENTION", 30*24*time.Hour),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Auth.TokenSecret == "your-secret-key" && config.Environment != "development" {
		return fmt.Errorf("token secret must be set in non-development environments")
	}
	if config.Spot.MinRadius <= 0 || config.Spot.MinRadius > config.Spot.MaxRadius {
		return fmt.Errorf("spot radius bounds are invalid: min %v, max %v", config.Spot.MinRadius, config.Spot.MaxRadius)
	}
	if config.Spot.DefaultRadius < config.Spot.MinRadius || config.Spot.DefaultRadius > config.Spot.MaxRadius {
		return fmt.Errorf("default spot radius %v is outside [%v, %v]", config.Spot.DefaultRadius, config.Spot.MinRadius, config.Spot.MaxRadius)
	}
	if config.Spot.FetchAttempts < 1 {
		return fmt.Errorf("spot fetch attempts must be at least 1")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
