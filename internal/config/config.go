package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig
	Server     ServerConfig
	Query      QueryConfig
	Mock       MockConfig
	Rules      RulesConfig
	Logging    LoggingConfig
}

// PostgreSQLConfig holds PostgreSQL configuration for the query log
type PostgreSQLConfig struct {
	DSN                string // full connection string, takes precedence over the parts below
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
	Enabled            bool
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

// QueryConfig bounds what a single request may ask of the pipeline
type QueryConfig struct {
	MaxLength      int   // runes of query text
	MaxBodyBytes   int64 // raw request body
	RateLimitRPS   float64
	RateLimitBurst int
	HistoryLimit   int
}

// MockConfig holds mock bundle generation settings
type MockConfig struct {
	MinResults int
	MaxResults int
	MinAge     int
	MaxAge     int
}

// RulesConfig points at an optional rule set file overriding the embedded one
type RulesConfig struct {
	File string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	dsn := getEnv("DATABASE_URL", getEnv("POSTGRESQL_URI", getEnv("PG_DSN", "")))

	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                dsn,
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "fhir_nlp"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 2),
			Enabled:            dsn != "" || os.Getenv("PG_HOST") != "",
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 5050),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Query: QueryConfig{
			MaxLength:      getEnvAsInt("QUERY_MAX_LENGTH", 500),
			MaxBodyBytes:   int64(getEnvAsInt("QUERY_MAX_BODY_BYTES", 16*1024)),
			RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),
			HistoryLimit:   getEnvAsInt("QUERY_HISTORY_LIMIT", 50),
		},
		Mock: MockConfig{
			MinResults: getEnvAsInt("MOCK_MIN_RESULTS", 5),
			MaxResults: getEnvAsInt("MOCK_MAX_RESULTS", 15),
			MinAge:     getEnvAsInt("MOCK_MIN_AGE", 25),
			MaxAge:     getEnvAsInt("MOCK_MAX_AGE", 85),
		},
		Rules: RulesConfig{
			File: getEnv("RULES_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Mock.MinResults < 0 || c.Mock.MaxResults < c.Mock.MinResults {
		return fmt.Errorf("MOCK_MIN_RESULTS/MOCK_MAX_RESULTS must satisfy 0 <= min <= max, got %d/%d",
			c.Mock.MinResults, c.Mock.MaxResults)
	}
	if c.Mock.MinAge < 0 || c.Mock.MaxAge < c.Mock.MinAge {
		return fmt.Errorf("MOCK_MIN_AGE/MOCK_MAX_AGE must satisfy 0 <= min <= max, got %d/%d",
			c.Mock.MinAge, c.Mock.MaxAge)
	}
	if c.Query.MaxLength <= 0 {
		return fmt.Errorf("QUERY_MAX_LENGTH must be positive, got %d", c.Query.MaxLength)
	}
	if c.Query.HistoryLimit <= 0 {
		return fmt.Errorf("QUERY_HISTORY_LIMIT must be positive, got %d", c.Query.HistoryLimit)
	}
	return nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// SplitList splits a comma separated setting, dropping blanks
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Int("default", defaultValue).Msg("invalid integer value, using default")
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
		log.Warn().Str("key", key).Float64("default", defaultValue).Msg("invalid float value, using default")
		return defaultValue
	}
	return value
}
