// Package storage provides the relational tenant registry, the Redis staging
// cache and the ClickHouse cold store behind the ingestion pipeline.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/logtier-io/logtier/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute

	defaultStagingPort      = 6379
	defaultColdPort         = 9000
	defaultColdSecurePort   = 9440
	defaultColdMaxOpenConns = 10
)

// Configuration errors (static sentinel errors for errors.Is() checks).
var (
	// ErrDatabaseHostEmpty is returned when the relational host is missing.
	ErrDatabaseHostEmpty = errors.New("database host cannot be empty")

	// ErrDatabaseNameEmpty is returned when the relational database name is missing.
	ErrDatabaseNameEmpty = errors.New("database name cannot be empty")

	// ErrDatabaseUserEmpty is returned when the relational user is missing.
	ErrDatabaseUserEmpty = errors.New("database user cannot be empty")

	// ErrStagingHostEmpty is returned when the staging cache host is missing.
	ErrStagingHostEmpty = errors.New("staging cache host cannot be empty")

	// ErrColdHostEmpty is returned when the cold store host is missing.
	ErrColdHostEmpty = errors.New("cold store host cannot be empty")
)

// RelationalConfig holds PostgreSQL connection configuration for the tenant
// registry, with production-ready pool defaults.
type RelationalConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	password string // private so it never leaks through logging
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadRelationalConfig loads registry configuration from the environment.
func LoadRelationalConfig() *RelationalConfig {
	return &RelationalConfig{
		Host:            config.GetEnvStr("DB_HOST", ""),
		Port:            config.GetEnvInt("DB_PORT", 5432),
		Name:            config.GetEnvStr("DB_NAME", ""),
		User:            config.GetEnvStr("DB_USER", ""),
		password:        config.GetEnvStr("DB_PASSWORD", ""),
		SSLMode:         config.GetEnvStr("DB_SSLMODE", "disable"),
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// Validate checks if the registry configuration is complete.
func (c *RelationalConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrDatabaseHostEmpty
	}

	if strings.TrimSpace(c.Name) == "" {
		return ErrDatabaseNameEmpty
	}

	if strings.TrimSpace(c.User) == "" {
		return ErrDatabaseUserEmpty
	}

	return nil
}

// DSN returns the lib/pq connection URL.
func (c *RelationalConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Name,
	}

	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()

	return u.String()
}

// Redacted returns a connection description safe for logging.
func (c *RelationalConfig) Redacted() string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s", c.User, c.Host, c.Port, c.Name)
}

// StagingConfig holds Redis connection configuration for the staging cache.
type StagingConfig struct {
	Host     string
	Port     int
	Username string
	password string

	// DecodeResponse controls whether values read back from the cache are
	// JSON-decoded. When false the adapter returns raw strings.
	DecodeResponse bool
}

// LoadStagingConfig loads staging cache configuration from the environment.
func LoadStagingConfig() *StagingConfig {
	return &StagingConfig{
		Host:           config.GetEnvStr("REDIS_HOST", ""),
		Port:           config.GetEnvInt("REDIS_PORT", defaultStagingPort),
		Username:       config.GetEnvStr("REDIS_USERNAME", ""),
		password:       config.GetEnvStr("REDIS_PASSWORD", ""),
		DecodeResponse: config.GetEnvBool("REDIS_DECODE_RESPONSE", true),
	}
}

// Validate checks if the staging cache configuration is complete.
func (c *StagingConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrStagingHostEmpty
	}

	return nil
}

// Addr returns the host:port address for the Redis client.
func (c *StagingConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ColdConfig holds ClickHouse connection configuration for the cold store.
type ColdConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	password string

	// Secure enables TLS; the default port switches to the TLS-native port
	// unless CLICKHOUSE_PORT overrides it.
	Secure bool
}

// LoadColdConfig loads cold store configuration from the environment.
func LoadColdConfig() *ColdConfig {
	secure := config.GetEnvBool("CLICKHOUSE_SECURE", false)

	defaultPort := defaultColdPort
	if secure {
		defaultPort = defaultColdSecurePort
	}

	return &ColdConfig{
		Host:     config.GetEnvStr("CLICKHOUSE_HOST", ""),
		Port:     config.GetEnvInt("CLICKHOUSE_PORT", defaultPort),
		Database: config.GetEnvStr("CLICKHOUSE_DATABASE", "default"),
		Username: config.GetEnvStr("CLICKHOUSE_USERNAME", ""),
		password: config.GetEnvStr("CLICKHOUSE_PASSWORD", ""),
		Secure:   secure,
	}
}

// Validate checks if the cold store configuration is complete.
func (c *ColdConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrColdHostEmpty
	}

	return nil
}

// Addr returns the host:port address for the ClickHouse client.
func (c *ColdConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
