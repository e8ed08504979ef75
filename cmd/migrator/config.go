package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the migrator's settings: where the tenant registry lives,
// where the SQL migration files are, and which table tracks applied versions.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string for the tenant registry
	DatabaseURL string

	// MigrationsPath is the directory holding the *.sql migration files
	MigrationsPath string

	// MigrationTable is the version-tracking table name
	MigrationTable string
}

// LoadConfig reads the migrator configuration from the environment.
// Only DATABASE_URL is required; the path and table names have defaults
// that match the repository layout.
func LoadConfig() (*Config, error) {
	config := &Config{
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "./migrations"),
		MigrationTable: getEnvOrDefault("MIGRATION_TABLE", "logtier_schema_migrations"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks the configuration and resolves the migrations path to an
// absolute one so later logging shows where files were actually read from.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	if c.MigrationsPath == "" {
		return fmt.Errorf("MIGRATIONS_PATH cannot be empty")
	}

	absPath, err := filepath.Abs(c.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}
	c.MigrationsPath = absPath

	if _, err := os.Stat(c.MigrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", c.MigrationsPath)
	}

	return nil
}

// String renders the configuration with the database password masked, so the
// startup log never leaks credentials.
func (c *Config) String() string {
	maskedURL := maskDatabaseURL(c.DatabaseURL)

	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationsPath: %s, MigrationTable: %s}",
		maskedURL, c.MigrationsPath, c.MigrationTable)
}

// getEnvOrDefault returns the environment variable value or a default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// maskDatabaseURL replaces the password in a connection URL with asterisks.
// The last "@" in the authority section separates user info from the host,
// which keeps passwords containing "@" fully masked.
func maskDatabaseURL(url string) string {
	authStart := strings.Index(url, "//")
	if authStart == -1 {
		// No authority section, nothing to mask
		return url
	}
	authStart += 2

	authority := url[authStart:]
	if end := strings.IndexAny(authority, "/?#"); end != -1 {
		authority = authority[:end]
	}

	at := strings.LastIndex(authority, "@")
	if at == -1 {
		// No user info present
		return url
	}

	colon := strings.Index(authority[:at], ":")
	if colon == -1 || colon+1 == at {
		// No password, or an empty one
		return url
	}

	return url[:authStart+colon+1] + "***" + url[authStart+at:]
}
