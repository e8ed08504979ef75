package storage

import (
	"errors"
	"strings"
	"testing"
)

func TestLoadRelationalConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("DB_HOST", "registry.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_NAME", "logtier")
	t.Setenv("DB_USER", "svc")
	t.Setenv("DB_PASSWORD", "secret") // pragma: allowlist secret

	cfg := LoadRelationalConfig()

	if cfg.Host != "registry.internal" {
		t.Errorf("Host = %q, want registry.internal", cfg.Host)
	}

	if cfg.Port != 5433 {
		t.Errorf("Port = %d, want 5433", cfg.Port)
	}

	if cfg.MaxOpenConns != defaultMaxOpenConns {
		t.Errorf("MaxOpenConns = %d, want default %d", cfg.MaxOpenConns, defaultMaxOpenConns)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestRelationalConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		mutate  func(*RelationalConfig)
		wantErr error
	}{
		{
			name:    "missing host",
			mutate:  func(c *RelationalConfig) { c.Host = " " },
			wantErr: ErrDatabaseHostEmpty,
		},
		{
			name:    "missing name",
			mutate:  func(c *RelationalConfig) { c.Name = "" },
			wantErr: ErrDatabaseNameEmpty,
		},
		{
			name:    "missing user",
			mutate:  func(c *RelationalConfig) { c.User = "" },
			wantErr: ErrDatabaseUserEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &RelationalConfig{Host: "h", Name: "n", User: "u"}
			tt.mutate(cfg)

			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRelationalConfigDSNAndRedaction(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &RelationalConfig{
		Host:     "db.internal",
		Port:     5432,
		Name:     "logtier",
		User:     "svc",
		password: "hunter2", // pragma: allowlist secret
		SSLMode:  "disable",
	}

	dsn := cfg.DSN()
	if !strings.Contains(dsn, "svc:hunter2@db.internal:5432") {
		t.Errorf("DSN() = %q, missing credentials and host", dsn)
	}

	if !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("DSN() = %q, missing sslmode", dsn)
	}

	redacted := cfg.Redacted()
	if strings.Contains(redacted, "hunter2") {
		t.Errorf("Redacted() = %q leaks the password", redacted)
	}
}

func TestLoadStagingConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_DECODE_RESPONSE", "false")

	cfg := LoadStagingConfig()

	if cfg.Addr() != "cache.internal:6379" {
		t.Errorf("Addr() = %q, want cache.internal:6379", cfg.Addr())
	}

	if cfg.DecodeResponse {
		t.Error("DecodeResponse = true, want false")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestStagingConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &StagingConfig{}
	if err := cfg.Validate(); !errors.Is(err, ErrStagingHostEmpty) {
		t.Errorf("Validate() = %v, want %v", err, ErrStagingHostEmpty)
	}
}

func TestLoadColdConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("plain connection uses native port", func(t *testing.T) {
		t.Setenv("CLICKHOUSE_HOST", "cold.internal")

		cfg := LoadColdConfig()

		if cfg.Addr() != "cold.internal:9000" {
			t.Errorf("Addr() = %q, want cold.internal:9000", cfg.Addr())
		}

		if cfg.Secure {
			t.Error("Secure = true, want false")
		}
	})

	t.Run("secure connection switches default port", func(t *testing.T) {
		t.Setenv("CLICKHOUSE_HOST", "cold.internal")
		t.Setenv("CLICKHOUSE_SECURE", "true")

		cfg := LoadColdConfig()

		if cfg.Addr() != "cold.internal:9440" {
			t.Errorf("Addr() = %q, want cold.internal:9440", cfg.Addr())
		}
	})

	t.Run("explicit port wins over secure default", func(t *testing.T) {
		t.Setenv("CLICKHOUSE_HOST", "cold.internal")
		t.Setenv("CLICKHOUSE_SECURE", "true")
		t.Setenv("CLICKHOUSE_PORT", "19440")

		cfg := LoadColdConfig()

		if cfg.Addr() != "cold.internal:19440" {
			t.Errorf("Addr() = %q, want cold.internal:19440", cfg.Addr())
		}
	})
}

func TestColdConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &ColdConfig{}
	if err := cfg.Validate(); !errors.Is(err, ErrColdHostEmpty) {
		t.Errorf("Validate() = %v, want %v", err, ErrColdHostEmpty)
	}
}
