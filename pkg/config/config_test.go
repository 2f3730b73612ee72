package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, `
global:
  log_level: info
database:
  driver: postgres
  postgres:
    host: db.internal
    port: 5433
    database: benchmarks
upload:
  s3:
    enabled: false
    bucket: original-bucket
api:
  listen: ":9000"
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
				assert.Equal(t, 5433, cfg.Database.Postgres.Port)
				assert.Equal(t, "original-bucket", cfg.Upload.S3.Bucket)
				assert.Equal(t, ":9000", cfg.API.Listen)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"BENCHSUBMIT_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "nested override - postgres host",
			envVars: map[string]string{
				"BENCHSUBMIT_DATABASE_POSTGRES_HOST": "other.internal",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "other.internal", cfg.Database.Postgres.Host)
			},
		},
		{
			name: "boolean override - s3 enabled",
			envVars: map[string]string{
				"BENCHSUBMIT_UPLOAD_S3_ENABLED": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Upload.S3.Enabled)
			},
		},
		{
			name: "key absent from file - sqlite path",
			envVars: map[string]string{
				"BENCHSUBMIT_DATABASE_SQLITE_PATH": "/tmp/bench.db",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/bench.db", cfg.Database.SQLite.Path)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	configPath := writeConfig(t, "global: {}\n")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultDriver, cfg.Database.Driver)
	assert.Equal(t, DefaultPostgresPort, cfg.Database.Postgres.Port)
	assert.Equal(t, DefaultSSLMode, cfg.Database.Postgres.SSLMode)
	assert.Equal(t, DefaultS3Prefix, cfg.Upload.S3.Prefix)
	assert.Equal(t, DefaultUploadConcurrency, cfg.Upload.S3.Concurrency)
	assert.Equal(t, DefaultAPIListen, cfg.API.Listen)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("BENCHSUBMIT_DATABASE_DRIVER", "sqlite")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "global: [unclosed\n")

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		db      DatabaseConfig
		wantErr string
	}{
		{
			name: "sqlite with path",
			db:   DatabaseConfig{Driver: "sqlite", SQLite: SQLiteDatabaseConfig{Path: "x.db"}},
		},
		{
			name:    "sqlite without path",
			db:      DatabaseConfig{Driver: "sqlite"},
			wantErr: "database.sqlite.path",
		},
		{
			name: "postgres with host and database",
			db: DatabaseConfig{Driver: "postgres", Postgres: PostgresConfig{
				Host: "localhost", Database: "bench",
			}},
		},
		{
			name:    "postgres without host",
			db:      DatabaseConfig{Driver: "postgres", Postgres: PostgresConfig{Database: "bench"}},
			wantErr: "database.postgres.host",
		},
		{
			name:    "postgres without database",
			db:      DatabaseConfig{Driver: "postgres", Postgres: PostgresConfig{Host: "localhost"}},
			wantErr: "database.postgres.database",
		},
		{
			name:    "unknown driver",
			db:      DatabaseConfig{Driver: "oracle"},
			wantErr: "unsupported database driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Database: tt.db}

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateUpload(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.ValidateUpload())

	cfg.Upload.S3.Enabled = true
	require.Error(t, cfg.ValidateUpload())

	cfg.Upload.S3.Bucket = "results"
	assert.NoError(t, cfg.ValidateUpload())
}

func TestConfig_ValidateAPI(t *testing.T) {
	cfg := &Config{API: APIConfig{RateLimit: RateLimitConfig{Enabled: true}}}
	require.Error(t, cfg.ValidateAPI())

	cfg.API.RateLimit.RequestsPerMinute = 60
	assert.NoError(t, cfg.ValidateAPI())
}

func TestPostgresConfig_DSN(t *testing.T) {
	pg := PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		Database: "bench", SSLMode: "disable",
	}

	assert.Equal(t,
		"host='db' port=5432 user='u' password='p' dbname='bench' sslmode='disable'",
		pg.DSN(),
	)
}

func TestPostgresConfig_DSNQuoting(t *testing.T) {
	tests := []struct {
		name     string
		password string
		quoted   string
	}{
		{name: "space", password: "correct horse", quoted: `'correct horse'`},
		{name: "single quote", password: "it's", quoted: `'it\'s'`},
		{name: "backslash", password: `a\b`, quoted: `'a\\b'`},
		{name: "equals sign", password: "k=v", quoted: `'k=v'`},
		{name: "empty", password: "", quoted: `''`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pg := PostgresConfig{
				Host: "db.internal", Port: 6432, User: "bench user",
				Password: tt.password, Database: "results", SSLMode: "disable",
			}

			dsn := pg.DSN()
			assert.Contains(t, dsn, "password="+tt.quoted)

			parsed, err := pgconn.ParseConfig(dsn)
			require.NoError(t, err)
			assert.Equal(t, "db.internal", parsed.Host)
			assert.Equal(t, uint16(6432), parsed.Port)
			assert.Equal(t, "bench user", parsed.User)
			assert.Equal(t, "results", parsed.Database)

			if tt.password != "" {
				assert.Equal(t, tt.password, parsed.Password)
			}
		})
	}
}
