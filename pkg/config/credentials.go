package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Credentials holds database connection credentials in the libpq
// environment variable convention.
type Credentials struct {
	Host     string `env:"PGHOST"`
	Port     int    `env:"PGPORT"`
	Database string `env:"PGDATABASE"`
	User     string `env:"PGUSER"`
	Password string `env:"PGPASSWORD"`
	SSLMode  string `env:"PGSSLMODE"`
}

// LoadCredentials reads credentials from an optional dotenv file overlaid
// with the process environment. Process variables win over the file.
func LoadCredentials(envFile string) (*Credentials, error) {
	vars := make(map[string]string, 8)

	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file %s: %w", envFile, err)
		}

		for k, v := range fileVars {
			vars[k] = v
		}
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	var creds Credentials
	if err := env.ParseWithOptions(&creds, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	return &creds, nil
}

// Apply fills postgres settings that the config left empty. Explicit
// config values and BENCHSUBMIT_* overrides take precedence.
func (c *Credentials) Apply(pg *PostgresConfig) {
	if pg.Host == "" {
		pg.Host = c.Host
	}

	if (pg.Port == 0 || pg.Port == DefaultPostgresPort) && c.Port != 0 {
		pg.Port = c.Port
	}

	if pg.Database == "" {
		pg.Database = c.Database
	}

	if pg.User == "" {
		pg.User = c.User
	}

	if pg.Password == "" {
		pg.Password = c.Password
	}

	if (pg.SSLMode == "" || pg.SSLMode == DefaultSSLMode) && c.SSLMode != "" {
		pg.SSLMode = c.SSLMode
	}
}
