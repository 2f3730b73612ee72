package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearPGEnv blanks the PG* variables so the host environment does not
// leak into the assertions.
func clearPGEnv(t *testing.T) {
	t.Helper()

	for _, k := range []string{
		"PGHOST", "PGPORT", "PGDATABASE", "PGUSER", "PGPASSWORD", "PGSSLMODE",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadCredentials_FromFile(t *testing.T) {
	clearPGEnv(t)

	envFile := filepath.Join(t.TempDir(), "creds.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"PGHOST=bench-db\nPGPORT=6543\nPGDATABASE=benchmarks\n"+
			"PGUSER=submitter\nPGPASSWORD=s3cret\n",
	), 0o600))

	creds, err := LoadCredentials(envFile)
	require.NoError(t, err)

	assert.Equal(t, "bench-db", creds.Host)
	assert.Equal(t, 6543, creds.Port)
	assert.Equal(t, "benchmarks", creds.Database)
	assert.Equal(t, "submitter", creds.User)
	assert.Equal(t, "s3cret", creds.Password)
}

func TestLoadCredentials_ProcessEnvWins(t *testing.T) {
	clearPGEnv(t)

	envFile := filepath.Join(t.TempDir(), "creds.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PGHOST=from-file\n"), 0o600))

	t.Setenv("PGHOST", "from-env")

	creds, err := LoadCredentials(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-env", creds.Host)
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	_, err := LoadCredentials("/nonexistent/creds.env")
	require.Error(t, err)
}

func TestLoadCredentials_BadPort(t *testing.T) {
	clearPGEnv(t)
	t.Setenv("PGPORT", "not-a-port")

	_, err := LoadCredentials("")
	require.Error(t, err)
}

func TestCredentials_Apply(t *testing.T) {
	creds := &Credentials{
		Host: "cred-host", Port: 6543, Database: "cred-db",
		User: "cred-user", Password: "cred-pass", SSLMode: "require",
	}

	t.Run("fills empty fields", func(t *testing.T) {
		pg := PostgresConfig{Port: DefaultPostgresPort, SSLMode: DefaultSSLMode}
		creds.Apply(&pg)

		assert.Equal(t, "cred-host", pg.Host)
		assert.Equal(t, 6543, pg.Port)
		assert.Equal(t, "cred-db", pg.Database)
		assert.Equal(t, "cred-user", pg.User)
		assert.Equal(t, "cred-pass", pg.Password)
		assert.Equal(t, "require", pg.SSLMode)
	})

	t.Run("keeps explicit config", func(t *testing.T) {
		pg := PostgresConfig{
			Host: "cfg-host", Port: 7000, Database: "cfg-db",
			User: "cfg-user", Password: "cfg-pass", SSLMode: "verify-full",
		}
		creds.Apply(&pg)

		assert.Equal(t, "cfg-host", pg.Host)
		assert.Equal(t, 7000, pg.Port)
		assert.Equal(t, "cfg-db", pg.Database)
		assert.Equal(t, "cfg-user", pg.User)
		assert.Equal(t, "cfg-pass", pg.Password)
		assert.Equal(t, "verify-full", pg.SSLMode)
	})
}
