package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	EnvToken, EnvOwner, EnvRepo, EnvBranch, EnvBasePath, EnvAPIURL, EnvBackend,
	EnvSQLitePath, EnvPollInterval, EnvRequestTimeout, EnvMaxRetries, EnvLogLevel,
}

// clearEnv unsets every variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range allVars {
		if old, ok := os.LookupEnv(name); ok {
			t.Cleanup(func() { os.Setenv(name, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(name) })
		}
		os.Unsetenv(name)
	}
}

func TestFromEnvGitHub(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvToken, "secret")
	t.Setenv(EnvOwner, "acme")
	t.Setenv(EnvRepo, "site-data")
	t.Setenv(EnvPollInterval, "750ms")
	t.Setenv(EnvRequestTimeout, "30")
	t.Setenv(EnvMaxRetries, "3")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendGitHub, c.Backend)
	assert.Equal(t, "secret", c.Token)
	assert.Equal(t, "acme", c.Owner)
	assert.Equal(t, "site-data", c.Repo)
	assert.Equal(t, "main", c.Branch)
	assert.Equal(t, "data", c.BasePath)
	assert.Equal(t, 750*time.Millisecond, c.PollInterval)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, 3, c.MaxRetries)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{
			name: "github without credentials",
			env:  map[string]string{},
			want: []string{EnvToken, EnvOwner, EnvRepo},
		},
		{
			name: "unknown backend",
			env:  map[string]string{EnvBackend: "s3"},
			want: []string{`"s3"`},
		},
		{
			name: "bad numbers",
			env: map[string]string{
				EnvBackend:      "sqlite",
				EnvPollInterval: "soon",
				EnvMaxRetries:   "many",
			},
			want: []string{EnvPollInterval, EnvMaxRetries},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSQLitePath, "/from/environment.sqlite")

	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte(
		"REPODB_BACKEND=sqlite\nREPODB_SQLITE_PATH=/from/file.sqlite\nREPODB_LOG_LEVEL=debug\n",
	), 0o600))

	c, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, c.Backend)
	assert.Equal(t, "/from/environment.sqlite", c.SQLitePath)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoadIgnoresMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBackend, "sqlite")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, c.Backend)
	assert.Equal(t, "repodb.sqlite", c.SQLitePath)
}
