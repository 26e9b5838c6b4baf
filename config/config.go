// Package config loads the settings of the repodb binaries from the
// environment, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects the remote.Store implementation.
type Backend string

const (
	BackendGitHub Backend = "github"
	BackendSQLite Backend = "sqlite"
)

const (
	EnvToken          = "REPODB_TOKEN"
	EnvOwner          = "REPODB_OWNER"
	EnvRepo           = "REPODB_REPO"
	EnvBranch         = "REPODB_BRANCH"
	EnvBasePath       = "REPODB_BASE_PATH"
	EnvAPIURL         = "REPODB_API_URL"
	EnvBackend        = "REPODB_BACKEND"
	EnvSQLitePath     = "REPODB_SQLITE_PATH"
	EnvPollInterval   = "REPODB_POLL_INTERVAL"
	EnvRequestTimeout = "REPODB_REQUEST_TIMEOUT"
	EnvMaxRetries     = "REPODB_MAX_RETRIES"
	EnvLogLevel       = "REPODB_LOG_LEVEL"
)

type Config struct {
	Backend        Backend
	Token          string
	Owner          string
	Repo           string
	Branch         string
	APIURL         string
	BasePath       string
	SQLitePath     string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	// LogLevel is "debug" for a development logger; anything else selects
	// the production logger at that level.
	LogLevel string
}

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		Backend:        BackendGitHub,
		Branch:         "main",
		BasePath:       "data",
		SQLitePath:     "repodb.sqlite",
		PollInterval:   5 * time.Second,
		RequestTimeout: 15 * time.Second,
		LogLevel:       "info",
	}
}

// Load reads the given .env files (or ./.env when none are named), then the
// process environment. Missing .env files are ignored; variables already set
// in the environment win over file values.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load environment file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	c := Default()
	var errs []error

	if s := os.Getenv(EnvBackend); s != "" {
		c.Backend = Backend(strings.ToLower(s))
	}
	maybeSetFromEnv(&c.Token, EnvToken)
	maybeSetFromEnv(&c.Owner, EnvOwner)
	maybeSetFromEnv(&c.Repo, EnvRepo)
	maybeSetFromEnv(&c.Branch, EnvBranch)
	maybeSetFromEnv(&c.APIURL, EnvAPIURL)
	maybeSetFromEnv(&c.BasePath, EnvBasePath)
	maybeSetFromEnv(&c.SQLitePath, EnvSQLitePath)
	maybeSetFromEnv(&c.LogLevel, EnvLogLevel)
	maybeSetFromEnvDuration(&c.PollInterval, EnvPollInterval, &errs)
	maybeSetFromEnvDuration(&c.RequestTimeout, EnvRequestTimeout, &errs)
	maybeSetFromEnvInt(&c.MaxRetries, EnvMaxRetries, &errs)

	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return c, errors.Join(errs...)
	}
	return c, nil
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendGitHub:
		var missing []string
		if c.Token == "" {
			missing = append(missing, EnvToken)
		}
		if c.Owner == "" {
			missing = append(missing, EnvOwner)
		}
		if c.Repo == "" {
			missing = append(missing, EnvRepo)
		}
		if len(missing) > 0 {
			return fmt.Errorf("github backend requires %s", strings.Join(missing, ", "))
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite backend requires %s", EnvSQLitePath)
		}
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvBackend, BackendGitHub, BackendSQLite, c.Backend)
	}
	return nil
}

func maybeSetFromEnv(prop *string, name string) bool {
	if s := os.Getenv(name); s != "" {
		*prop = s
		return true
	}
	return false
}

func maybeSetFromEnvInt(prop *int, name string, errs *[]error) bool {
	if s := os.Getenv(name); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s must be an integer", name))
		} else {
			*prop = n
		}
		return true
	}
	return false
}

// Durations accept Go syntax ("750ms", "2s") or a bare number of seconds.
func maybeSetFromEnvDuration(prop *time.Duration, name string, errs *[]error) bool {
	s := os.Getenv(name)
	if s == "" {
		return false
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		*prop = time.Duration(n) * time.Second
		return true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive duration", name))
		return true
	}
	*prop = d
	return true
}
