package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const (
	EnvDatabaseURL = "BACKLOG_DATABASE_URL"
	// EnvLegacyDatabaseURL is the variable name used by older deployments
	EnvLegacyDatabaseURL = "SQLDB_CONNECTION"
	EnvLogLevel          = "BACKLOG_LOG_LEVEL"
	EnvMetricsAddr       = "BACKLOG_METRICS_ADDR"
)

// LoadDotEnv loads variables from the given .env files. Missing files are
// ignored, variables already present in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load env file '%s' with %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides file settings with environment variables
func ApplyEnv(conf Config) Config {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		conf.DatabaseURL = v
	} else if v := os.Getenv(EnvLegacyDatabaseURL); v != "" {
		conf.DatabaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		conf.LogLevel = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		conf.MetricsAddr = v
	}
	return conf
}
