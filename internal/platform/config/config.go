package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/example/amq-trainer/internal/platform/logging"
)

type AppConfig struct {
	LogLevel  string
	LogFormat string
	Verbose   bool
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		LogLevel:  strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		LogFormat: strings.TrimSpace(os.Getenv("LOG_FORMAT")),
		Verbose:   logging.Truthy(os.Getenv("VERBOSE")),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	return cfg, nil
}
