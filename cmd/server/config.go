package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type config struct {
	Port           string `yaml:"port"`
	BackendURL     string `yaml:"backendURL"`
	RequestTimeout string `yaml:"requestTimeout"`
	DataDir        string `yaml:"dataDir"`
	LogLevel       string `yaml:"logLevel"`
}

func defaultConfig() config {
	return config{
		Port:       "8080",
		BackendURL: "http://localhost:8000",
		DataDir:    "./data",
		LogLevel:   "info",
	}
}

// loadConfig reads the YAML config file at path if it exists, then applies
// environment overrides on top. A missing file just means defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// timeout parses the configured backend request timeout. Zero means the
// client's default, which is sized for server-side PDF processing.
func (c config) timeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid requestTimeout: %w", err)
	}
	return d, nil
}

func (c config) slogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", c.LogLevel)
	}
}
