package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Latency LatencyConfig
	Linking LinkingConfig
	Report  ReportConfig
	Extract ExtractConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	MaxConns int
}

type LogConfig struct {
	Level string
}

// LatencyConfig holds the simulated processing delays.
type LatencyConfig struct {
	ExtractBase    time.Duration
	ExtractPerFile time.Duration
	ExtractMax     time.Duration
	Link           time.Duration
	Summary        time.Duration
}

// LinkingConfig controls the random scorer. Seed 0 seeds from the clock at
// startup.
type LinkingConfig struct {
	Seed        int
	Probability float64
}

type ReportConfig struct {
	StudentID string
}

type ExtractConfig struct {
	Concurrency  int
	WatchPattern string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     4100,
			MaxConns: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
		Latency: LatencyConfig{
			ExtractBase:    1500 * time.Millisecond,
			ExtractPerFile: 500 * time.Millisecond,
			ExtractMax:     4 * time.Second,
			Link:           2 * time.Second,
			Summary:        1500 * time.Millisecond,
		},
		Linking: LinkingConfig{
			Seed:        0,
			Probability: 0.7,
		},
		Report: ReportConfig{
			StudentID: "STUDENT-001",
		},
		Extract: ExtractConfig{
			Concurrency:  4,
			WatchPattern: "**/*.{txt,md,pdf}",
		},
	}
}

// Load reads configuration from the JSON file backend and environment
// variables. A .env file in the working directory is loaded into the
// environment first; variables already set are not replaced.
//
// The backend file lives at $XDG_CONFIG_HOME/evlink/config.json.
// Environment variables (EVLINK_*) override backend values.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Linking.Probability <= 0 || c.Linking.Probability > 1 {
		return fmt.Errorf("linking.probability %v must be in (0, 1]", c.Linking.Probability)
	}
	for key, d := range map[string]time.Duration{
		"latency.extract_base":     c.Latency.ExtractBase,
		"latency.extract_per_file": c.Latency.ExtractPerFile,
		"latency.extract_max":      c.Latency.ExtractMax,
		"latency.link":             c.Latency.Link,
		"latency.summary":          c.Latency.Summary,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	return nil
}
