// Package config loads the hub's runtime settings from an optional
// YAML file and the environment.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults match the values clients under test have historically been
// pointed at.
const (
	DefaultAddr         = ":8123"
	DefaultAccessToken  = "test_token_12345"
	DefaultHAVersion    = "2024.1.0"
	DefaultFixturesFile = "/testdata/test_fixtures.json"
)

// Config holds the runtime settings for the mock hub.
type Config struct {
	Addr         string `yaml:"addr"`
	AccessToken  string `yaml:"access_token"`
	HAVersion    string `yaml:"ha_version"`
	FixturesFile string `yaml:"fixtures_file"`
}

// Load builds the configuration. A non-empty path names a YAML file;
// environment variables override file values, and defaults fill the
// rest.
func Load(path string, logger *zap.Logger) (*Config, error) {
	cfg := &Config{
		Addr:         DefaultAddr,
		AccessToken:  DefaultAccessToken,
		HAVersion:    DefaultHAVersion,
		FixturesFile: DefaultFixturesFile,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		logger.Info("Config file loaded", zap.String("path", path))
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides config fields from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MOCKHA_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("HA_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
	if v := os.Getenv("HA_VERSION"); v != "" {
		cfg.HAVersion = v
	}
	if v := os.Getenv("FIXTURES_FILE"); v != "" {
		cfg.FixturesFile = v
	}
}
