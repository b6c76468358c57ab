// Package config loads gateway configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kettleofketchup/draftforge/internal/models"
)

// Config is the gateway's top-level configuration.
type Config struct {
	Port     string          `yaml:"port"`
	LogLevel string          `yaml:"log_level"`
	NATS     NATSConfig      `yaml:"nats"`
	Draft    models.Settings `yaml:"draft"`
}

// NATSConfig controls the optional message bus sink.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:     "8081",
		LogLevel: "info",
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
		Draft: DefaultDraftSettings(),
	}
}

// DefaultDraftSettings is the standard captains-mode format: each team gets
// five bans and five picks, a 30 second grace window per round, and a 110
// second reserve bank for the whole draft.
func DefaultDraftSettings() models.Settings {
	return models.Settings{
		GraceTimeMs:       30_000,
		ReserveTimeMs:     110_000,
		ResumeCountdownMs: 3_000,
		RollDurationMs:    5_000,
		Pattern:           DefaultPattern(),
	}
}

// DefaultPattern returns the standard ban/pick sequence, expressed relative
// to the team that won first pick.
func DefaultPattern() []models.PatternStep {
	ban := func(first bool) models.PatternStep {
		return models.PatternStep{First: first, Action: models.ActionTypeBan}
	}
	pick := func(first bool) models.PatternStep {
		return models.PatternStep{First: first, Action: models.ActionTypePick}
	}
	return []models.PatternStep{
		// First ban phase.
		ban(true), ban(false), ban(true), ban(false),
		// First pick phase.
		pick(true), pick(false), pick(false), pick(true),
		// Second ban phase.
		ban(false), ban(true), ban(false), ban(true),
		// Second pick phase.
		pick(false), pick(true), pick(false), pick(true),
		// Final ban phase.
		ban(true), ban(false),
		// Final pick phase.
		pick(false), pick(true),
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("NATS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.NATS.Enabled = enabled
		}
	}

	if err := cfg.Draft.Validate(); err != nil {
		return cfg, fmt.Errorf("draft settings: %w", err)
	}
	return cfg, nil
}
