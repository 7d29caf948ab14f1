// Package config loads the engine's JSON configuration file, grounded on
// the teacher's internal/config/config.go: same ${VAR} environment
// expansion via os.Expand, same "read file, expand, unmarshal" shape. It
// differs in one way the teacher didn't need: spec.md §6 takes a single
// positional config-file path as a CLI argument rather than an
// environment-keyed filename, since this binary has no notion of
// deploy environments.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the engine's full startup configuration.
type Config struct {
	Lichess struct {
		Account     string `json:"account"`
		AccessToken string `json:"accessToken"`
		BaseURL     string `json:"baseUrl"`
	} `json:"lichess"`

	Chat struct {
		Channel  string `json:"channel"`
		FeedPath string `json:"feedPath"`
	} `json:"chat"`

	Livestream struct {
		Video struct {
			FIFO string `json:"fifo"`
		} `json:"video"`
	} `json:"livestream"`

	Admin struct {
		ListenAddr string `json:"listenAddr"`
	} `json:"admin"`

	Telemetry struct {
		MongoURI string `json:"mongoUri"`
		Database string `json:"database"`
	} `json:"telemetry"`
}

// Load reads and parses the config file at path, expanding ${VAR}
// references against the process environment before unmarshaling.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.Lichess.BaseURL == "" {
		cfg.Lichess.BaseURL = "https://lichess.org"
	}
	if cfg.Admin.ListenAddr == "" {
		cfg.Admin.ListenAddr = ":8080"
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} (and $VAR_NAME) with environment
// variable values, exactly as the teacher's config loader does.
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}
