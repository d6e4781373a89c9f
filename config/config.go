package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// EnvGithubToken is the environment variable name for the GitHub API token
	EnvGithubToken = "GH_ACTIVITY_TOKEN"

	// DefaultFreshnessWindowSeconds is how long a cached lookup is served
	// without a new API call.
	DefaultFreshnessWindowSeconds = 300

	// DefaultCacheCapacity bounds how many users are cached at once.
	DefaultCacheCapacity = 64

	// DefaultMaxConcurrentFetches bounds simultaneous outbound fetches.
	DefaultMaxConcurrentFetches = 4

	// DefaultMaxEvents is how many recent events are fetched per user.
	DefaultMaxEvents = 50
)

// Config represents the application configuration
type Config struct {
	// GitHub API token for authentication (optional, can be set via GH_ACTIVITY_TOKEN env var)
	GitHubToken string `json:"github_token"`

	// Maximum age of a cache entry before a lookup triggers a new fetch
	FreshnessWindowSeconds int `json:"freshness_window_seconds"`

	// Maximum number of users kept in the activity cache
	CacheCapacity int `json:"cache_capacity"`

	// Maximum number of fetches in flight at once across users
	MaxConcurrentFetches int `json:"max_concurrent_fetches"`

	// Maximum number of events fetched per user
	MaxEvents int `json:"max_events"`
}

// FreshnessWindow returns the freshness window as a duration.
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowSeconds) * time.Second
}

// Default returns a configuration with all defaults applied and no file
// backing it. The token environment variable is still honored.
func Default() *Config {
	config := &Config{GitHubToken: os.Getenv(EnvGithubToken)}
	config.applyDefaults()
	return config
}

// LoadConfig loads the configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Check for GitHub token in environment variable
	if envToken := os.Getenv(EnvGithubToken); envToken != "" {
		config.GitHubToken = envToken
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills in unset or out-of-range fields.
func (c *Config) applyDefaults() {
	if c.FreshnessWindowSeconds <= 0 {
		c.FreshnessWindowSeconds = DefaultFreshnessWindowSeconds
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
}

// SaveConfig saves the configuration to a JSON file
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	// Check if the file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := &Config{
		GitHubToken:            "",
		FreshnessWindowSeconds: DefaultFreshnessWindowSeconds,
		CacheCapacity:          DefaultCacheCapacity,
		MaxConcurrentFetches:   DefaultMaxConcurrentFetches,
		MaxEvents:              DefaultMaxEvents,
	}

	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return SaveConfig(config, path)
}
