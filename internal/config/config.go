// Package config provides configuration management for lumapix-cli.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Env variable overrides. These take precedence over the config file and are
// themselves overridden by explicit CLI flags.
const (
	EnvAPIKey = "LUMAPIX_API_KEY"
	EnvAPIURL = "LUMAPIX_API_URL"
)

// Validation errors
var (
	ErrMissingAPIURL       = errors.New("api_url is required")
	ErrMissingAPIKey       = errors.New("api_key is required")
	ErrInvalidPollInterval = errors.New("poll_interval_seconds must be between 1 and 60")
	ErrInvalidBatchTimeout = errors.New("timeout_minutes must be between 1 and 120")
)

// Config is the full client configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\lumapix\config
//   - Unix: ~/.config/lumapix/config
//
// INI format:
//
//	[lumapix]
//	api_url = https://app.lumapix.io
//	api_key = <token>
//	proxy_mode = no-proxy
//
//	[analysis]
//	provider = openai
//	model =
//	poll_interval_seconds = 1
//	initial_delay_seconds = 2
//	timeout_minutes = 10
//
//	[cache]
//	path = <default: cache.db next to the config file>
//	photos_ttl_seconds = 60
//	folders_ttl_seconds = 300
//	status_ttl_seconds = 15
type Config struct {
	// Lumapix connection settings
	APIBaseURL string
	APIKey     string

	// ProxyMode is "no-proxy", "system" or "manual".
	ProxyMode string
	ProxyURL  string

	// Analysis batch settings
	Analysis AnalysisConfig

	// Local listing cache settings
	Cache CacheConfig
}

// AnalysisConfig contains settings for batch analysis tracking.
type AnalysisConfig struct {
	// Provider and Model select the AI backend for new batches.
	Provider string
	Model    string

	// PollInterval is the cadence of the progress poller.
	// Default: 1s.
	PollInterval time.Duration

	// InitialDelay is how long the poller waits before the first cycle so
	// the backend has registered the batch. Default: 2s.
	InitialDelay time.Duration

	// Timeout is the wall-clock ceiling for one batch. Default: 10m.
	Timeout time.Duration
}

// CacheConfig contains settings for the listing cache.
type CacheConfig struct {
	// Path of the bbolt cache file. Empty disables persistence.
	Path string

	PhotosTTL  time.Duration
	FoldersTTL time.Duration
	StatusTTL  time.Duration
}

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DefaultCachePath returns the default path for the cache database.
func DefaultCachePath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

func configDir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", "lumapix"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "lumapix"), nil
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		APIBaseURL: "https://app.lumapix.io",
		ProxyMode:  "no-proxy",
		Analysis: AnalysisConfig{
			Provider:     "openai",
			PollInterval: 1 * time.Second,
			InitialDelay: 2 * time.Second,
			Timeout:      10 * time.Minute,
		},
		Cache: CacheConfig{
			PhotosTTL:  60 * time.Second,
			FoldersTTL: 300 * time.Second,
			StatusTTL:  15 * time.Second,
		},
	}
}

// Load loads configuration from an INI file plus environment overrides.
// If the file doesn't exist, returns a config with default values and no
// error. If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	// A .env in the working directory may carry LUMAPIX_* variables.
	// Missing files are fine.
	_ = godotenv.Load()

	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			path = "" // fall through to defaults + env
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.readFile(path); err != nil {
				return nil, err
			}
		}
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}

	if cfg.Cache.Path == "" {
		if p, err := DefaultCachePath(); err == nil {
			cfg.Cache.Path = p
		}
	}

	return cfg, nil
}

func (c *Config) readFile(path string) error {
	iniFile, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	main := iniFile.Section("lumapix")
	c.APIBaseURL = main.Key("api_url").MustString(c.APIBaseURL)
	c.APIKey = main.Key("api_key").String()
	c.ProxyMode = main.Key("proxy_mode").MustString(c.ProxyMode)
	c.ProxyURL = main.Key("proxy_url").String()

	analysis := iniFile.Section("analysis")
	c.Analysis.Provider = analysis.Key("provider").MustString(c.Analysis.Provider)
	c.Analysis.Model = analysis.Key("model").String()
	c.Analysis.PollInterval = time.Duration(analysis.Key("poll_interval_seconds").MustInt(1)) * time.Second
	c.Analysis.InitialDelay = time.Duration(analysis.Key("initial_delay_seconds").MustInt(2)) * time.Second
	c.Analysis.Timeout = time.Duration(analysis.Key("timeout_minutes").MustInt(10)) * time.Minute

	cache := iniFile.Section("cache")
	c.Cache.Path = cache.Key("path").String()
	c.Cache.PhotosTTL = time.Duration(cache.Key("photos_ttl_seconds").MustInt(60)) * time.Second
	c.Cache.FoldersTTL = time.Duration(cache.Key("folders_ttl_seconds").MustInt(300)) * time.Second
	c.Cache.StatusTTL = time.Duration(cache.Key("status_ttl_seconds").MustInt(15)) * time.Second

	return nil
}

// Validate checks that the configuration is usable for API access.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return ErrMissingAPIURL
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Analysis.PollInterval < time.Second || c.Analysis.PollInterval > 60*time.Second {
		return ErrInvalidPollInterval
	}
	if c.Analysis.Timeout < time.Minute || c.Analysis.Timeout > 120*time.Minute {
		return ErrInvalidBatchTimeout
	}
	return nil
}

// Save saves configuration to an INI file. Creates parent directories if they
// don't exist. The API key is stored in the file, so permissions are
// restricted to the owner.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	main, err := iniFile.NewSection("lumapix")
	if err != nil {
		return fmt.Errorf("failed to create lumapix section: %w", err)
	}
	main.Key("api_url").SetValue(cfg.APIBaseURL)
	main.Key("api_key").SetValue(cfg.APIKey)
	main.Key("proxy_mode").SetValue(cfg.ProxyMode)
	if cfg.ProxyURL != "" {
		main.Key("proxy_url").SetValue(cfg.ProxyURL)
	}

	analysis, err := iniFile.NewSection("analysis")
	if err != nil {
		return fmt.Errorf("failed to create analysis section: %w", err)
	}
	analysis.Key("provider").SetValue(cfg.Analysis.Provider)
	analysis.Key("model").SetValue(cfg.Analysis.Model)
	analysis.Key("poll_interval_seconds").SetValue(fmt.Sprintf("%d", int(cfg.Analysis.PollInterval/time.Second)))
	analysis.Key("initial_delay_seconds").SetValue(fmt.Sprintf("%d", int(cfg.Analysis.InitialDelay/time.Second)))
	analysis.Key("timeout_minutes").SetValue(fmt.Sprintf("%d", int(cfg.Analysis.Timeout/time.Minute)))

	cache, err := iniFile.NewSection("cache")
	if err != nil {
		return fmt.Errorf("failed to create cache section: %w", err)
	}
	cache.Key("path").SetValue(cfg.Cache.Path)
	cache.Key("photos_ttl_seconds").SetValue(fmt.Sprintf("%d", int(cfg.Cache.PhotosTTL/time.Second)))
	cache.Key("folders_ttl_seconds").SetValue(fmt.Sprintf("%d", int(cfg.Cache.FoldersTTL/time.Second)))
	cache.Key("status_ttl_seconds").SetValue(fmt.Sprintf("%d", int(cfg.Cache.StatusTTL/time.Second)))

	// Temporary file + rename for atomicity.
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}
