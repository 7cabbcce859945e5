// Package config loads the daemon configuration and configuration manifests.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/ipsecd/pkg/errnotify"
	"github.com/cuemby/ipsecd/pkg/ike"
	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/publisher"
	"github.com/cuemby/ipsecd/pkg/storage"
)

// Config is the daemon configuration
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	DataDir string `yaml:"data_dir"`
	APIAddr string `yaml:"api_addr"`

	// APIReadOnly rejects POST /apply on the API listener
	APIReadOnly bool `yaml:"api_read_only"`

	ViciSocket  string `yaml:"vici_socket"`
	ErrorSocket string `yaml:"error_socket"`

	PublishInterval time.Duration `yaml:"publish_interval"`
	PublishTick     time.Duration `yaml:"publish_tick"`

	// MaxErrors bounds the stored error history
	MaxErrors int `yaml:"max_errors"`

	// ReconnectMaxInterval caps the error listener reconnect backoff
	ReconnectMaxInterval time.Duration `yaml:"reconnect_max_interval"`

	// SealManifest encrypts the persisted manifest with the key in
	// ManifestKeyFile, created on first use. Defaults to data_dir/manifest.key.
	SealManifest    bool   `yaml:"seal_manifest"`
	ManifestKeyFile string `yaml:"manifest_key_file,omitempty"`

	// Manifest is applied once at startup when set
	Manifest string `yaml:"manifest,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		LogLevel:             "info",
		DataDir:              "/var/lib/ipsecd",
		APIAddr:              "127.0.0.1:9180",
		ViciSocket:           ike.DefaultViciSocket,
		ErrorSocket:          errnotify.DefaultSocket,
		PublishInterval:      publisher.DefaultInterval,
		PublishTick:          publisher.DefaultTick,
		MaxErrors:            storage.DefaultMaxErrors,
		ReconnectMaxInterval: time.Minute,
		SealManifest:         true,
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	var errs []error

	if !validLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.ViciSocket == "" {
		errs = append(errs, errors.New("vici_socket is required"))
	}
	if c.ErrorSocket == "" {
		errs = append(errs, errors.New("error_socket is required"))
	}
	if c.PublishTick <= 0 {
		errs = append(errs, errors.New("publish_tick must be positive"))
	}
	if c.PublishInterval < 0 {
		errs = append(errs, errors.New("publish_interval must not be negative"))
	}
	if c.MaxErrors < 0 {
		errs = append(errs, errors.New("max_errors must not be negative"))
	}
	if c.ReconnectMaxInterval <= 0 {
		errs = append(errs, errors.New("reconnect_max_interval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// KeyFile returns the manifest key path
func (c *Config) KeyFile() string {
	if c.ManifestKeyFile != "" {
		return c.ManifestKeyFile
	}
	return filepath.Join(c.DataDir, "manifest.key")
}

// LogConfig returns the logger settings
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.ParseLevel(c.LogLevel),
		JSONOutput: c.LogJSON,
	}
}

func validLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
