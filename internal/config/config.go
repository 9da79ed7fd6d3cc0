// Package config loads vodstream's configuration: a viper-backed Config
// struct composed of nested, mapstructure-tagged sub-structs, following
// the SetDefaults/Load/Validate shape used throughout the pack this
// codebase is grounded on.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultServerPort     = 8080
	defaultServerTimeout  = 30 * time.Second
	defaultShutdownGrace  = 10 * time.Second
	defaultSegmentSeconds = 4.0
	defaultTrackCacheSize = 64
	defaultFragmentCache  = 512
	defaultSafariRangeCap = 2 * 1024 * 1024
)

// Config is the top-level vodstream configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	HLS     HLSConfig     `mapstructure:"hls"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	MediaRoot       string        `mapstructure:"media_root"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// SafariRangeCapBytes bounds a single Range response to a Safari
	// user-agent (spec.md §6's "served ranges may be capped to 2 MiB").
	SafariRangeCapBytes int64 `mapstructure:"safari_range_cap_bytes"`
}

// Address returns the host:port the server should listen on.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HLSConfig holds HLS manifest/segmentation configuration.
type HLSConfig struct {
	// SegmentDuration is the target segment duration in seconds
	// (spec.md §4.5's "target a configurable duration (default 4 s)").
	SegmentDuration float64 `mapstructure:"segment_duration"`
}

// CacheConfig holds the sizes of the two in-memory caches: the
// process-wide TrackModel cache (spec.md §5) and the HTTP fragment
// cache (added; see DESIGN.md).
type CacheConfig struct {
	TrackModelEntries int `mapstructure:"track_model_entries"`
	FragmentEntries   int `mapstructure:"fragment_entries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SetDefaults configures default values for all configuration options.
// Call this before reading a config file so unset keys still resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.media_root", ".")
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownGrace)
	v.SetDefault("server.safari_range_cap_bytes", defaultSafariRangeCap)

	v.SetDefault("hls.segment_duration", defaultSegmentSeconds)

	v.SetDefault("cache.track_model_entries", defaultTrackCacheSize)
	v.SetDefault("cache.fragment_entries", defaultFragmentCache)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", "")
}

// Load reads configuration from configPath (if non-empty), "./vodstream.yaml"
// and its usual search locations otherwise, and from VODSTREAM-prefixed
// environment variables, in that order of increasing precedence, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("vodstream")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vodstream")
		v.AddConfigPath("$HOME/.vodstream")
	}

	v.SetEnvPrefix("VODSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validating: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values that would otherwise
// fail confusingly deep inside the server or hls packages.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.MediaRoot == "" {
		return fmt.Errorf("server.media_root is required")
	}
	if c.Server.SafariRangeCapBytes <= 0 {
		return fmt.Errorf("server.safari_range_cap_bytes must be positive")
	}
	if c.HLS.SegmentDuration <= 0 {
		return fmt.Errorf("hls.segment_duration must be positive")
	}
	if c.Cache.TrackModelEntries <= 0 {
		return fmt.Errorf("cache.track_model_entries must be positive")
	}
	if c.Cache.FragmentEntries <= 0 {
		return fmt.Errorf("cache.fragment_entries must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}
