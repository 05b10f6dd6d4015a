// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Recommendation source types.
const (
	SourceSpotify = "spotify"
	SourceLastFm  = "lastfm"
	SourceCatalog = "catalog"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Recommend   RecommendConfig   `yaml:"recommend"`
	Media       MediaConfig       `yaml:"media"`
	Spotify     SpotifyConfig     `yaml:"spotify"`
}

// ServerConfig represents the remote control server configuration.
type ServerConfig struct {
	Addr        string      `yaml:"addr" default:":8080"`
	RemoteToken string      `yaml:"remote_token"`
	Hooks       HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// StoreConfig selects the durable store.
type StoreConfig struct {
	Driver string `yaml:"driver" default:"sqlite" validate:"oneof=sqlite memory"`
	Path   string `yaml:"path" default:"tunebox.db"`
}

// PlaybackConfig represents playback engine configuration.
type PlaybackConfig struct {
	HistoryLimit       int    `yaml:"history_limit" default:"200" validate:"gte=0"`
	RepeatAllExhausted string `yaml:"repeat_all_exhausted" default:"loop_history" validate:"oneof=loop_history stop"`
	PollIntervalMs     int    `yaml:"poll_interval_ms" default:"500" validate:"gte=50,lte=10000"`
	LoadTimeoutSec     int    `yaml:"load_timeout_sec" default:"30" validate:"gte=1"`
	TapWindowMs        int    `yaml:"tap_window_ms" default:"300" validate:"gte=50,lte=2000"`
	AutoPlay           *bool  `yaml:"autoplay" default:"true"`
}

// StartOnRestore reports whether a restored current track starts playing.
func (p PlaybackConfig) StartOnRestore() bool {
	return p.AutoPlay == nil || *p.AutoPlay
}

// PollInterval returns the position polling interval.
func (p PlaybackConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// LoadTimeout returns the upper bound for a single load.
func (p PlaybackConfig) LoadTimeout() time.Duration {
	return time.Duration(p.LoadTimeoutSec) * time.Second
}

// TapWindow returns the double-tap window.
func (p PlaybackConfig) TapWindow() time.Duration {
	return time.Duration(p.TapWindowMs) * time.Millisecond
}

// PersistenceConfig represents state mirroring configuration.
type PersistenceConfig struct {
	DebounceMs      int `yaml:"debounce_ms" default:"300" validate:"gte=0,lte=60000"`
	WriteTimeoutSec int `yaml:"write_timeout_sec" default:"5" validate:"gte=1"`
	MaxBlobMB       int `yaml:"max_blob_mb" default:"64" validate:"gte=0"`
}

// Debounce returns the per-key write debounce.
func (p PersistenceConfig) Debounce() time.Duration {
	return time.Duration(p.DebounceMs) * time.Millisecond
}

// WriteTimeout returns the upper bound for a single store write.
func (p PersistenceConfig) WriteTimeout() time.Duration {
	return time.Duration(p.WriteTimeoutSec) * time.Second
}

// MaxBlobSize returns the audio cache limit in bytes.
func (p PersistenceConfig) MaxBlobSize() int64 {
	return int64(p.MaxBlobMB) << 20
}

// RecommendConfig represents recommendation and search configuration.
type RecommendConfig struct {
	Limit            int            `yaml:"limit" default:"20" validate:"gte=1,lte=100"`
	TimeoutSec       int            `yaml:"timeout_sec" default:"10" validate:"gte=1"`
	SearchDebounceMs int            `yaml:"search_debounce_ms" default:"300" validate:"gte=0"`
	Refill           bool           `yaml:"refill"`
	SeedCount        int            `yaml:"seed_count" default:"5" validate:"gte=1,lte=50"`
	Queries          []string       `yaml:"queries"`
	Sources          []SourceConfig `yaml:"sources" validate:"dive"`
}

// Timeout returns the upper bound for one fan-out.
func (r RecommendConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

// SearchDebounce returns the quiet period before a search runs.
func (r RecommendConfig) SearchDebounce() time.Duration {
	return time.Duration(r.SearchDebounceMs) * time.Millisecond
}

// SourceConfig represents a single recommendation source.
type SourceConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=spotify lastfm catalog"`
	Name     string         `yaml:"name"`
	Settings map[string]any `yaml:"settings"`
}

// MediaConfig represents audio output and OS media session configuration.
type MediaConfig struct {
	Output     string `yaml:"output" default:"speaker" validate:"oneof=speaker none"`
	SampleRate int    `yaml:"sample_rate" default:"44100" validate:"oneof=22050 44100 48000"`
	MPRIS      bool   `yaml:"mpris"`
	Gestures   bool   `yaml:"gestures"`
	PlayerName string `yaml:"player_name" default:"tunebox" validate:"alphanum"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Enabled reports whether Spotify credentials are present.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.RefreshToken != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Recommend.Sources {
			if c.Recommend.Sources[i].Type != SourceLastFm {
				continue
			}
			if c.Recommend.Sources[i].Settings == nil {
				c.Recommend.Sources[i].Settings = map[string]any{}
			}
			c.Recommend.Sources[i].Settings["api_key"] = v
		}
	}
	if v := os.Getenv("TUNEBOX_REMOTE_TOKEN"); v != "" {
		c.Server.RemoteToken = v
	}
}

// HasSource reports whether a source of the given type is configured.
func (c *Config) HasSource(sourceType string) bool {
	return slices.ContainsFunc(c.Recommend.Sources, func(s SourceConfig) bool {
		return s.Type == sourceType
	})
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.HasSource(SourceSpotify) && !c.Spotify.Enabled() {
		return errors.New("spotify source configured but spotify credentials are missing")
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return errors.New("store.path is required for the sqlite driver")
	}

	return nil
}
