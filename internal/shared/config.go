package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Client   ClientConfig   `toml:"client"`
	Player   PlayerConfig   `toml:"player"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ClientConfig contains Subsonic API client settings shared by every server profile.
type ClientConfig struct {
	ID              string  `toml:"id"`
	APIVersion      string  `toml:"api_version"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	RateLimit       float64 `toml:"rate_limit"` // requests per second, 0 disables limiting
	PageSize        int     `toml:"page_size"`
	BottomThreshold int     `toml:"bottom_threshold"`
}

// PlayerConfig selects the playback backend: "exec" runs Command with Args and the stream URL, "mpd" queues the
// stream on a Music Player Daemon.
type PlayerConfig struct {
	Backend     string   `toml:"backend"`
	Command     string   `toml:"command"`
	Args        []string `toml:"args"`
	MPDAddress  string   `toml:"mpd_address"`
	MPDPassword string   `toml:"mpd_password"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Timeout returns the HTTP timeout as a [time.Duration].
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks values that would otherwise break the client at runtime.
func (c *Config) Validate() error {
	if c.Client.ID == "" {
		return fmt.Errorf("%w: client.id is required", ErrInvalidConfig)
	}
	if c.Client.APIVersion == "" {
		return fmt.Errorf("%w: client.api_version is required", ErrInvalidConfig)
	}
	if c.Client.PageSize <= 0 {
		return fmt.Errorf("%w: client.page_size must be positive", ErrInvalidConfig)
	}
	if c.Client.RateLimit < 0 {
		return fmt.Errorf("%w: client.rate_limit must not be negative", ErrInvalidConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	switch c.Player.Backend {
	case "", "exec":
	case "mpd":
		if c.Player.MPDAddress == "" {
			return fmt.Errorf("%w: player.mpd_address is required for the mpd backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown player.backend %q (want exec or mpd)", ErrInvalidConfig, c.Player.Backend)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
