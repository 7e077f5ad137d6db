package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// It never carries API credentials: callers supply those on every request.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Transcode TranscodeConfig `toml:"transcode"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string   `toml:"host"`
	Port              int      `toml:"port"`
	ReadHeaderTimeout Duration `toml:"read_header_timeout"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout"`
	AllowedOrigins    []string `toml:"allowed_origins"`
	RateLimit         float64  `toml:"rate_limit"` // Requests per second, 0 disables
	RateBurst         int      `toml:"rate_burst"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig contains base URLs and limits for the external APIs.
type UpstreamConfig struct {
	YouTubeAPIURL   string   `toml:"youtube_api_url"`
	SpotifyAPIURL   string   `toml:"spotify_api_url"`
	SpotifyTokenURL string   `toml:"spotify_token_url"`
	Timeout         Duration `toml:"timeout"`
}

// TranscodeConfig contains encoder settings.
type TranscodeConfig struct {
	FFmpegPath     string `toml:"ffmpeg_path"`
	DefaultBitrate int    `toml:"default_bitrate"`
	MinBitrate     int    `toml:"min_bitrate"`
	MaxBitrate     int    `toml:"max_bitrate"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] that decodes from strings like "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
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

// Validate checks the bitrate bounds and required URLs.
func (c *Config) Validate() error {
	t := c.Transcode
	if t.MinBitrate <= 0 || t.MaxBitrate < t.MinBitrate {
		return fmt.Errorf("%w: bitrate bounds %d..%d", ErrInvalidConfig, t.MinBitrate, t.MaxBitrate)
	}
	if t.DefaultBitrate < t.MinBitrate || t.DefaultBitrate > t.MaxBitrate {
		return fmt.Errorf("%w: default bitrate %d outside %d..%d", ErrInvalidConfig, t.DefaultBitrate, t.MinBitrate, t.MaxBitrate)
	}
	if c.Upstream.YouTubeAPIURL == "" || c.Upstream.SpotifyAPIURL == "" || c.Upstream.SpotifyTokenURL == "" {
		return fmt.Errorf("%w: upstream URLs are required", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

// LoadEnv loads variables from the given .env files (default ".env") without overriding the process environment.
// Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values from environment variables.
//
// Recognized: HOST, PORT, YOUTUBE_API_BASE_URL, SPOTIFY_API_BASE_URL, SPOTIFY_TOKEN_URL, FFMPEG_PATH, LOG_LEVEL.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT=%q", ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("YOUTUBE_API_BASE_URL"); v != "" {
		c.Upstream.YouTubeAPIURL = v
	}
	if v := os.Getenv("SPOTIFY_API_BASE_URL"); v != "" {
		c.Upstream.SpotifyAPIURL = v
	}
	if v := os.Getenv("SPOTIFY_TOKEN_URL"); v != "" {
		c.Upstream.SpotifyTokenURL = v
	}
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		c.Transcode.FFmpegPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}
