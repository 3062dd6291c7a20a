package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/latoulicious/Abyss/pkg/catalog"
	"github.com/latoulicious/Abyss/pkg/database"
	"github.com/latoulicious/Abyss/pkg/logging"
	"github.com/latoulicious/Abyss/pkg/lyrics"
	"github.com/latoulicious/Abyss/pkg/playback"
	"github.com/latoulicious/Abyss/pkg/voice"
)

var (
	ErrDiscordTokenNotSet     = errors.New("DISCORD_TOKEN is not set")
	ErrInvalidPrefix          = errors.New("command prefix must not be empty")
	ErrNoAllowedChannels      = errors.New("at least one allowed channel is required")
	ErrInvalidTickInterval    = errors.New("playback tick interval must be positive")
	ErrInvalidConnectTimeout  = errors.New("playback connect timeout must be positive")
	ErrInvalidIdleTimeout     = errors.New("playback idle timeout must not be negative")
	ErrInvalidMessageRate     = errors.New("message rate and burst must be positive")
	ErrInvalidSubsonicAccount = errors.New("subsonic url needs a username and password")
)

// DefaultConfigPath is read when ABYSS_CONFIG is not set.
const DefaultConfigPath = "config.toml"

// DefaultAllowedChannels are the text channel names the bot answers in.
var DefaultAllowedChannels = []string{"games", "The Abyss"}

type Config struct {
	DiscordToken    string   `koanf:"discord_token"`
	Prefix          string   `koanf:"prefix"`
	AllowedChannels []string `koanf:"allowed_channels"`
	MetricsAddr     string   `koanf:"metrics_addr"`

	Subsonic catalog.SubsonicConfig `koanf:"subsonic"`
	Playback playback.Config        `koanf:"playback"`
	Voice    voice.Config           `koanf:"voice"`
	Logging  logging.Config         `koanf:"logging"`
	Database database.Config        `koanf:"database"`
	Messages MessagesConfig         `koanf:"messages"`
	Lyrics   lyrics.Config          `koanf:"lyrics"`
}

// MessagesConfig limits how fast the bot sends chat messages.
type MessagesConfig struct {
	Rate  float64 `koanf:"rate"`  // messages per second
	Burst int     `koanf:"burst"` // messages sent back to back before limiting
}

// envBindings maps environment variables onto config keys. They are applied
// after the config file, so the environment wins.
var envBindings = map[string]string{
	"DISCORD_TOKEN":     "discord_token",
	"BOT_PREFIX":        "prefix",
	"METRICS_ADDR":      "metrics_addr",
	"SUBSONIC_URL":      "subsonic.url",
	"SUBSONIC_USERNAME": "subsonic.username",
	"SUBSONIC_PASSWORD": "subsonic.password",
	"TICK_INTERVAL":     "playback.tick_interval",
	"CONNECT_TIMEOUT":   "playback.connect_timeout",
	"IDLE_TIMEOUT":      "playback.idle_timeout",
	"FFMPEG_PATH":       "voice.ffmpeg_path",
	"VOLUME":            "voice.volume",
	"LOG_LEVEL":         "logging.level",
	"LOG_FORMAT":        "logging.format",
	"DATABASE_PATH":     "database.path",
	"LYRICS_URL":        "lyrics.base_url",
}

// Default returns the configuration used for every key left unset.
func Default() Config {
	return Config{
		Prefix:   "!",
		Subsonic: catalog.DefaultSubsonicConfig(),
		Playback: playback.DefaultConfig(),
		Voice:    voice.DefaultConfig(),
		Logging:  logging.DefaultConfig(),
		Database: database.DefaultConfig(),
		Messages: MessagesConfig{Rate: 4, Burst: 10},
		Lyrics:   lyrics.DefaultConfig(),
	}
}

// LoadConfig reads .env, the TOML file named by ABYSS_CONFIG (config.toml by
// default) and the environment, then validates the result.
func LoadConfig() (*Config, error) {
	// A missing .env is fine; the variables may come from the real environment.
	_ = godotenv.Load()

	path := os.Getenv("ABYSS_CONFIG")
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(path)
}

// Load builds a Config from defaults, the TOML file at path if it exists and
// the environment bindings.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	for env, key := range envBindings {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("apply %s: %w", env, err)
			}
		}
	}
	if v := os.Getenv("ALLOWED_CHANNELS"); v != "" {
		if err := k.Set("allowed_channels", splitList(v)); err != nil {
			return nil, fmt.Errorf("apply ALLOWED_CHANNELS: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.AllowedChannels) == 0 {
		cfg.AllowedChannels = append([]string(nil), DefaultAllowedChannels...)
	}

	// Normalize subsonic URL (remove trailing slash)
	cfg.Subsonic.URL = strings.TrimSuffix(cfg.Subsonic.URL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrDiscordTokenNotSet
	}
	if c.Prefix == "" {
		return ErrInvalidPrefix
	}
	if len(c.AllowedChannels) == 0 {
		return ErrNoAllowedChannels
	}
	if c.Subsonic.URL != "" && (c.Subsonic.Username == "" || c.Subsonic.Password == "") {
		return ErrInvalidSubsonicAccount
	}
	if c.Playback.TickInterval <= 0 {
		return ErrInvalidTickInterval
	}
	if c.Playback.ConnectTimeout <= 0 {
		return ErrInvalidConnectTimeout
	}
	if c.Playback.IdleTimeout < 0 {
		return ErrInvalidIdleTimeout
	}
	if c.Messages.Rate <= 0 || c.Messages.Burst <= 0 {
		return ErrInvalidMessageRate
	}
	if err := c.Voice.Validate(); err != nil {
		return fmt.Errorf("voice: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// HasSubsonic reports whether a Subsonic server is configured.
func (c *Config) HasSubsonic() bool {
	return c.Subsonic.URL != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
