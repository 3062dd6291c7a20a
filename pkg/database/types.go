package database

import (
	"time"
)

// Config holds configuration for the history database
type Config struct {
	Path              string        `koanf:"path"`
	MaxConnections    int           `koanf:"max_connections"`
	ConnectionTimeout time.Duration `koanf:"connection_timeout"`
	SynchronousMode   string        `koanf:"synchronous_mode"`

	// History persistence settings
	HistoryRetention time.Duration `koanf:"history_retention"`
	BatchSize        int           `koanf:"batch_size"`
	FlushInterval    time.Duration `koanf:"flush_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Path:              "abyss.db",
		MaxConnections:    4,
		ConnectionTimeout: 10 * time.Second,
		SynchronousMode:   "NORMAL",

		HistoryRetention: 30 * 24 * time.Hour, // 30 days
		BatchSize:        20,
		FlushInterval:    5 * time.Second,
	}
}

// Validate validates the database configuration
func (c Config) Validate() error {
	if c.Path == "" {
		return ErrInvalidDatabasePath
	}
	if c.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.ConnectionTimeout <= 0 {
		return ErrInvalidConnectionTimeout
	}
	if c.HistoryRetention <= 0 {
		return ErrInvalidHistoryRetention
	}
	if c.BatchSize <= 0 || c.FlushInterval <= 0 {
		return ErrInvalidBatchSize
	}
	if c.SynchronousMode != "OFF" && c.SynchronousMode != "NORMAL" && c.SynchronousMode != "FULL" {
		return ErrInvalidSynchronousMode
	}
	return nil
}

// PlayRecord is one track that started playing in a voice channel
type PlayRecord struct {
	ID        int64
	GuildID   string
	ChannelID string
	Title     string
	Artist    string
	Locator   string
	PlayedAt  time.Time
}

// HistoryStats summarises the stored history
type HistoryStats struct {
	TotalPlays int64
	Channels   int
	Oldest     *time.Time
	Newest     *time.Time
}
