package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Abyss/pkg/playback"
)

var (
	ErrInvalidVolume  = errors.New("volume must be between 0 and 2")
	ErrInvalidBitrate = errors.New("bitrate must be between 8000 and 512000")
)

// Config controls voice joins and audio encoding.
type Config struct {
	FFmpegPath   string        `koanf:"ffmpeg_path"`
	Volume       float64       `koanf:"volume"`
	Bitrate      int           `koanf:"bitrate"`
	JoinRetries  int           `koanf:"join_retries"`
	ReadyTimeout time.Duration `koanf:"ready_timeout"`
	SelfDeaf     bool          `koanf:"self_deaf"`
}

// DefaultConfig returns the default voice configuration
func DefaultConfig() Config {
	return Config{
		FFmpegPath:   "ffmpeg",
		Volume:       0.25,
		Bitrate:      128000,
		JoinRetries:  3,
		ReadyTimeout: 10 * time.Second,
		SelfDeaf:     true,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Volume < 0 || c.Volume > 2 {
		return ErrInvalidVolume
	}
	if c.Bitrate < 8000 || c.Bitrate > 512000 {
		return ErrInvalidBitrate
	}
	return nil
}

// voiceJoiner is the part of *discordgo.Session used to join channels.
type voiceJoiner interface {
	ChannelVoiceJoin(gID, cID string, mute, deaf bool) (*discordgo.VoiceConnection, error)
}

var _ playback.Transport = (*Transport)(nil)

// Transport opens Discord voice connections.
type Transport struct {
	session  voiceJoiner
	cfg      Config
	log      *slog.Logger
	lookPath func(string) (string, error)
}

// NewTransport creates a transport joining through session.
func NewTransport(session *discordgo.Session, cfg Config, logger *slog.Logger) *Transport {
	return &Transport{
		session:  session,
		cfg:      cfg,
		log:      logger.With("component", "voice"),
		lookPath: exec.LookPath,
	}
}

// Connect joins dest and waits until the connection is ready.
func (t *Transport) Connect(ctx context.Context, dest playback.Destination) (playback.Handle, error) {
	if _, err := t.lookPath(t.cfg.FFmpegPath); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v", playback.ErrResourceUnavailable, err)
	}

	vc, err := t.join(ctx, dest)
	if err != nil {
		return nil, err
	}
	if err := t.waitReady(ctx, vc); err != nil {
		_ = vc.Disconnect()
		return nil, err
	}

	t.log.Info("voice connection ready", "guild", dest.GuildID, "channel", dest.ChannelID)
	return newConnection(vc, t.cfg, t.log.With("channel", dest.ChannelID)), nil
}

func (t *Transport) join(ctx context.Context, dest playback.Destination) (*discordgo.VoiceConnection, error) {
	attempts := max(t.cfg.JoinRetries, 1)

	var lastErr error
	for i := 0; i < attempts; i++ {
		vc, err := t.session.ChannelVoiceJoin(dest.GuildID, dest.ChannelID, false, t.cfg.SelfDeaf)
		if err == nil {
			return vc, nil
		}
		lastErr = err
		t.log.Warn("voice join failed", "attempt", i+1, "of", attempts, "channel", dest.ChannelID, "error", err)

		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(time.Duration(i+1) * time.Second):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: join %s: %v", playback.ErrTimeout, dest.ChannelID, ctx.Err())
		}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: join %s: %v", playback.ErrTimeout, dest.ChannelID, lastErr)
	}
	return nil, fmt.Errorf("%w: join %s after %d attempts: %v", playback.ErrClientError, dest.ChannelID, attempts, lastErr)
}

func (t *Transport) waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	if voiceReady(vc) {
		return nil
	}

	timeout := time.NewTimer(t.cfg.ReadyTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout.C:
			return fmt.Errorf("%w: voice connection not ready after %s", playback.ErrTimeout, t.cfg.ReadyTimeout)
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", playback.ErrTimeout, ctx.Err())
		case <-ticker.C:
			if voiceReady(vc) {
				return nil
			}
		}
	}
}

func voiceReady(vc *discordgo.VoiceConnection) bool {
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

var _ playback.Handle = (*Connection)(nil)

// Connection is a joined voice channel. At most one stream plays on it.
type Connection struct {
	vc  *discordgo.VoiceConnection
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	stream *Stream
}

func newConnection(vc *discordgo.VoiceConnection, cfg Config, logger *slog.Logger) *Connection {
	return &Connection{vc: vc, cfg: cfg, log: logger}
}

func (c *Connection) Play(locator string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
	}
	s := NewStream(c.vc, c.cfg, c.log)
	if err := s.Start(locator); err != nil {
		c.stream = nil
		return err
	}
	c.stream = s
	return nil
}

func (c *Connection) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
}

func (c *Connection) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.stream.Pause()
	}
}

func (c *Connection) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.stream.Resume()
	}
}

func (c *Connection) Disconnect(ctx context.Context) error {
	c.Stop()
	errCh := make(chan error, 1)
	go func() { errCh <- c.vc.Disconnect() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil && c.stream.Playing()
}

func (c *Connection) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil && c.stream.Paused()
}

func (c *Connection) IsConnected() bool {
	return voiceReady(c.vc)
}
