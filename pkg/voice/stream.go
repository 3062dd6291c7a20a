package voice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Abyss/pkg/playback"
	"layeh.com/gopus"
)

// Stream plays one locator into a voice connection: ffmpeg decodes to PCM,
// the volume is applied, gopus encodes 20ms frames and they are sent on
// OpusSend.
type Stream struct {
	vc  *discordgo.VoiceConnection
	cfg Config
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}

	mu      sync.Mutex
	running bool
	paused  bool
}

// NewStream creates an idle stream for vc.
func NewStream(vc *discordgo.VoiceConnection, cfg Config, logger *slog.Logger) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		vc:     vc,
		cfg:    cfg,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
}

// ffmpegArgs returns the decoder arguments for locator.
func ffmpegArgs(locator string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-loglevel", "error",
		"-i", locator,
		"-vn",
		"-f", "s16le",
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"pipe:1",
	}
}

// Start launches ffmpeg and the send loop. It returns once ffmpeg is running.
func (s *Stream) Start(locator string) error {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("%w: opus encoder: %v", playback.ErrResourceUnavailable, err)
	}
	encoder.SetBitrate(s.cfg.Bitrate)

	cmd := exec.CommandContext(s.ctx, s.cfg.FFmpegPath, ffmpegArgs(locator)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	go s.run(cmd, stdout, encoder)
	return nil
}

func (s *Stream) run(cmd *exec.Cmd, stdout io.Reader, encoder *gopus.Encoder) {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		_ = s.vc.Speaking(false)
	}()

	if err := s.vc.Speaking(true); err != nil {
		s.log.Debug("speaking flag", "error", err)
	}

	pcm := newPCMStreamer(stdout)
	source := withVolume(pcm, s.cfg.Volume)
	samples := make([][2]float64, frameSize)
	frame := make([]int16, frameSize*channels)
	frames := 0

	for {
		if !s.waitWhilePaused() {
			return
		}

		n, ok := source.Stream(samples)
		if !ok {
			if err := pcm.Err(); err != nil {
				s.log.Warn("pcm read failed", "error", err)
			}
			s.log.Debug("stream ended", "frames", frames)
			return
		}
		toInt16(samples[:n], frame)
		for i := n * channels; i < len(frame); i++ {
			frame[i] = 0
		}

		opus, err := encoder.Encode(frame, frameSize, maxOpusBytes)
		if err != nil {
			s.log.Warn("opus encode failed", "error", err)
			continue
		}

		select {
		case s.vc.OpusSend <- opus:
			frames++
		case <-s.ctx.Done():
			return
		}
	}
}

// waitWhilePaused blocks until the stream is resumed or stopped. It returns
// false once stopped.
func (s *Stream) waitWhilePaused() bool {
	for {
		s.mu.Lock()
		paused := s.paused
		s.mu.Unlock()
		if !paused {
			return s.ctx.Err() == nil
		}
		select {
		case <-s.wake:
		case <-s.ctx.Done():
			return false
		}
	}
}

// Pause holds frame delivery. ffmpeg keeps its input open.
func (s *Stream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && !s.paused {
		s.paused = true
		_ = s.vc.Speaking(false)
	}
}

// Resume continues a paused stream.
func (s *Stream) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	_ = s.vc.Speaking(true)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop kills ffmpeg and ends the send loop. The stream reports not playing
// as soon as Stop returns.
func (s *Stream) Stop() {
	s.cancel()
	s.mu.Lock()
	s.running = false
	s.paused = false
	s.mu.Unlock()
}

// Done is closed when the send loop has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Playing reports whether audio is being sent.
func (s *Stream) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

// Paused reports whether the stream is alive but held.
func (s *Stream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.paused
}
