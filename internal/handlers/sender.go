package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Abyss/internal/commands"
	"github.com/latoulicious/Abyss/pkg/playback"
	"golang.org/x/time/rate"
)

// ChannelMessenger is the part of *discordgo.Session used to post messages.
type ChannelMessenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type outgoing struct {
	channelID string
	reply     commands.Reply
}

var _ playback.Notifier = (*Sender)(nil)

// Sender posts chat messages from a single worker, rate limited so bursts
// of replies don't trip Discord's limits. Send never blocks.
type Sender struct {
	messenger ChannelMessenger
	limiter   *rate.Limiter
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan outgoing
	done   chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	dropped int
}

// NewSender creates a sender allowing perSecond messages with the given
// burst. Call Start before sending.
func NewSender(messenger ChannelMessenger, perSecond float64, burst int, logger *slog.Logger) *Sender {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sender{
		messenger: messenger,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
		log:       logger.With("component", "sender"),
		ctx:       ctx,
		cancel:    cancel,
		queue:     make(chan outgoing, max(burst, 1)*8),
		done:      make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (s *Sender) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.run()
}

// Stop stops accepting messages and delivers what is queued until ctx
// expires. Whatever is left then is dropped.
func (s *Sender) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	close(s.queue)
	s.mu.Unlock()

	if !started {
		s.cancel()
		return
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		s.cancel()
		<-s.done
	}
	s.cancel()
}

// Send queues replies for channelID. Replies are dropped when the sender is
// stopped or the queue is full.
func (s *Sender) Send(channelID string, replies ...commands.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for _, reply := range replies {
		select {
		case s.queue <- outgoing{channelID: channelID, reply: reply}:
		default:
			s.dropped++
			s.log.Warn("send queue full, dropping message", "channel", channelID)
		}
	}
}

// Dropped returns how many messages were never delivered.
func (s *Sender) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// NowPlaying announces the new track in the voice channel's text chat.
func (s *Sender) NowPlaying(_ context.Context, dest playback.Destination, entry playback.Entry) {
	s.Send(dest.ChannelID, commands.Reply{Content: "Playing " + entry.Describe()})
}

func (s *Sender) Stopped(context.Context, playback.Destination) {}

func (s *Sender) run() {
	defer close(s.done)
	for msg := range s.queue {
		if err := s.limiter.Wait(s.ctx); err != nil {
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
			continue
		}
		s.deliver(msg)
	}
}

func (s *Sender) deliver(msg outgoing) {
	var err error
	if msg.reply.Embed != nil {
		_, err = s.messenger.ChannelMessageSendEmbed(msg.channelID, msg.reply.Embed)
	} else {
		_, err = s.messenger.ChannelMessageSend(msg.channelID, msg.reply.Content)
	}
	if err != nil {
		s.log.Error("failed to send message", "channel", msg.channelID, "error", err)
	}
}
