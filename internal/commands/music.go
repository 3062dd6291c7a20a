package commands

import (
	"context"
	"log/slog"

	"github.com/latoulicious/Abyss/pkg/catalog"
	"github.com/latoulicious/Abyss/pkg/database"
	"github.com/latoulicious/Abyss/pkg/playback"
)

// HistoryReader reads the play history of a channel.
type HistoryReader interface {
	Recent(ctx context.Context, channelID string, limit int) ([]database.PlayRecord, error)
}

// Music holds what the music commands share.
type Music struct {
	registry *playback.Registry
	catalog  catalog.Client
	history  HistoryReader
	log      *slog.Logger
}

// NewMusic creates the music commands. history may be nil.
func NewMusic(registry *playback.Registry, client catalog.Client, history HistoryReader, logger *slog.Logger) *Music {
	return &Music{
		registry: registry,
		catalog:  client,
		history:  history,
		log:      logger.With("component", "music"),
	}
}

// Commands returns every music command, ready to register.
func (m *Music) Commands() []*Command {
	return []*Command{
		m.PlayCommand(),
		m.PauseCommand(),
		m.ResumeCommand(),
		m.SkipCommand(),
		m.StopCommand(),
		m.QueueCommand(),
		m.ClearCommand(),
		m.NowPlayingCommand(),
	}
}

// destinationQueue returns the queue of the author's voice channel.
func (m *Music) destinationQueue(req *Request) (*playback.ChannelQueue, error) {
	if req.Destination == nil {
		return nil, ErrNotInDestination
	}
	return m.registry.Get(*req.Destination), nil
}

// channelQueue returns the queue for the author's voice channel or, when
// the author is not in one, the queue of the voice channel whose chat the
// command was typed in.
func (m *Music) channelQueue(req *Request) (*playback.ChannelQueue, error) {
	if req.Destination != nil {
		return m.registry.Get(*req.Destination), nil
	}
	if q, ok := m.registry.Lookup(req.ChannelID); ok {
		return q, nil
	}
	return nil, ErrNotInDestination
}
