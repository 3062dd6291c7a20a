package presence

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Abyss/pkg/playback"
)

// Presence kinds reported by Current.
const (
	KindNone    = ""
	KindDefault = "default"
	KindMusic   = "music"
)

// statusUpdater is the part of *discordgo.Session that sets the bot status.
type statusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

var _ playback.Notifier = (*Manager)(nil)

// Manager keeps the bot's presence in sync with playback: the current track
// while something plays, server statistics otherwise.
type Manager struct {
	session statusUpdater
	guilds  func() []*discordgo.Guild
	log     *slog.Logger

	mu      sync.RWMutex
	current string
	playing playback.Destination
}

// NewManager creates a presence manager for session.
func NewManager(session *discordgo.Session, logger *slog.Logger) *Manager {
	return newManager(session, func() []*discordgo.Guild {
		if session.State == nil {
			return nil
		}
		session.State.RLock()
		defer session.State.RUnlock()
		return append([]*discordgo.Guild(nil), session.State.Guilds...)
	}, logger)
}

func newManager(session statusUpdater, guilds func() []*discordgo.Guild, logger *slog.Logger) *Manager {
	return &Manager{
		session: session,
		guilds:  guilds,
		log:     logger.With("component", "presence"),
	}
}

// UpdateDefaultPresence shows server statistics.
func (pm *Manager) UpdateDefaultPresence() {
	guilds := pm.guilds()
	if len(guilds) == 0 {
		return
	}

	totalChannels := 0
	for _, guild := range guilds {
		if guild != nil {
			totalChannels += len(guild.Channels)
		}
	}

	presence := discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  strconv.Itoa(totalChannels) + " channels",
				Type:  discordgo.ActivityTypeWatching,
				State: "in " + strconv.Itoa(len(guilds)) + " servers",
			},
		},
	}
	if err := pm.session.UpdateStatusComplex(presence); err != nil {
		pm.log.Warn("failed to update presence", "error", err)
		return
	}

	pm.mu.Lock()
	pm.current = KindDefault
	pm.playing = playback.Destination{}
	pm.mu.Unlock()
}

// UpdateMusicPresence shows entry as the track being listened to.
func (pm *Manager) UpdateMusicPresence(dest playback.Destination, entry playback.Entry) {
	state := entry.Title
	if entry.Artist != "" {
		state += " by " + entry.Artist
	}

	presence := discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  state,
				Type:  discordgo.ActivityTypeListening,
				State: state,
			},
		},
	}
	if err := pm.session.UpdateStatusComplex(presence); err != nil {
		pm.log.Warn("failed to update music presence", "error", err)
		return
	}

	pm.mu.Lock()
	pm.current = KindMusic
	pm.playing = dest
	pm.mu.Unlock()
}

// Current returns the presence kind last shown.
func (pm *Manager) Current() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.current
}

// Refresh updates the default presence unless music is being shown.
func (pm *Manager) Refresh(context.Context) {
	if pm.Current() == KindMusic {
		return
	}
	pm.UpdateDefaultPresence()
}

func (pm *Manager) NowPlaying(_ context.Context, dest playback.Destination, entry playback.Entry) {
	pm.UpdateMusicPresence(dest, entry)
}

// Stopped restores the default presence when the channel shown stops.
func (pm *Manager) Stopped(_ context.Context, dest playback.Destination) {
	pm.mu.RLock()
	showing := pm.current == KindMusic && pm.playing == dest
	pm.mu.RUnlock()
	if showing {
		pm.UpdateDefaultPresence()
	}
}
