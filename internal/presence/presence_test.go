package presence

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Abyss/pkg/logging"
	"github.com/latoulicious/Abyss/pkg/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	updates []discordgo.UpdateStatusData
	err     error
}

func (f *fakeSession) UpdateStatusComplex(usd discordgo.UpdateStatusData) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, usd)
	return nil
}

func (f *fakeSession) last(t *testing.T) *discordgo.Activity {
	t.Helper()
	require.NotEmpty(t, f.updates)
	acts := f.updates[len(f.updates)-1].Activities
	require.Len(t, acts, 1)
	return acts[0]
}

func testGuilds() []*discordgo.Guild {
	return []*discordgo.Guild{
		{ID: "g1", Channels: make([]*discordgo.Channel, 3)},
		{ID: "g2", Channels: make([]*discordgo.Channel, 2)},
	}
}

var voiceChannel = playback.Destination{GuildID: "g1", ChannelID: "v1"}

func TestDefaultPresence(t *testing.T) {
	session := &fakeSession{}
	pm := newManager(session, testGuilds, logging.Discard())

	pm.UpdateDefaultPresence()

	act := session.last(t)
	assert.Equal(t, "5 channels", act.Name)
	assert.Equal(t, "in 2 servers", act.State)
	assert.Equal(t, discordgo.ActivityTypeWatching, act.Type)
	assert.Equal(t, KindDefault, pm.Current())
}

func TestNoGuildsLeavesPresenceAlone(t *testing.T) {
	session := &fakeSession{}
	pm := newManager(session, func() []*discordgo.Guild { return nil }, logging.Discard())

	pm.Refresh(context.Background())

	assert.Empty(t, session.updates)
	assert.Equal(t, KindNone, pm.Current())
}

func TestMusicPresenceFollowsPlayback(t *testing.T) {
	session := &fakeSession{}
	pm := newManager(session, testGuilds, logging.Discard())
	ctx := context.Background()

	pm.NowPlaying(ctx, voiceChannel, playback.Entry{Title: "Billie Jean", Artist: "Michael Jackson"})
	act := session.last(t)
	assert.Equal(t, discordgo.ActivityTypeListening, act.Type)
	assert.Equal(t, "Billie Jean by Michael Jackson", act.State)
	assert.Equal(t, KindMusic, pm.Current())

	// Refresh leaves the track in place.
	pm.Refresh(ctx)
	assert.Len(t, session.updates, 1)

	// Another channel stopping does not clear it.
	pm.Stopped(ctx, playback.Destination{GuildID: "g1", ChannelID: "v2"})
	assert.Equal(t, KindMusic, pm.Current())

	pm.Stopped(ctx, voiceChannel)
	assert.Equal(t, KindDefault, pm.Current())
	assert.Equal(t, discordgo.ActivityTypeWatching, session.last(t).Type)
}

func TestPresenceUpdateFailureKeepsState(t *testing.T) {
	session := &fakeSession{err: errors.New("websocket closed")}
	pm := newManager(session, testGuilds, logging.Discard())

	pm.NowPlaying(context.Background(), voiceChannel, playback.Entry{Title: "Untitled"})

	assert.Equal(t, KindNone, pm.Current())
}
