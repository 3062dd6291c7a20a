package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/latoulicious/Abyss/pkg/catalog"
	"github.com/latoulicious/Abyss/pkg/database"
	"github.com/latoulicious/Abyss/pkg/logging"
	"github.com/latoulicious/Abyss/pkg/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	voiceA = playback.Destination{GuildID: "g1", ChannelID: "voice-a"}
	voiceB = playback.Destination{GuildID: "g1", ChannelID: "voice-b"}
)

type stubCatalog struct {
	results *catalog.Results
	err     error
	queries []string
}

func (s *stubCatalog) Search(_ context.Context, query string) (*catalog.Results, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type stubHistory struct {
	records []database.PlayRecord
	err     error
}

func (s stubHistory) Recent(_ context.Context, _ string, limit int) ([]database.PlayRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records[:min(limit, len(s.records))], nil
}

func testResults() *catalog.Results {
	return &catalog.Results{
		Songs: []catalog.Song{
			{Locator: "loc-bj-instr", Title: "Billie Jean (Instrumental)", Artist: "Michael Jackson"},
			{Locator: "loc-bj", Title: "Billie Jean", Artist: "Michael Jackson"},
			{Locator: "loc-cover", Title: "Billie Jean", Artist: "The Bates"},
		},
		Albums: []catalog.Album{
			{ID: "al1", Title: "Thriller", Artist: "Michael Jackson", Songs: []catalog.Song{
				{Locator: "t1", Title: "Wanna Be Startin' Somethin'", Artist: "Michael Jackson"},
				{Locator: "t2", Title: "Baby Be Mine", Artist: "Michael Jackson"},
			}},
		},
	}
}

type testBot struct {
	router    *Router
	registry  *playback.Registry
	transport *playback.MockTransport
	notifier  *playback.RecordingNotifier
	catalog   *stubCatalog
}

func newTestBot(t *testing.T, history HistoryReader) *testBot {
	t.Helper()
	transport := playback.NewMockTransport()
	notifier := &playback.RecordingNotifier{}
	cfg := playback.DefaultConfig()
	cfg.IdleTimeout = 0
	registry := playback.NewRegistry(transport, cfg,
		playback.WithNotifier(notifier), playback.WithLogger(logging.Discard()))

	cat := &stubCatalog{results: testResults()}
	router := NewRouter("!", logging.Discard())
	music := NewMusic(registry, cat, history, logging.Discard())
	require.NoError(t, router.Register(music.Commands()...))
	require.NoError(t, router.Register(HelpCommand(router)))

	return &testBot{router: router, registry: registry, transport: transport, notifier: notifier, catalog: cat}
}

// run dispatches a command typed in the voice channel chat of dest.
func (b *testBot) run(dest *playback.Destination, line string) []string {
	fields := strings.Fields(line)
	req := &Request{GuildID: "g1", ChannelID: "text", AuthorID: "u1", Destination: dest, Args: fields[1:]}
	if dest != nil {
		req.ChannelID = dest.ChannelID
	}
	var out []string
	for _, reply := range b.router.Dispatch(context.Background(), fields[0], req) {
		out = append(out, reply.Content)
	}
	return out
}

func entryTitles(q *playback.ChannelQueue) []string {
	var out []string
	for _, e := range q.Entries() {
		out = append(out, e.Title)
	}
	return out
}

func TestPlayRequiresVoiceChannel(t *testing.T) {
	bot := newTestBot(t, nil)

	assert.Equal(t, []string{"This command only works in voice channels."}, bot.run(nil, "play billie jean"))
	assert.Empty(t, bot.transport.Connects())
}

func TestPlayEmptyQuery(t *testing.T) {
	bot := newTestBot(t, nil)

	assert.Equal(t, []string{"Please input a search term, or use `!play help` for usage info."}, bot.run(&voiceA, "play"))
	assert.Equal(t, []string{"Please input a search term, or use `!play help` for usage info."}, bot.run(&voiceA, "play @jackson -live"))
}

func TestPlayStartsFirstMatch(t *testing.T) {
	bot := newTestBot(t, nil)

	replies := bot.run(&voiceA, "play billie jean @jackson -instrumental")

	assert.Empty(t, replies)
	assert.Equal(t, []string{"billie jean"}, bot.catalog.queries)
	q := bot.registry.Get(voiceA)
	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Playing)
	assert.Equal(t, []string{"loc-bj"}, bot.transport.Last().Locators())
	require.Len(t, bot.notifier.Played(), 1)
	assert.Equal(t, "**Billie Jean** by *Michael Jackson*", bot.notifier.Played()[0].Describe())
}

func TestPlayWhilePlayingQueues(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.run(&voiceA, "play billie jean @jackson -instrumental")

	replies := bot.run(&voiceA, "play billie jean @bates")

	assert.Equal(t, []string{"Added **Billie Jean** by *The Bates* to the queue."}, replies)
	assert.Equal(t, []string{"Billie Jean", "Billie Jean"}, entryTitles(bot.registry.Get(voiceA)))
	assert.Len(t, bot.transport.Last().Locators(), 1)
}

func TestPlaySongNotFound(t *testing.T) {
	bot := newTestBot(t, nil)

	assert.Equal(t, []string{"Song not found."}, bot.run(&voiceA, "play billie jean @prince"))
	assert.Zero(t, bot.registry.Get(voiceA).Len())
}

func TestPlaySearchFailure(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.catalog.err = errors.New("server unreachable")

	replies := bot.run(&voiceA, "play anything")

	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0], "ERROR: "))
	assert.Contains(t, replies[0], "server unreachable")
}

func TestPlayInSecondChannelIsBusy(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.run(&voiceA, "play billie jean @jackson -instrumental")
	handleA := bot.transport.Last()
	callsA := handleA.Calls()

	replies := bot.run(&voiceB, "play billie jean @bates")

	assert.Equal(t, []string{"Another channel is already using the player. Try again once it stops."}, replies)
	assert.Zero(t, bot.registry.Get(voiceB).Len(), "rejected request must not stay queued")
	assert.Equal(t, callsA, handleA.Calls())
	assert.True(t, handleA.IsPlaying())
	assert.Equal(t, []string{"Billie Jean"}, entryTitles(bot.registry.Get(voiceA)))
}

func TestPlayConnectFailure(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.transport.FailConnects(errors.New("missing access"))

	replies := bot.run(&voiceA, "play billie jean @bates")

	require.Len(t, replies, 1)
	assert.Equal(t, "ERROR: Could not connect to the voice channel: missing access", replies[0])
	assert.Zero(t, bot.registry.Get(voiceA).Len())
	assert.False(t, bot.registry.Get(voiceA).IsConnected())
}

func TestPlayAlbum(t *testing.T) {
	bot := newTestBot(t, nil)

	replies := bot.run(&voiceA, "play ALBUM thriller")

	assert.Equal(t, []string{"Adding album **Thriller** by *Michael Jackson* (2 songs) to the queue."}, replies)
	q := bot.registry.Get(voiceA)
	assert.Equal(t, []string{"Wanna Be Startin' Somethin'", "Baby Be Mine"}, entryTitles(q))
	assert.True(t, q.Entries()[0].Playing)
}

func TestPlayAlbumNotFound(t *testing.T) {
	bot := newTestBot(t, nil)

	assert.Equal(t, []string{"Album not found."}, bot.run(&voiceA, "play album thriller -thriller"))
}

func TestPlayAlbumBusyWithdrawsEverySong(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.run(&voiceA, "play billie jean @bates")

	replies := bot.run(&voiceB, "play album thriller")

	assert.Equal(t, []string{"Another channel is already using the player. Try again once it stops."}, replies)
	assert.Zero(t, bot.registry.Get(voiceB).Len())
}

func TestPlayNext(t *testing.T) {
	bot := newTestBot(t, nil)

	assert.Equal(t, []string{"Nothing is playing."}, bot.run(&voiceA, "play next"))

	bot.run(&voiceA, "play album thriller")
	assert.Empty(t, bot.run(&voiceA, "play next"))
	assert.False(t, bot.transport.Last().IsPlaying())

	playback.NewScheduler(bot.registry).Tick(context.Background())

	q := bot.registry.Get(voiceA)
	assert.Equal(t, []string{"Baby Be Mine"}, entryTitles(q))
	assert.True(t, q.IsPlaying())
	assert.Empty(t, bot.run(&voiceA, "skip"))
}

func TestPauseThenPlay(t *testing.T) {
	bot := newTestBot(t, nil)

	assert.Equal(t, []string{"Nothing is playing."}, bot.run(&voiceA, "pause"))

	bot.run(&voiceA, "play billie jean @bates")
	assert.Empty(t, bot.run(&voiceA, "pause"))
	q := bot.registry.Get(voiceA)
	assert.True(t, q.IsPaused())

	// A new song while paused is only queued.
	assert.Equal(t, []string{"Added **Billie Jean** by *Michael Jackson* to the queue."}, bot.run(&voiceA, "play billie jean @jackson -instrumental"))
	assert.True(t, q.IsPaused())

	// An empty play resumes the same head.
	assert.Empty(t, bot.run(&voiceA, "play"))
	assert.True(t, q.IsPlaying())
	assert.Equal(t, []string{"Billie Jean", "Billie Jean"}, entryTitles(q))
	assert.Equal(t, []string{"play", "pause", "resume"}, bot.transport.Last().Calls())
}

func TestResume(t *testing.T) {
	bot := newTestBot(t, nil)

	assert.Equal(t, []string{"There are no songs in the queue."}, bot.run(&voiceA, "resume"))

	bot.run(&voiceA, "play billie jean @bates")
	bot.run(&voiceA, "pause")
	assert.Empty(t, bot.run(&voiceA, "resume"))
	assert.True(t, bot.registry.Get(voiceA).IsPlaying())
}

func TestStop(t *testing.T) {
	bot := newTestBot(t, nil)
	assert.Equal(t, []string{"Nothing is playing."}, bot.run(&voiceA, "stop"))

	bot.run(&voiceA, "play album thriller")
	handle := bot.transport.Last()

	assert.Empty(t, bot.run(&voiceA, "stop"))
	assert.Equal(t, []string{"Nothing is playing."}, bot.run(&voiceA, "stop"))

	q := bot.registry.Get(voiceA)
	assert.Equal(t, []string{"Baby Be Mine"}, entryTitles(q))
	assert.False(t, handle.IsConnected())
	assert.False(t, q.IsConnected())

	// The voice connection is free for another channel now.
	assert.Empty(t, bot.run(&voiceB, "play billie jean @bates"))
	assert.True(t, bot.registry.Get(voiceB).IsPlaying())
}

func TestStopDisconnectError(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.run(&voiceA, "play billie jean @bates")
	bot.transport.Last().FailDisconnect(errors.New("gateway closed"))

	assert.Equal(t, []string{"ERROR: gateway closed"}, bot.run(&voiceA, "stop"))
	assert.False(t, bot.registry.Get(voiceA).IsConnected())
}

func TestCommandsFromVoiceChatWithoutVoiceState(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.run(&voiceA, "play album thriller")

	// Typed in voice-a's chat by someone not connected to voice.
	req := &Request{GuildID: "g1", ChannelID: voiceA.ChannelID, AuthorID: "u2", Args: nil}
	replies := bot.router.Dispatch(context.Background(), "queue", req)

	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Content, "Currently Playing:")
	assert.Equal(t, []string{"This command only works in voice channels."}, bot.run(nil, "queue"))
}

func TestQueueListingAndClear(t *testing.T) {
	bot := newTestBot(t, nil)

	assert.Equal(t, []string{"There are no songs in the queue."}, bot.run(&voiceA, "queue"))

	bot.run(&voiceA, "play album thriller")
	bot.run(&voiceA, "play billie jean @bates")
	bot.run(&voiceA, "play billie jean @jackson -instrumental")

	assert.Equal(t, []string{strings.Join([]string{
		"Currently Playing:",
		"- **Wanna Be Startin' Somethin'** by *Michael Jackson*",
		"Up Next:",
		"1. **Baby Be Mine** by *Michael Jackson*",
		"2. **Billie Jean** by *The Bates*",
		"",
		"(and 1 more.)",
	}, "\n")}, bot.run(&voiceA, "queue"))

	assert.Equal(t, []string{"All songs have been removed from the queue."}, bot.run(&voiceA, "queue clear"))
	assert.Equal(t, []string{"Wanna Be Startin' Somethin'"}, entryTitles(bot.registry.Get(voiceA)))
	assert.Equal(t, []string{"All songs have been removed from the queue."}, bot.run(&voiceA, "clear"))
}

func TestQueueHelp(t *testing.T) {
	bot := newTestBot(t, nil)

	replies := bot.run(&voiceA, "queue help")
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0], "View and edit the music queue."))

	replies = bot.run(nil, "play help")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "`!play billie jean @jackson`")
	assert.Contains(t, replies[0], "`!play album {album name}` adds an entire album to the queue.")
}

func TestFormatQueue(t *testing.T) {
	tests := []struct {
		name    string
		entries []playback.Entry
		want    string
	}{
		{name: "empty", want: "There are no songs in the queue."},
		{
			name:    "only playing",
			entries: []playback.Entry{{Title: "A", Artist: "X", Playing: true}},
			want:    "Currently Playing:\n- **A** by *X*",
		},
		{
			name:    "nothing playing yet",
			entries: []playback.Entry{{Title: "A", Artist: "X"}, {Title: "B"}, {Title: "C"}, {Title: "D"}, {Title: "E"}},
			want:    "Up Next:\n1. **A** by *X*\n2. **B**\n\n(and 3 more.)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatQueue(tt.entries))
		})
	}
}

func TestQueueHistory(t *testing.T) {
	bot := newTestBot(t, nil)
	assert.Equal(t, []string{"Play history is not available."}, bot.run(&voiceA, "queue history"))

	played := time.Now().Add(-2 * time.Hour)
	bot = newTestBot(t, stubHistory{records: []database.PlayRecord{
		{Title: "Thriller", Artist: "Michael Jackson", PlayedAt: played},
		{Title: "Human Nature", PlayedAt: played},
	}})

	replies := bot.run(&voiceA, "queue history")
	require.Len(t, replies, 1)
	assert.Equal(t, strings.Join([]string{
		"Recently Played:",
		"1. **Thriller** by *Michael Jackson* (2 hours ago)",
		"2. **Human Nature** (2 hours ago)",
	}, "\n"), replies[0])

	bot = newTestBot(t, stubHistory{})
	assert.Equal(t, []string{"Nothing has been played in this channel yet."}, bot.run(&voiceA, "queue history"))
}

func TestNowPlaying(t *testing.T) {
	bot := newTestBot(t, nil)
	assert.Equal(t, []string{"Nothing is playing."}, bot.run(&voiceA, "np"))

	bot.run(&voiceA, "play billie jean @bates")
	assert.Equal(t, []string{"Playing **Billie Jean** by *The Bates*"}, bot.run(&voiceA, "nowplaying"))

	bot.run(&voiceA, "pause")
	assert.Equal(t, []string{"Paused **Billie Jean** by *The Bates*"}, bot.run(&voiceA, "np"))
}
