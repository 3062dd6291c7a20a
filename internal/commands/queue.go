package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/latoulicious/Abyss/pkg/playback"
)

const (
	// queuePreview is how many waiting songs the queue listing shows.
	queuePreview = 2
	historyLimit = 5
)

// QueueCommand lists and edits the channel's queue.
func (m *Music) QueueCommand() *Command {
	return &Command{
		Name:        "queue",
		Aliases:     []string{"q"},
		Description: "List all songs in the music queue.",
		Default:     m.listQueue,
		Subcommands: map[string]Handler{
			"clear":   m.clearQueue,
			"history": m.listHistory,
			"help": func(context.Context, *Request) ([]Reply, error) {
				return Text(queueHelp), nil
			},
		},
	}
}

// ClearCommand is a shortcut for queue clear.
func (m *Music) ClearCommand() *Command {
	return &Command{
		Name:        "clear",
		Description: "Remove all songs from the queue, except what's currently playing.",
		Default:     m.clearQueue,
	}
}

func (m *Music) listQueue(_ context.Context, req *Request) ([]Reply, error) {
	q, err := m.channelQueue(req)
	if err != nil {
		return nil, err
	}
	return Text(SplitMessage(FormatQueue(q.Entries()), MaxMessageLength)...), nil
}

// FormatQueue renders the playing song, the next few waiting songs and a
// count of the rest.
func FormatQueue(entries []playback.Entry) string {
	if len(entries) == 0 {
		return msgQueueEmpty
	}

	var lines []string
	waiting := entries
	if entries[0].Playing {
		lines = append(lines, "Currently Playing:", "- "+entries[0].Describe())
		waiting = entries[1:]
	}

	if len(waiting) > 0 {
		lines = append(lines, "Up Next:")
	}
	shown := min(len(waiting), queuePreview)
	for i, e := range waiting[:shown] {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, e.Describe()))
	}
	if hidden := len(waiting) - shown; hidden > 0 {
		lines = append(lines, fmt.Sprintf("\n(and %d more.)", hidden))
	}
	return strings.Join(lines, "\n")
}

func (m *Music) clearQueue(_ context.Context, req *Request) ([]Reply, error) {
	q, err := m.channelQueue(req)
	if err != nil {
		return nil, err
	}
	removed := q.Clear()
	m.log.Debug("queue cleared", "channel", q.Destination().ChannelID, "removed", removed)
	return Text(msgQueueCleared), nil
}

func (m *Music) listHistory(ctx context.Context, req *Request) ([]Reply, error) {
	if m.history == nil {
		return nil, ErrNoHistory
	}
	channelID := req.ChannelID
	if req.Destination != nil {
		channelID = req.Destination.ChannelID
	}

	records, err := m.history.Recent(ctx, channelID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(records) == 0 {
		return Text(msgHistoryEmpty), nil
	}

	lines := []string{"Recently Played:"}
	for i, rec := range records {
		entry := playback.Entry{Title: rec.Title, Artist: rec.Artist}
		lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, entry.Describe(), humanize.RelTime(rec.PlayedAt, time.Now(), "ago", "from now")))
	}
	return Text(strings.Join(lines, "\n")), nil
}
