package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/latoulicious/Abyss/pkg/lyrics"
	"github.com/latoulicious/Abyss/pkg/playback"
)

// LyricsFinder looks up song lyrics.
type LyricsFinder interface {
	Search(ctx context.Context, query string) (*lyrics.Result, error)
}

// LyricsCommand shows the lyrics of a song, by default the one playing in
// the author's voice channel.
func LyricsCommand(registry *playback.Registry, finder LyricsFinder) *Command {
	return &Command{
		Name:        "lyrics",
		Aliases:     []string{"ly"},
		Description: "Show the lyrics of the playing song, or of `!lyrics {song}`.",
		Default: func(ctx context.Context, req *Request) ([]Reply, error) {
			query := strings.Join(req.Args, " ")
			if query == "" {
				entry, ok := playingEntry(registry, req)
				if !ok {
					return Text(msgNothingPlaying), nil
				}
				query = strings.TrimSpace(entry.Title + " " + entry.Artist)
			}

			res, err := finder.Search(ctx, query)
			if errors.Is(err, lyrics.ErrNotFound) {
				return Text(fmt.Sprintf("No lyrics found for %q.", query)), nil
			}
			if err != nil {
				return nil, err
			}

			header := fmt.Sprintf("**%s**", res.Title)
			if res.Artist != "" {
				header += fmt.Sprintf(" by *%s*", res.Artist)
			}
			return Text(header + "\n" + res.Lyrics + "\n<" + res.URL + ">"), nil
		},
	}
}

func playingEntry(registry *playback.Registry, req *Request) (playback.Entry, bool) {
	channelID := req.ChannelID
	if req.Destination != nil {
		channelID = req.Destination.ChannelID
	}
	q, ok := registry.Lookup(channelID)
	if !ok {
		return playback.Entry{}, false
	}
	entries := q.Entries()
	if len(entries) == 0 || !entries[0].Playing {
		return playback.Entry{}, false
	}
	return entries[0], true
}
