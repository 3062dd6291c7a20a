package commands

import (
	"context"
	"fmt"

	"github.com/latoulicious/Abyss/pkg/catalog"
	"github.com/latoulicious/Abyss/pkg/playback"
)

// PlayCommand searches the catalog and plays or queues the first match.
func (m *Music) PlayCommand() *Command {
	return &Command{
		Name:        "play",
		Aliases:     []string{"p"},
		Description: "Play a song from the music server (only works in voice channels).",
		Default:     m.play,
		Subcommands: map[string]Handler{
			"album": m.playAlbum,
			"next":  m.next,
			"help": func(context.Context, *Request) ([]Reply, error) {
				return Text(playHelp), nil
			},
		},
	}
}

func (m *Music) play(ctx context.Context, req *Request) ([]Reply, error) {
	q, err := m.destinationQueue(req)
	if err != nil {
		return nil, err
	}

	query := catalog.ParseQuery(req.Args)
	if query.Empty() {
		return nil, m.continueQueue(ctx, q)
	}

	res, err := m.catalog.Search(ctx, query.Text())
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query.Text(), err)
	}
	song, ok := query.PickSong(res.Songs)
	if !ok {
		return nil, &ItemNotFoundError{Kind: "Song"}
	}

	sub, err := q.Submit(ctx, playback.Track{Locator: song.Locator, Title: song.Title, Artist: song.Artist})
	if err != nil {
		return nil, err
	}

	if sub.Waiting {
		entry := playback.Entry{Title: song.Title, Artist: song.Artist}
		return Text(fmt.Sprintf("Added %s to the queue.", entry.Describe())), nil
	}
	return nil, nil
}

func (m *Music) playAlbum(ctx context.Context, req *Request) ([]Reply, error) {
	q, err := m.destinationQueue(req)
	if err != nil {
		return nil, err
	}

	query := catalog.ParseQuery(req.Args)
	if query.Empty() {
		return nil, m.continueQueue(ctx, q)
	}

	res, err := m.catalog.Search(ctx, query.Text())
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query.Text(), err)
	}
	album, ok := query.PickAlbum(res.Albums)
	if !ok || len(album.Songs) == 0 {
		return nil, &ItemNotFoundError{Kind: "Album"}
	}

	tracks := make([]playback.Track, 0, len(album.Songs))
	for _, song := range album.Songs {
		tracks = append(tracks, playback.Track{Locator: song.Locator, Title: song.Title, Artist: song.Artist})
	}
	if _, err := q.Submit(ctx, tracks...); err != nil {
		return nil, err
	}

	entry := playback.Entry{Title: album.Title, Artist: album.Artist}
	return Text(fmt.Sprintf("Adding album %s (%d songs) to the queue.", entry.Describe(), len(album.Songs))), nil
}

// continueQueue handles a play without search terms: it resumes or
// advances a non-empty queue.
func (m *Music) continueQueue(ctx context.Context, q *playback.ChannelQueue) error {
	if q.Len() == 0 {
		return ErrEmptyQuery
	}
	return q.PlayNextOrResume(ctx)
}

func (m *Music) next(_ context.Context, req *Request) ([]Reply, error) {
	q, err := m.channelQueue(req)
	if err != nil {
		return nil, err
	}
	if !q.Skip() {
		return Text(msgNothingPlaying), nil
	}
	return nil, nil
}

// SkipCommand is a shortcut for play next.
func (m *Music) SkipCommand() *Command {
	return &Command{
		Name:        "skip",
		Aliases:     []string{"s"},
		Description: "Skip to the next song in the queue.",
		Default:     m.next,
	}
}
