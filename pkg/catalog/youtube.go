package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// YouTube resolves YouTube video links to direct audio stream URLs. Any
// other query yields no results.
type YouTube struct {
	client youtube.Client
}

// NewYouTube creates a YouTube resolver.
func NewYouTube() *YouTube {
	return &YouTube{}
}

// IsYouTubeURL reports whether s is a link to a YouTube video.
func IsYouTubeURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtu.be":
		return len(strings.Trim(u.Path, "/")) > 0
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		return u.Query().Get("v") != "" || strings.HasPrefix(u.Path, "/shorts/") || strings.HasPrefix(u.Path, "/embed/")
	}
	return false
}

func (y *YouTube) Search(ctx context.Context, query string) (*Results, error) {
	if !IsYouTubeURL(query) {
		return &Results{}, nil
	}

	video, err := y.client.GetVideoContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("youtube lookup %q: %w", query, err)
	}

	formats := video.Formats.WithAudioChannels().Type("audio")
	if len(formats) == 0 {
		formats = video.Formats.WithAudioChannels()
	}
	if len(formats) == 0 {
		return &Results{}, nil
	}
	formats.Sort()
	best := formats[0]

	streamURL, err := y.client.GetStreamURLContext(ctx, video, &best)
	if err != nil {
		return nil, fmt.Errorf("youtube stream url %q: %w", video.ID, err)
	}

	return &Results{Songs: []Song{{
		Locator: streamURL,
		Title:   video.Title,
		Artist:  video.Author,
	}}}, nil
}
