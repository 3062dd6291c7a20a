package catalog

import (
	"context"
	"errors"
	"fmt"
)

// Song is one playable track. Locator is whatever the voice transport can
// open (an HTTP stream URL in practice).
type Song struct {
	Locator string
	Title   string
	Artist  string
}

// Album groups the songs of one release, in track order.
type Album struct {
	ID     string
	Title  string
	Artist string
	Songs  []Song
}

// Results is what a search returns, best match first.
type Results struct {
	Songs  []Song
	Albums []Album
}

// Client resolves a free-text query into playable items.
type Client interface {
	Search(ctx context.Context, query string) (*Results, error)
}

// Chain searches every client in order and merges their results. It fails
// only when every client fails.
type Chain []Client

func (c Chain) Search(ctx context.Context, query string) (*Results, error) {
	merged := &Results{}
	var errs []error
	for _, client := range c {
		res, err := client.Search(ctx, query)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		merged.Songs = append(merged.Songs, res.Songs...)
		merged.Albums = append(merged.Albums, res.Albums...)
	}
	if len(c) > 0 && len(errs) == len(c) {
		return nil, fmt.Errorf("catalog search %q: %w", query, errors.Join(errs...))
	}
	return merged, nil
}
