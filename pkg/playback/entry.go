package playback

import "fmt"

// EntryID identifies a queued entry across the whole registry.
type EntryID uint64

// Entry is one track waiting in, or streaming from, a ChannelQueue.
type Entry struct {
	ID      EntryID
	Locator string
	Title   string
	Artist  string
	Playing bool
}

// Describe renders the entry as chat markdown.
func (e Entry) Describe() string {
	if e.Artist == "" {
		return fmt.Sprintf("**%s**", e.Title)
	}
	return fmt.Sprintf("**%s** by *%s*", e.Title, e.Artist)
}

// Destination is the voice channel a ChannelQueue plays into.
type Destination struct {
	GuildID   string
	ChannelID string
}

func (d Destination) String() string {
	return d.GuildID + "/" + d.ChannelID
}
