package commands

import (
	"strings"
	"unicode/utf8"
)

// Chat replies.
const (
	msgNotInVoice     = "This command only works in voice channels."
	msgEmptyQuery     = "Please input a search term, or use `!play help` for usage info."
	msgConnectionBusy = "Another channel is already using the player. Try again once it stops."
	msgNothingPlaying = "Nothing is playing."
	msgQueueEmpty     = "There are no songs in the queue."
	msgQueueCleared   = "All songs have been removed from the queue."
	msgNoHistory      = "Play history is not available."
	msgHistoryEmpty   = "Nothing has been played in this channel yet."
	msgBadSubcommand  = "ERROR: Invalid subcommand %q."
	msgUnknownCommand = "ERROR: Unknown command. Type `%shelp` for a list of commands."
)

// MaxMessageLength is the longest message Discord accepts.
const MaxMessageLength = 2000

var playHelp = strings.Join([]string{
	"Search the music server for a song and play the first result, or add to the queue if a song is already playing.",
	"You can put @ in front of a word to indicate the artist name, e.g.:",
	"`!play billie jean @jackson`",
	"You can also put - in front of a word to exclude it from the search, e.g.:",
	"`!play the best it's gonna get -instrumental`",
	"----",
	"`!play next` skips to the next song in the queue.",
	"`!play album {album name}` adds an entire album to the queue.",
}, "\n")

var queueHelp = strings.Join([]string{
	"View and edit the music queue.",
	"`!queue` lists all songs in the queue and what's playing, if anything.",
	"`!queue clear` removes all songs from the queue, except what's currently playing.",
	"`!queue history` lists the last songs played in this channel.",
}, "\n")

// SplitMessage breaks text into chunks of at most limit bytes, cutting at
// line boundaries. A single line longer than limit is cut at the last rune
// boundary that fits.
func SplitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		for len(line) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			cut := runeCut(line, limit)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len() > 0 && current.Len()+1+len(line) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// runeCut returns the largest index <= limit that does not split a rune.
func runeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}
