package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		text    string
		artist  string
		exclude []string
	}{
		{
			name:   "plain terms",
			tokens: []string{"billie", "jean"},
			text:   "billie jean",
		},
		{
			name:   "artist filter",
			tokens: []string{"billie", "jean", "@jackson"},
			text:   "billie jean",
			artist: "jackson",
		},
		{
			name:    "exclusions",
			tokens:  []string{"the", "best", "it's", "gonna", "get", "-instrumental", "-live"},
			text:    "the best it's gonna get",
			exclude: []string{"instrumental", "live"},
		},
		{
			name:   "multi word artist",
			tokens: []string{"@michael", "thriller", "@jackson"},
			text:   "thriller",
			artist: "michael jackson",
		},
		{
			name:   "filters only",
			tokens: []string{"@queen", "-", ""},
			artist: "queen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ParseQuery(tt.tokens)
			assert.Equal(t, tt.text, q.Text())
			assert.Equal(t, tt.artist, q.Artist)
			assert.Equal(t, tt.exclude, q.Exclude)
			assert.Equal(t, tt.text == "", q.Empty())
		})
	}
}

func TestPickSong(t *testing.T) {
	songs := []Song{
		{Locator: "1", Title: "Billie Jean (Instrumental)", Artist: "Michael Jackson"},
		{Locator: "2", Title: "Billie Jean", Artist: "The Bates"},
		{Locator: "3", Title: "Billie Jean", Artist: "Michael Jackson"},
		{Locator: "4", Title: "Billie Jean Demo"},
	}

	tests := []struct {
		name   string
		tokens []string
		want   string
		found  bool
	}{
		{name: "first result", tokens: []string{"billie"}, want: "1", found: true},
		{name: "exclusion", tokens: []string{"billie", "-INSTRUMENTAL"}, want: "2", found: true},
		{name: "artist and exclusion", tokens: []string{"billie", "@jackson", "-instrumental"}, want: "3", found: true},
		{name: "artist never matches absent artist", tokens: []string{"billie", "@demo"}, found: false},
		{name: "nothing left", tokens: []string{"billie", "-jean"}, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			song, ok := ParseQuery(tt.tokens).PickSong(songs)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, song.Locator)
			}
		})
	}
}

func TestPickAlbum(t *testing.T) {
	albums := []Album{
		{ID: "a1", Title: "Thriller (Live)", Artist: "Michael Jackson"},
		{ID: "a2", Title: "Thriller", Artist: "Michael Jackson"},
	}

	album, ok := ParseQuery([]string{"thriller", "-live"}).PickAlbum(albums)
	assert.True(t, ok)
	assert.Equal(t, "a2", album.ID)

	_, ok = ParseQuery([]string{"thriller", "@prince"}).PickAlbum(albums)
	assert.False(t, ok)
}
