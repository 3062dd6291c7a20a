package catalog

import "strings"

// Query is a parsed search request. Tokens starting with "@" name the
// artist, tokens starting with "-" exclude titles containing them.
type Query struct {
	Terms   []string
	Artist  string
	Exclude []string
}

// ParseQuery splits command tokens into search terms and filters.
func ParseQuery(tokens []string) Query {
	var q Query
	var artist []string
	for _, tok := range tokens {
		switch {
		case tok == "":
		case tok[0] == '@':
			artist = append(artist, tok[1:])
		case tok[0] == '-':
			if len(tok) > 1 {
				q.Exclude = append(q.Exclude, tok[1:])
			}
		default:
			q.Terms = append(q.Terms, tok)
		}
	}
	q.Artist = strings.Join(artist, " ")
	return q
}

// Text is the search string sent to the catalog.
func (q Query) Text() string {
	return strings.Join(q.Terms, " ")
}

// Empty reports whether there is nothing to search for.
func (q Query) Empty() bool {
	return len(q.Terms) == 0
}

// Accepts reports whether an item with this title and artist passes the
// artist and exclusion filters. Matching is case-insensitive substring.
func (q Query) Accepts(title, artist string) bool {
	lowerTitle := strings.ToLower(title)
	for _, ex := range q.Exclude {
		if strings.Contains(lowerTitle, strings.ToLower(ex)) {
			return false
		}
	}
	if q.Artist == "" {
		return true
	}
	return artist != "" && strings.Contains(strings.ToLower(artist), strings.ToLower(q.Artist))
}

// PickSong returns the first song passing the filters.
func (q Query) PickSong(songs []Song) (Song, bool) {
	for _, s := range songs {
		if q.Accepts(s.Title, s.Artist) {
			return s, true
		}
	}
	return Song{}, false
}

// PickAlbum returns the first album passing the filters.
func (q Query) PickAlbum(albums []Album) (Album, bool) {
	for _, a := range albums {
		if q.Accepts(a.Title, a.Artist) {
			return a, true
		}
	}
	return Album{}, false
}
