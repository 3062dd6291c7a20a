package catalog

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const subsonicAPIVersion = "1.16.1"

var (
	ErrSubsonicNotConfigured = errors.New("subsonic server not configured")
	ErrSubsonicRequest       = errors.New("subsonic request failed")
)

// SubsonicConfig points the client at a Subsonic-compatible server
// (Navidrome, Airsonic, ...).
type SubsonicConfig struct {
	URL        string        `koanf:"url"`
	Username   string        `koanf:"username"`
	Password   string        `koanf:"password"`
	Client     string        `koanf:"client"`
	SongCount  int           `koanf:"song_count"`
	AlbumCount int           `koanf:"album_count"`
	Timeout    time.Duration `koanf:"timeout"`
}

// DefaultSubsonicConfig returns the default client settings
func DefaultSubsonicConfig() SubsonicConfig {
	return SubsonicConfig{
		Client:     "abyss",
		SongCount:  20,
		AlbumCount: 5,
		Timeout:    10 * time.Second,
	}
}

// Subsonic searches a Subsonic server. Song locators are signed stream URLs.
type Subsonic struct {
	cfg  SubsonicConfig
	http *http.Client
	salt func() string
}

// NewSubsonic creates a client for cfg.
func NewSubsonic(cfg SubsonicConfig) *Subsonic {
	return &Subsonic{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		salt: randomSalt,
	}
}

func (s *Subsonic) Search(ctx context.Context, query string) (*Results, error) {
	if s.cfg.URL == "" {
		return nil, ErrSubsonicNotConfigured
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("songCount", strconv.Itoa(s.cfg.SongCount))
	params.Set("albumCount", strconv.Itoa(s.cfg.AlbumCount))
	params.Set("artistCount", "0")

	var resp subsonicResponse
	if err := s.call(ctx, "search3", params, &resp); err != nil {
		return nil, err
	}

	results := &Results{}
	if resp.SearchResult3 == nil {
		return results, nil
	}
	for _, child := range resp.SearchResult3.Songs {
		results.Songs = append(results.Songs, s.song(child))
	}
	for _, a := range resp.SearchResult3.Albums {
		album, err := s.Album(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		results.Albums = append(results.Albums, *album)
	}
	return results, nil
}

// Album fetches one album with its songs.
func (s *Subsonic) Album(ctx context.Context, id string) (*Album, error) {
	params := url.Values{}
	params.Set("id", id)

	var resp subsonicResponse
	if err := s.call(ctx, "getAlbum", params, &resp); err != nil {
		return nil, err
	}
	if resp.Album == nil {
		return nil, fmt.Errorf("%w: album %s missing from response", ErrSubsonicRequest, id)
	}

	album := &Album{
		ID:     resp.Album.ID,
		Title:  resp.Album.Name,
		Artist: resp.Album.Artist,
	}
	for _, child := range resp.Album.Songs {
		album.Songs = append(album.Songs, s.song(child))
	}
	return album, nil
}

// StreamURL returns the signed URL that streams song id.
func (s *Subsonic) StreamURL(id string) string {
	params := url.Values{}
	params.Set("id", id)
	return s.endpoint("stream", params)
}

func (s *Subsonic) song(c subsonicChild) Song {
	return Song{
		Locator: s.StreamURL(c.ID),
		Title:   c.Title,
		Artist:  c.Artist,
	}
}

func (s *Subsonic) call(ctx context.Context, method string, params url.Values, out *subsonicResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(method, params), nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSubsonicRequest, method, err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSubsonicRequest, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: HTTP %d", ErrSubsonicRequest, method, resp.StatusCode)
	}

	var envelope struct {
		Response subsonicResponse `json:"subsonic-response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrSubsonicRequest, method, err)
	}
	if envelope.Response.Status != "ok" {
		if e := envelope.Response.Error; e != nil {
			return fmt.Errorf("%w: %s: %s (code %d)", ErrSubsonicRequest, method, e.Message, e.Code)
		}
		return fmt.Errorf("%w: %s: status %q", ErrSubsonicRequest, method, envelope.Response.Status)
	}

	*out = envelope.Response
	return nil
}

// endpoint builds an authenticated REST URL using token auth
// (t = md5(password + salt)).
func (s *Subsonic) endpoint(method string, params url.Values) string {
	salt := s.salt()
	sum := md5.Sum([]byte(s.cfg.Password + salt))

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("u", s.cfg.Username)
	q.Set("t", hex.EncodeToString(sum[:]))
	q.Set("s", salt)
	q.Set("v", subsonicAPIVersion)
	q.Set("c", s.cfg.Client)
	q.Set("f", "json")

	return strings.TrimRight(s.cfg.URL, "/") + "/rest/" + method + ".view?" + q.Encode()
}

func randomSalt() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

type subsonicResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	Error         *subsonicError         `json:"error,omitempty"`
	SearchResult3 *subsonicSearchResult3 `json:"searchResult3,omitempty"`
	Album         *subsonicAlbum         `json:"album,omitempty"`
}

type subsonicError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subsonicSearchResult3 struct {
	Songs  []subsonicChild `json:"song"`
	Albums []subsonicAlbum `json:"album"`
}

type subsonicAlbum struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Artist    string          `json:"artist"`
	SongCount int             `json:"songCount"`
	Songs     []subsonicChild `json:"song"`
}

type subsonicChild struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}
