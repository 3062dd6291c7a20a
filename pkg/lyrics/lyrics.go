package lyrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrEmptyQuery = errors.New("empty search query")
	ErrNotFound   = errors.New("no lyrics found")
	ErrRequest    = errors.New("lyrics request failed")
)

// Config points the scraper at a lyrics site.
type Config struct {
	BaseURL  string        `koanf:"base_url"`
	Timeout  time.Duration `koanf:"timeout"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// DefaultConfig returns the default lyrics configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://www.animelyrics.com",
		Timeout:  10 * time.Second,
		CacheTTL: 30 * time.Minute,
	}
}

// Result is one lyrics page.
type Result struct {
	Title  string
	Artist string
	Lyrics string
	URL    string
}

type cacheEntry struct {
	result  *Result
	err     error
	expires time.Time
}

// Scraper searches a lyrics site and extracts the first matching page.
// Lookups, including misses, are cached for CacheTTL.
type Scraper struct {
	client  *http.Client
	baseURL string
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewScraper(cfg Config) *Scraper {
	return &Scraper{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		ttl:     cfg.CacheTTL,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// Search returns the lyrics of the first search hit for query.
func (s *Scraper) Search(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	key := strings.ToLower(query)
	s.mu.Lock()
	if entry, ok := s.cache[key]; ok && s.now().Before(entry.expires) {
		s.mu.Unlock()
		return entry.result, entry.err
	}
	s.mu.Unlock()

	result, err := s.search(ctx, query)
	// Transport failures are retried on the next lookup.
	if err == nil || errors.Is(err, ErrNotFound) {
		s.mu.Lock()
		s.cache[key] = cacheEntry{result: result, err: err, expires: s.now().Add(s.ttl)}
		s.mu.Unlock()
	}
	return result, err
}

// ClearCache drops every cached lookup.
func (s *Scraper) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cacheEntry)
}

func (s *Scraper) search(ctx context.Context, query string) (*Result, error) {
	searchURL := fmt.Sprintf("%s/search.php?search=%s", s.baseURL, url.QueryEscape(query))
	doc, err := s.fetch(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	var pageURL string
	doc.Find("a[href*='anime/']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if href, ok := sel.Attr("href"); ok && href != "" {
			pageURL = href
			return false
		}
		return true
	})
	if pageURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, query)
	}
	if !strings.HasPrefix(pageURL, "http") {
		pageURL = s.baseURL + "/" + strings.TrimPrefix(pageURL, "/")
	}

	return s.page(ctx, pageURL)
}

func (s *Scraper) page(ctx context.Context, pageURL string) (*Result, error) {
	doc, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	result := &Result{URL: pageURL}
	result.Title = strings.TrimSpace(doc.Find("h1, h2, h3").First().Text())

	doc.Find("p, div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		for _, label := range []string{"Artist:", "歌手:"} {
			if i := strings.Index(text, label); i >= 0 {
				line, _, _ := strings.Cut(text[i+len(label):], "\n")
				result.Artist = strings.TrimSpace(line)
				return false
			}
		}
		return true
	})

	result.Lyrics = cleanLyrics(doc.Find("div.lyrics, div#lyrics, pre, .lyrics-content").First().Text())
	if result.Lyrics == "" {
		return nil, fmt.Errorf("%w: empty lyrics page %s", ErrNotFound, pageURL)
	}
	return result, nil
}

func (s *Scraper) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrRequest, resp.StatusCode, target)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrRequest, target, err)
	}
	return doc, nil
}

// cleanLyrics trims every line and collapses runs of blank lines.
func cleanLyrics(text string) string {
	var lines []string
	blank := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(lines) > 0 {
				lines = append(lines, "")
			}
			blank = true
			continue
		}
		blank = false
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
