package pexels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/reelroll/reelroll/internal/video"
)

const (
	DefaultBaseURL = "https://api.pexels.com/videos/search"
	perPage        = 80
	maxPage        = 5
)

// DefaultSearchTerms are the queries a random video is drawn from.
var DefaultSearchTerms = []string{
	"nature", "city", "animals", "technology", "people",
	"weather", "water", "mountains", "space", "abstract",
	"food", "travel", "sports", "music", "sunset",
	"ocean", "forest", "sky", "urban", "garden",
	"birds", "flowers", "landscape", "sunrise", "traffic",
	"beach", "snow", "rain", "wind", "clouds",
}

var ErrNoVideoFile = errors.New("no valid video file found")

type searchResponse struct {
	Videos []searchVideo `json:"videos"`
	Page   int           `json:"page"`
	Total  int           `json:"total_results"`
}

type searchVideo struct {
	ID           int         `json:"id"`
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	Duration     int         `json:"duration"`
	URL          string      `json:"url"`
	Image        string      `json:"image"`
	User         searchUser  `json:"user"`
	Photographer string      `json:"photographer"`
	VideoFiles   []videoFile `json:"video_files"`
}

type searchUser struct {
	Name string `json:"name"`
}

type videoFile struct {
	ID       int    `json:"id"`
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

// PageCache stores raw search result pages between requests.
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte) error
}

type Client struct {
	baseURL     string
	apiKey      string
	searchTerms []string
	cache       PageCache
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		searchTerms: DefaultSearchTerms,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetCache enables caching of search result pages.
func (c *Client) SetCache(cache PageCache) {
	c.cache = cache
}

func (c *Client) SetSearchTerms(terms []string) {
	if len(terms) > 0 {
		c.searchTerms = terms
	}
}

// Random searches a random term on a random result page and picks one of
// the videos found.
func (c *Client) Random(ctx context.Context) (video.Descriptor, error) {
	term := lo.Sample(c.searchTerms)
	page := rand.Intn(maxPage) + 1

	result, err := c.search(ctx, term, page)
	if err != nil {
		return video.Descriptor{}, err
	}

	if len(result.Videos) == 0 {
		return video.Descriptor{}, fmt.Errorf("no videos found for search term: %s", term)
	}

	picked := lo.Sample(result.Videos)
	link, err := pickFileLink(picked.VideoFiles)
	if err != nil {
		return video.Descriptor{}, err
	}

	return video.Descriptor{
		Title:        fmt.Sprintf("%s Video", term),
		Photographer: photographerName(picked),
		Duration:     picked.Duration,
		VideoURL:     link,
		Thumbnail:    picked.Image,
		Width:        picked.Width,
		Height:       picked.Height,
	}, nil
}

func (c *Client) search(ctx context.Context, term string, page int) (*searchResponse, error) {
	key := cacheKey(term, page)
	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("pexels: search cache read failed", "key", key, "error", err)
		} else if ok {
			var cached searchResponse
			if err := json.Unmarshal(body, &cached); err == nil {
				return &cached, nil
			}
			slog.Warn("pexels: discarding undecodable cached page", "key", key)
		}
	}

	query := url.Values{}
	query.Set("query", term)
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching from Pexels: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read Pexels response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Pexels API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("error parsing Pexels response: %w", err)
	}

	if c.cache != nil && len(result.Videos) > 0 {
		if err := c.cache.Set(ctx, key, body); err != nil {
			slog.Warn("pexels: search cache write failed", "key", key, "error", err)
		}
	}

	return &result, nil
}

// pickFileLink prefers the first HD or SD rendition and falls back to
// whatever comes first.
func pickFileLink(files []videoFile) (string, error) {
	preferred, ok := lo.Find(files, func(f videoFile) bool {
		return (f.Quality == "hd" || f.Quality == "sd") && f.Link != ""
	})
	if ok {
		return preferred.Link, nil
	}
	if len(files) > 0 && files[0].Link != "" {
		return files[0].Link, nil
	}
	return "", ErrNoVideoFile
}

func photographerName(v searchVideo) string {
	if v.Photographer != "" {
		return v.Photographer
	}
	return v.User.Name
}

func cacheKey(term string, page int) string {
	return fmt.Sprintf("pexels:search:%s:%d", term, page)
}
