package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reelroll/reelroll/internal/video"
)

const RandomPath = "/api/random"

// StatusError is a response that arrived with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.Code)
}

// ParseError is a 2xx response whose body is not a usable descriptor.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse video descriptor: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// HTTPFetcher requests a descriptor from a reelroll server.
type HTTPFetcher struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		endpoint: strings.TrimRight(baseURL, "/") + RandomPath,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (video.Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return video.Descriptor{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return video.Descriptor{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return video.Descriptor{}, &StatusError{Code: resp.StatusCode}
	}

	var d video.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return video.Descriptor{}, &ParseError{Err: err}
	}
	if err := d.Validate(); err != nil {
		return video.Descriptor{}, &ParseError{Err: err}
	}

	return d, nil
}
