// Package media downloads remote images over HTTP.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
)

// Fetcher implements ports.MediaFetcher. Each Fetch is one request with no
// retry.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

var _ ports.MediaFetcher = (*Fetcher)(nil)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithMaxBytes caps the size of a downloaded asset. Zero means no cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// NewFetcher creates a fetcher with the given timeout.
func NewFetcher(timeout time.Duration, opts ...Option) *Fetcher {
	f := &Fetcher{httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFetcherFromConfig creates a fetcher from the media config section.
func NewFetcherFromConfig(cfg config.MediaConfig) *Fetcher {
	return NewFetcher(cfg.Timeout, WithMaxBytes(cfg.MaxBytes))
}

// Fetch downloads url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (ports.Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ports.Media{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return ports.Media{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.Media{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return ports.Media{}, fmt.Errorf("asset is %d bytes, limit is %d bytes", resp.ContentLength, f.maxBytes)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return ports.Media{}, fmt.Errorf("reading body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return ports.Media{}, fmt.Errorf("asset too large, limit is %d bytes", f.maxBytes)
	}
	if len(data) == 0 {
		return ports.Media{}, fmt.Errorf("empty body")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return ports.Media{SourceURL: url, ContentType: contentType, Data: data}, nil
}
