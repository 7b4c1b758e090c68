package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher downloads the body of a tile URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchError is returned for transport failures and non-2xx responses.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: upstream returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Options struct {
	UserAgent string
	Referer   string
	Timeout   time.Duration
	// MaxBytes caps the size of a tile body. Zero means 16 MiB.
	MaxBytes int64
}

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	referer   string
	maxBytes  int64
}

var _ Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(opts Options) *HTTPFetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: opts.UserAgent,
		referer:   opts.Referer,
		maxBytes:  maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	// Tile usage policies of most providers require an identifying user agent
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to read tile data: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("tile larger than %d bytes", f.maxBytes)}
	}
	if len(data) == 0 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("empty tile body")}
	}

	return data, nil
}
