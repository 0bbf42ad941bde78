package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/ratelimit"
)

// maxBodyBytes caps how much of a page the fetch stages keep. Extraction only
// looks at head metadata and link hrefs, so a cap protects the payload column
// from multi-megabyte pages.
const maxBodyBytes = 512 * 1024

// Fetcher retrieves pages for the fetch/scrape stages, with per-host rate
// limiting and typed HTTP errors so the dispatcher can classify failures.
type Fetcher struct {
	client    *http.Client
	limiter   *ratelimit.HostLimiter
	userAgent string
}

// NewFetcher creates a page fetcher. limiter may be shared with other
// components touching the same hosts.
func NewFetcher(client *http.Client, limiter *ratelimit.HostLimiter, userAgent string) *Fetcher {
	return &Fetcher{
		client:    client,
		limiter:   limiter,
		userAgent: userAgent,
	}
}

// Fetch GETs the URL and returns up to maxBodyBytes of the body. Non-2xx
// statuses come back as model.HTTPError; 429 responses carry Retry-After.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", &model.StructuralError{Reason: fmt.Sprintf("invalid url %q", rawURL), Err: err}
	}

	if err := f.limiter.Wait(ctx, u.Hostname()); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("fetch %s", rawURL),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}
	return string(body), nil
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
