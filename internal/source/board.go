package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/ratelimit"
)

// Listing is one normalized job posting from a board, before it becomes a
// queue item.
type Listing struct {
	Title    string
	Company  string
	Location string
	URL      string
	PostedAt *time.Time
}

// BoardClient fetches listings from a job board. Vendor-specific selector
// work stays behind this seam; the orchestrator only sees Listings.
type BoardClient interface {
	FetchListings(ctx context.Context, src *model.Source) ([]Listing, error)
}

// boardJob is a single job in the board API response (Greenhouse-style
// public boards endpoint).
type boardJob struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Location    boardLocation `json:"location"`
	AbsoluteURL string        `json:"absolute_url"`
	UpdatedAt   string        `json:"updated_at"`
}

type boardLocation struct {
	Name string `json:"name"`
}

// boardResponse is the top-level board jobs API response.
type boardResponse struct {
	Jobs []boardJob `json:"jobs"`
}

// JSONBoardClient fetches listings from boards exposing a public JSON jobs
// endpoint at {board_url}/jobs.
type JSONBoardClient struct {
	client  *http.Client
	limiter *ratelimit.HostLimiter
}

// NewJSONBoardClient creates a board client. The limiter is shared with the
// page fetcher so all traffic to a board host is throttled together.
func NewJSONBoardClient(client *http.Client, limiter *ratelimit.HostLimiter) *JSONBoardClient {
	return &JSONBoardClient{client: client, limiter: limiter}
}

// FetchListings retrieves all jobs from the source's board and normalizes
// them into Listings.
func (c *JSONBoardClient) FetchListings(ctx context.Context, src *model.Source) ([]Listing, error) {
	endpoint := src.BoardURL + "/jobs"

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, &model.StructuralError{Reason: fmt.Sprintf("invalid board url %q", src.BoardURL), Err: err}
	}
	if err := c.limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("board fetch for %s: %w", src.Name, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("board fetch for %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("board fetch for %s", src.Name),
		}
	}

	var boardResp boardResponse
	if err := json.NewDecoder(resp.Body).Decode(&boardResp); err != nil {
		return nil, &model.StructuralError{Reason: fmt.Sprintf("board response for %s", src.Name), Err: err}
	}

	listings := make([]Listing, 0, len(boardResp.Jobs))
	for _, bj := range boardResp.Jobs {
		listing := Listing{
			Title:    bj.Title,
			Company:  src.CompanyName,
			Location: bj.Location.Name,
			URL:      bj.AbsoluteURL,
		}
		if bj.UpdatedAt != "" {
			if t, err := time.Parse(time.RFC3339, bj.UpdatedAt); err == nil {
				listing.PostedAt = &t
			}
		}
		if listing.URL == "" {
			// A listing with no apply link cannot become a job item.
			continue
		}
		listings = append(listings, listing)
	}
	return listings, nil
}
