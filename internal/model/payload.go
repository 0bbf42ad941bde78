package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payloads accumulate data across stages; fields are only ever added, never
// cleared, so a terminal item carries its full history.

// CompanyPayload is carried by company items through fetch → extract →
// analyze → save.
type CompanyPayload struct {
	Name    string `json:"name"`
	Website string `json:"website"`
	Source  string `json:"source"` // who submitted: manual, scraper, scheduler

	// Set by fetch.
	RawHTML string `json:"raw_html,omitempty"`

	// Set by extract.
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	About       string `json:"about,omitempty"`
	JobBoardURL string `json:"job_board_url,omitempty"`
	BoardKind   string `json:"board_kind,omitempty"`

	// Set by analyze.
	Filter *FilterResult `json:"filter,omitempty"`
}

// JobPayload is carried by job items through scrape → filter → analyze → save.
type JobPayload struct {
	URL         string `json:"url"`
	CompanyName string `json:"company_name"`
	CompanyID   string `json:"company_id,omitempty"`
	Source      string `json:"source"`

	// Set by scrape.
	Title       string     `json:"title,omitempty"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`

	// Set by filter.
	Filter *FilterResult `json:"filter,omitempty"`

	// Set by analyze.
	Score *ScoreResult `json:"score,omitempty"`
}

// DiscoveryPayload is carried by sourceDiscovery items.
type DiscoveryPayload struct {
	BoardURL    string `json:"board_url"`
	CompanyName string `json:"company_name,omitempty"`

	// Set by extract.
	Kind string `json:"kind,omitempty"` // greenhouse, lever, ashby, workday, unknown
	Name string `json:"name,omitempty"`
}

// ScrapePayload configures and summarizes a scrape run.
type ScrapePayload struct {
	TargetMatches int      `json:"target_matches,omitempty"` // stop once this many listings pass filtering; 0 = unbounded
	MaxSources    int      `json:"max_sources,omitempty"`    // visit at most this many sources; 0 = unbounded
	SourceIDs     []string `json:"source_ids,omitempty"`     // pins specific sources, bypassing rotation

	// Set by the orchestrator.
	SourcesVisited int `json:"sources_visited,omitempty"`
	Matches        int `json:"matches,omitempty"`
	JobsSpawned    int `json:"jobs_spawned,omitempty"`
}

// EncodePayload serializes a stage payload for storage on a queue item.
func EncodePayload(p any) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload deserializes a queue item's payload into dst. A malformed
// payload is a structural failure, never retried.
func DecodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return &StructuralError{Reason: "empty payload"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &StructuralError{Reason: "invalid payload shape", Err: err}
	}
	return nil
}
