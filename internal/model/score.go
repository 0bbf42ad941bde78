package model

import (
	"context"
	"time"
)

// Adjustment is one rule-based score delta with an auditable reason.
type Adjustment struct {
	Category string `json:"category"` // e.g. tech-stack, remote, timezone
	Reason   string `json:"reason"`
	Points   int    `json:"points"` // positive or negative
}

// FilterResult is the Filter Engine's verdict on an entity before any paid
// analysis runs.
type FilterResult struct {
	Passed      bool         `json:"passed"`
	Reason      string       `json:"reason,omitempty"` // set when rejected
	BaseScore   int          `json:"base_score"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
}

// RuleScore sums the rule-based contribution: base plus all adjustments.
func (f FilterResult) RuleScore() int {
	score := f.BaseScore
	for _, a := range f.Adjustments {
		score += a.Points
	}
	return score
}

// OracleResult is what the scoring oracle returns for one entity.
type OracleResult struct {
	MatchScore    int      `json:"match_score"`
	MatchedSkills []string `json:"matched_skills"`
	MissingSkills []string `json:"missing_skills"`
	Summary       string   `json:"summary"`
}

// ScoreResult combines the oracle score with rule adjustments for the final
// save/skip decision.
type ScoreResult struct {
	BaseScore     int          `json:"base_score"` // oracle match score, or the configured base when the oracle is disabled
	Adjustments   []Adjustment `json:"adjustments,omitempty"`
	FinalScore    int          `json:"final_score"`
	Threshold     int          `json:"threshold"`
	MatchedSkills []string     `json:"matched_skills,omitempty"`
	MissingSkills []string     `json:"missing_skills,omitempty"`
	Summary       string       `json:"summary,omitempty"`
}

// JobMatch is the persistence record for a terminal job item, and what
// notifiers receive when a match is saved.
type JobMatch struct {
	ID            string
	Status        Status
	URL           string
	CompanyName   string
	CompanyID     string
	Source        string
	RetryCount    int
	ResultMessage string
	ScrapedData   string // free-form JSON blob of scraped fields
	MatchScore    int
	MatchedSkills []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
	CompletedAt   *time.Time
}

// MatchNotifier announces saved job matches.
type MatchNotifier interface {
	NotifyMatch(match JobMatch) error
}

// Source is one scrapeable job board registered in the system of record.
type Source struct {
	ID            string
	Name          string
	Kind          string // greenhouse, lever, ashby, workday, unknown
	BoardURL      string
	CompanyName   string
	LastScrapedAt *time.Time
	CreatedAt     time.Time
}

// Company is the system-of-record row a company save stage writes.
type Company struct {
	ID          string
	Name        string
	Website     string
	Source      string
	Description string
	JobBoardURL string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecordStore is the system of record the save stages and the scrape
// orchestrator write to. Kept separate from QueueStore so handlers depend
// only on what they touch.
type RecordStore interface {
	SaveCompany(ctx context.Context, c *Company) (string, error)
	SaveJobMatch(ctx context.Context, m *JobMatch) error
	UpsertSource(ctx context.Context, s *Source) (string, error)

	// HasSourceCovering reports whether a registered source already covers
	// the given board URL; used to avoid spawning duplicate discoveries.
	HasSourceCovering(ctx context.Context, boardURL string) (bool, error)

	// EligibleSources returns sources in scrape priority order: never-scraped
	// first, then oldest LastScrapedAt. A non-empty pin list restricts and
	// bypasses rotation.
	EligibleSources(ctx context.Context, pinned []string) ([]*Source, error)

	MarkSourceScraped(ctx context.Context, id string, at time.Time) error
}
