package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rjoshi44/huntd/internal/model"
)

// System-of-record operations: the tables the save stages and the scrape
// orchestrator write to.

// SaveCompany upserts a company row keyed by (name, website) and returns its id.
func (s *SQLiteStore) SaveCompany(ctx context.Context, c *model.Company) (string, error) {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, website, source, description, job_board_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, website) DO UPDATE SET
			source        = excluded.source,
			description   = excluded.description,
			job_board_url = excluded.job_board_url,
			updated_at    = excluded.updated_at`,
		c.ID, c.Name, c.Website, c.Source, c.Description, c.JobBoardURL, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("save company %s: %w", c.Name, err)
	}

	// The upsert keeps the original id on conflict; read it back.
	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM companies WHERE name = ? AND website = ?`, c.Name, c.Website,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save company %s: read id: %w", c.Name, err)
	}
	c.ID = id
	return id, nil
}

// SaveJobMatch writes the persistence record for a terminal job item.
func (s *SQLiteStore) SaveJobMatch(ctx context.Context, m *model.JobMatch) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	var processedAt, completedAt any
	if m.ProcessedAt != nil {
		processedAt = m.ProcessedAt.UTC()
	}
	if m.CompletedAt != nil {
		completedAt = m.CompletedAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO job_matches (id, status, url, company_name,
			company_id, source, retry_count, result_message, scraped_data,
			match_score, matched_skills, created_at, updated_at, processed_at,
			completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Status, m.URL, m.CompanyName, m.CompanyID, m.Source,
		m.RetryCount, m.ResultMessage, m.ScrapedData, m.MatchScore,
		strings.Join(m.MatchedSkills, ","), m.CreatedAt, m.UpdatedAt,
		processedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("save job match %s: %w", m.URL, err)
	}
	return nil
}

// CountJobMatches returns the number of saved match records; used by tests
// and the queue command summary.
func (s *SQLiteStore) CountJobMatches(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count job matches: %w", err)
	}
	return n, nil
}

// UpsertSource registers a scrapeable board, keyed by board URL. An existing
// row keeps its id and last_scraped_at.
func (s *SQLiteStore) UpsertSource(ctx context.Context, src *model.Source) (string, error) {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, kind, board_url, company_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (board_url) DO UPDATE SET
			name         = excluded.name,
			kind         = excluded.kind,
			company_name = excluded.company_name`,
		src.ID, src.Name, src.Kind, src.BoardURL, src.CompanyName, src.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("upsert source %s: %w", src.Name, err)
	}

	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM sources WHERE board_url = ?`, src.BoardURL,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert source %s: read id: %w", src.Name, err)
	}
	src.ID = id
	return id, nil
}

// HasSourceCovering reports whether any registered source already points at
// the given board URL.
func (s *SQLiteStore) HasSourceCovering(ctx context.Context, boardURL string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sources WHERE board_url = ?`, boardURL,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("source coverage check: %w", err)
	}
	return true, nil
}

// EligibleSources returns sources in scrape priority order: never-scraped
// first, then oldest last_scraped_at. A non-empty pin list restricts the set
// and bypasses rotation, preserving the pinned order by id list position.
func (s *SQLiteStore) EligibleSources(ctx context.Context, pinned []string) ([]*model.Source, error) {
	query := `SELECT id, name, kind, board_url, company_name, last_scraped_at, created_at FROM sources`
	var args []any
	if len(pinned) > 0 {
		query += ` WHERE id IN (?` + strings.Repeat(",?", len(pinned)-1) + `)`
		for _, id := range pinned {
			args = append(args, id)
		}
	} else {
		query += ` ORDER BY (last_scraped_at IS NULL) DESC, last_scraped_at ASC, created_at ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eligible sources: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*model.Source)
	var ordered []*model.Source
	for rows.Next() {
		var src model.Source
		var lastScraped sql.NullTime
		if err := rows.Scan(&src.ID, &src.Name, &src.Kind, &src.BoardURL,
			&src.CompanyName, &lastScraped, &src.CreatedAt); err != nil {
			return nil, fmt.Errorf("eligible sources: %w", err)
		}
		if lastScraped.Valid {
			t := lastScraped.Time
			src.LastScrapedAt = &t
		}
		byID[src.ID] = &src
		ordered = append(ordered, &src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eligible sources: %w", err)
	}

	if len(pinned) == 0 {
		return ordered, nil
	}
	pinnedOrder := make([]*model.Source, 0, len(pinned))
	for _, id := range pinned {
		if src, ok := byID[id]; ok {
			pinnedOrder = append(pinnedOrder, src)
		}
	}
	return pinnedOrder, nil
}

// MarkSourceScraped records when a source was last visited by a scrape run.
func (s *SQLiteStore) MarkSourceScraped(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET last_scraped_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark source %s scraped: %w", id, err)
	}
	return nil
}
