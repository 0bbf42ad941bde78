package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rjoshi44/huntd/internal/model"
)

// Ensure SQLiteStore satisfies both store contracts.
var (
	_ model.QueueStore  = (*SQLiteStore)(nil)
	_ model.RecordStore = (*SQLiteStore)(nil)
)

// SQLiteStore is the durable queue and system of record, backed by a single
// SQLite database. All commit operations run in one transaction so an item's
// state transition and its spawns land together or not at all.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	// Sequential access is the deployment target; a single connection keeps
	// writes serialized and avoids SQLITE_BUSY under the lease semantics.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS queue_items (
	id              TEXT PRIMARY KEY,
	entity_type     TEXT NOT NULL,
	status          TEXT NOT NULL,
	stage           TEXT NOT NULL DEFAULT '',
	key             TEXT NOT NULL,
	payload         BLOB,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	result_message  TEXT NOT NULL DEFAULT '',
	spawned_from    TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	claimed_at      DATETIME,
	completed_at    DATETIME,
	next_attempt_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_status_created ON queue_items(status, created_at);
CREATE INDEX IF NOT EXISTS idx_queue_key ON queue_items(key);

CREATE TABLE IF NOT EXISTS stage_history (
	key          TEXT NOT NULL,
	stage        TEXT NOT NULL,
	item_id      TEXT NOT NULL,
	completed_at DATETIME NOT NULL,
	PRIMARY KEY (key, stage)
);

CREATE TABLE IF NOT EXISTS companies (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	website       TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	job_board_url TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	UNIQUE (name, website)
);

CREATE TABLE IF NOT EXISTS sources (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	kind            TEXT NOT NULL DEFAULT '',
	board_url       TEXT NOT NULL UNIQUE,
	company_name    TEXT NOT NULL DEFAULT '',
	last_scraped_at DATETIME,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS job_matches (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	url            TEXT NOT NULL,
	company_name   TEXT NOT NULL DEFAULT '',
	company_id     TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	result_message TEXT NOT NULL DEFAULT '',
	scraped_data   TEXT NOT NULL DEFAULT '',
	match_score    INTEGER NOT NULL DEFAULT 0,
	matched_skills TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	processed_at   DATETIME,
	completed_at   DATETIME
);
`

const itemColumns = `id, entity_type, status, stage, key, payload, retry_count,
	result_message, spawned_from, created_at, updated_at, claimed_at,
	completed_at, next_attempt_at`

// Enqueue inserts a new item unless a non-terminal item already holds the
// same key, in which case the existing id and ErrDuplicatePending come back.
func (s *SQLiteStore) Enqueue(ctx context.Context, item *model.QueueItem) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: begin: %w", item.Key, err)
	}
	defer tx.Rollback()

	id, err := insertItem(ctx, tx, item)
	if err != nil {
		return id, err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("enqueue %s: commit: %w", item.Key, err)
	}
	return id, nil
}

// insertItem performs the dedup check and insert inside an open transaction.
// Shared by Enqueue and the spawn paths of the commit operations.
func insertItem(ctx context.Context, tx *sql.Tx, item *model.QueueItem) (string, error) {
	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM queue_items WHERE key = ? AND status IN (?, ?)`,
		item.Key, model.StatusPending, model.StatusProcessing,
	).Scan(&existing)
	if err == nil {
		return existing, ErrDuplicatePending
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("enqueue %s: dedup check: %w", item.Key, err)
	}

	// A new item starts a fresh run for this key, so stale stage history
	// from a previous terminal item must not block it.
	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_history WHERE key = ?`, item.Key); err != nil {
		return "", fmt.Errorf("enqueue %s: clear history: %w", item.Key, err)
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = item.CreatedAt
	}
	item.Status = model.StatusPending

	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_items (id, entity_type, status, stage, key, payload,
			retry_count, result_message, spawned_from, created_at, updated_at,
			next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.EntityType, item.Status, item.Stage, item.Key,
		[]byte(item.Payload), item.RetryCount, item.ResultMessage,
		item.SpawnedFrom, item.CreatedAt, item.UpdatedAt, item.NextAttemptAt,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: insert: %w", item.Key, err)
	}
	return item.ID, nil
}

// ClaimBatch claims up to limit eligible items. The per-item update is
// guarded on the item still being claimable, so two pollers never hold the
// same item even though selection and claim are separate statements.
func (s *SQLiteStore) ClaimBatch(ctx context.Context, limit int, leaseTimeout time.Duration) ([]*model.QueueItem, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-leaseTimeout)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM queue_items
		WHERE (status = ? AND next_attempt_at <= ?)
		   OR (status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?)
		ORDER BY created_at ASC
		LIMIT ?`,
		model.StatusPending, now, model.StatusProcessing, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim batch: select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("claim batch: scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}

	var claimed []*model.QueueItem
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx, `
			UPDATE queue_items
			SET status = ?, claimed_at = ?, updated_at = ?
			WHERE id = ?
			  AND ((status = ? AND next_attempt_at <= ?)
			    OR (status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?))`,
			model.StatusProcessing, now, now, id,
			model.StatusPending, now, model.StatusProcessing, cutoff,
		)
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", id, err)
		}
		if n == 0 {
			// Lost the race to another worker, or the item was cancelled.
			continue
		}

		item, err := s.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}

		// First claim initializes the stage to the entry of the type's tree.
		if item.Stage == "" {
			item.Stage = model.FirstStage(item.EntityType)
			if _, err := s.db.ExecContext(ctx,
				`UPDATE queue_items SET stage = ? WHERE id = ? AND stage = ''`,
				item.Stage, id,
			); err != nil {
				return nil, fmt.Errorf("claim %s: init stage: %w", id, err)
			}
		}
		claimed = append(claimed, item)
	}
	return claimed, nil
}

// CommitAdvance records the current stage as completed for the item's key,
// moves the item to next with the updated payload, and inserts spawns — all
// in one transaction. The item stays in processing for inline advancement.
func (s *SQLiteStore) CommitAdvance(ctx context.Context, item *model.QueueItem, next model.Stage, payload json.RawMessage, spawns []*model.QueueItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("advance %s: begin: %w", item.ID, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE queue_items SET stage = ?, payload = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		next, payload, now, item.ID, model.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("advance %s: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stage_history (key, stage, item_id, completed_at)
		VALUES (?, ?, ?, ?)`,
		item.Key, item.Stage, item.ID, now,
	); err != nil {
		return fmt.Errorf("advance %s: record stage %s: %w", item.ID, item.Stage, err)
	}

	if err := insertSpawns(ctx, tx, spawns); err != nil {
		return fmt.Errorf("advance %s: %w", item.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("advance %s: commit: %w", item.ID, err)
	}

	item.Stage = next
	item.Payload = payload
	item.UpdatedAt = now
	return nil
}

// CommitTerminal finalizes the item and inserts spawns atomically. On
// success the final stage is recorded in history too.
func (s *SQLiteStore) CommitTerminal(ctx context.Context, item *model.QueueItem, status model.Status, message string, spawns []*model.QueueItem) error {
	if !status.IsTerminal() {
		return fmt.Errorf("terminate %s: %s is not a terminal status", item.ID, status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("terminate %s: begin: %w", item.ID, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE queue_items
		SET status = ?, result_message = ?, retry_count = ?, payload = ?,
		    completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		status, message, item.RetryCount, []byte(item.Payload), now, now,
		item.ID, model.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("terminate %s: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}

	if status == model.StatusSuccess && item.Stage != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO stage_history (key, stage, item_id, completed_at)
			VALUES (?, ?, ?, ?)`,
			item.Key, item.Stage, item.ID, now,
		); err != nil {
			return fmt.Errorf("terminate %s: record stage: %w", item.ID, err)
		}
	}

	if err := insertSpawns(ctx, tx, spawns); err != nil {
		return fmt.Errorf("terminate %s: %w", item.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("terminate %s: commit: %w", item.ID, err)
	}

	item.Status = status
	item.ResultMessage = message
	item.CompletedAt = &now
	item.UpdatedAt = now
	return nil
}

// CommitRetry re-queues the item at its current stage with a backoff gate.
func (s *SQLiteStore) CommitRetry(ctx context.Context, item *model.QueueItem, retryCount int, reason string, nextAttempt time.Time) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = ?, claimed_at = NULL, retry_count = ?, result_message = ?,
		    next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		model.StatusPending, retryCount, reason, nextAttempt.UTC(), now,
		item.ID, model.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("retry %s: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}

	item.Status = model.StatusPending
	item.RetryCount = retryCount
	item.ResultMessage = reason
	item.NextAttemptAt = nextAttempt.UTC()
	item.ClaimedAt = nil
	item.UpdatedAt = now
	return nil
}

// Cancel forces a non-terminal item to failed. Valid at any stage, including
// processing: the holding worker's next commit returns ErrStale.
func (s *SQLiteStore) Cancel(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = ?, result_message = 'cancelled', completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		model.StatusFailed, now, now, id, model.StatusPending, model.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetItem(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyTerminal
	}
	return nil
}

// insertSpawns inserts spawned items inside an open transaction, skipping any
// whose key already has a live item.
func insertSpawns(ctx context.Context, tx *sql.Tx, spawns []*model.QueueItem) error {
	for _, sp := range spawns {
		if _, err := insertItem(ctx, tx, sp); err != nil {
			if err == ErrDuplicatePending {
				continue
			}
			return fmt.Errorf("spawn %s: %w", sp.Key, err)
		}
	}
	return nil
}

// GetItem returns the item with the given id, or ErrNotFound.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*model.QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

// ListItems returns items newest-first, optionally filtered by status and type.
func (s *SQLiteStore) ListItems(ctx context.Context, status model.Status, entityType model.EntityType, limit int) ([]*model.QueueItem, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*model.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Stats returns item counts grouped by status.
func (s *SQLiteStore) Stats(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[model.Status]int)
	for rows.Next() {
		var status model.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("queue stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// HasPendingScrape reports whether a non-terminal scrape item exists.
func (s *SQLiteStore) HasPendingScrape(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM queue_items WHERE entity_type = ? AND status IN (?, ?)`,
		model.EntityScrape, model.StatusPending, model.StatusProcessing,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pending scrape check: %w", err)
	}
	return true, nil
}

// CompletedStages returns the stages completed for a key, in completion order.
func (s *SQLiteStore) CompletedStages(ctx context.Context, key string) ([]model.Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage FROM stage_history WHERE key = ? ORDER BY completed_at ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("completed stages for %s: %w", key, err)
	}
	defer rows.Close()

	var stages []model.Stage
	for rows.Next() {
		var st model.Stage
		if err := rows.Scan(&st); err != nil {
			return nil, fmt.Errorf("completed stages for %s: %w", key, err)
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.QueueItem, error) {
	var item model.QueueItem
	var payload []byte
	var claimedAt, completedAt sql.NullTime
	err := row.Scan(
		&item.ID, &item.EntityType, &item.Status, &item.Stage, &item.Key,
		&payload, &item.RetryCount, &item.ResultMessage, &item.SpawnedFrom,
		&item.CreatedAt, &item.UpdatedAt, &claimedAt, &completedAt,
		&item.NextAttemptAt,
	)
	if err != nil {
		return nil, err
	}
	item.Payload = payload
	if claimedAt.Valid {
		t := claimedAt.Time
		item.ClaimedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}
	return &item, nil
}
