package model

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// EntityType identifies what kind of work a queue item represents.
type EntityType string

const (
	EntityJob             EntityType = "job"
	EntityCompany         EntityType = "company"
	EntitySourceDiscovery EntityType = "sourceDiscovery"
	EntityScrape          EntityType = "scrape"
)

// Status is the queue item lifecycle state.
//
// Lifecycle:
//
//	pending → processing → success
//	                     ↘ failed | filtered | skipped
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusFiltered   Status = "filtered"
	StatusSkipped    Status = "skipped"
)

// IsTerminal returns true once an item can never change state again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusFiltered, StatusSkipped:
		return true
	default:
		return false
	}
}

// Stage is one step in an entity type's fixed processing order.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageAnalyze Stage = "analyze"
	StageSave    Stage = "save"
	StageScrape  Stage = "scrape"
	StageFilter  Stage = "filter"
)

// stageOrders holds the fixed decision tree per entity type. Adding a stage
// is a data change here plus a handler registration, nothing more.
var stageOrders = map[EntityType][]Stage{
	EntityCompany:         {StageFetch, StageExtract, StageAnalyze, StageSave},
	EntityJob:             {StageScrape, StageFilter, StageAnalyze, StageSave},
	EntitySourceDiscovery: {StageFetch, StageExtract, StageSave},
	EntityScrape:          {StageScrape},
}

// StageOrder returns the fixed stage sequence for an entity type.
func StageOrder(t EntityType) []Stage {
	return stageOrders[t]
}

// FirstStage returns the entry stage for an entity type.
func FirstStage(t EntityType) Stage {
	order := stageOrders[t]
	if len(order) == 0 {
		return ""
	}
	return order[0]
}

// NextStage returns the stage after s for the given type, or false when s is
// the last stage or unknown.
func NextStage(t EntityType, s Stage) (Stage, bool) {
	order := stageOrders[t]
	for i, st := range order {
		if st == s && i+1 < len(order) {
			return order[i+1], true
		}
	}
	return "", false
}

// QueueItem is the unit of work flowing through the pipeline.
type QueueItem struct {
	ID            string
	EntityType    EntityType
	Status        Status
	Stage         Stage // empty until first claimed
	Key           string
	Payload       json.RawMessage
	RetryCount    int
	ResultMessage string
	SpawnedFrom   string // id of the item whose stage produced this one
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClaimedAt     *time.Time
	CompletedAt   *time.Time
	NextAttemptAt time.Time // backoff gate; items are ineligible before this
}

// CompanyKey derives the dedup key for a company from its name and website.
func CompanyKey(name, website string) string {
	return "company:" + strings.ToLower(strings.TrimSpace(name)) + ":" + normalizeURL(website)
}

// JobKey derives the dedup key for a job posting from its URL.
func JobKey(jobURL string) string {
	return "job:" + normalizeURL(jobURL)
}

// DiscoveryKey derives the dedup key for a source-discovery request.
func DiscoveryKey(boardURL string) string {
	return "source:" + normalizeURL(boardURL)
}

// ScrapeKey is the system-wide key for scrape items; at most one may be
// pending at a time.
func ScrapeKey() string {
	return "scrape"
}

// normalizeURL lowercases the host, drops scheme, query and fragment, and
// trims a trailing slash so equivalent URLs dedup to the same key.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}
	return strings.ToLower(u.Host) + strings.TrimSuffix(u.Path, "/")
}

// QueueStore is the durable work queue. All commit operations are atomic per
// item: the state transition, any spawned items, and stage history land in
// one transaction or not at all.
type QueueStore interface {
	// Enqueue inserts item. If a non-terminal item already exists for the
	// same key it returns that item's id and ErrDuplicatePending.
	Enqueue(ctx context.Context, item *QueueItem) (string, error)

	// ClaimBatch claims up to limit eligible items: pending ones in FIFO
	// order whose NextAttemptAt has passed, plus processing items whose
	// lease (ClaimedAt + timeout) has expired. The claim is a guarded
	// update, so two concurrent workers never claim the same item.
	ClaimBatch(ctx context.Context, limit int, leaseTimeout time.Duration) ([]*QueueItem, error)

	// CommitAdvance records completion of the item's current stage, moves it
	// to next with the updated payload, and inserts spawns (deduplicated
	// against live items by key).
	CommitAdvance(ctx context.Context, item *QueueItem, next Stage, payload json.RawMessage, spawns []*QueueItem) error

	// CommitTerminal finalizes the item with a terminal status and message,
	// inserting spawns in the same transaction.
	CommitTerminal(ctx context.Context, item *QueueItem, status Status, message string, spawns []*QueueItem) error

	// CommitRetry re-queues the item at its current stage with the given
	// retry count and backoff deadline.
	CommitRetry(ctx context.Context, item *QueueItem, retryCount int, reason string, nextAttempt time.Time) error

	// Cancel forces a non-terminal item to failed with message "cancelled".
	Cancel(ctx context.Context, id string) error

	GetItem(ctx context.Context, id string) (*QueueItem, error)
	ListItems(ctx context.Context, status Status, entityType EntityType, limit int) ([]*QueueItem, error)
	Stats(ctx context.Context) (map[Status]int, error)
	HasPendingScrape(ctx context.Context) (bool, error)

	// CompletedStages returns the stages recorded as completed for a key,
	// in completion order. Used for loop prevention.
	CompletedStages(ctx context.Context, key string) ([]Stage, error)
}
