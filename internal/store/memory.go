package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rjoshi44/huntd/internal/model"
)

var (
	_ model.QueueStore  = (*MemoryStore)(nil)
	_ model.RecordStore = (*MemoryStore)(nil)
)

// MemoryStore is a map-backed implementation of the queue and record stores
// with the same contract as SQLiteStore. Used by tests and dry runs; nothing
// survives process exit.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string]*model.QueueItem
	seq       map[string]int // insertion order, breaks CreatedAt ties
	nextSeq   int
	history   map[string][]model.Stage
	companies map[string]*model.Company // keyed by name+website
	matches   []*model.JobMatch
	sources   []*model.Source
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]*model.QueueItem),
		seq:       make(map[string]int),
		history:   make(map[string][]model.Stage),
		companies: make(map[string]*model.Company),
	}
}

func (s *MemoryStore) liveByKey(key string) *model.QueueItem {
	for _, it := range s.items {
		if it.Key == key && !it.Status.IsTerminal() {
			return it
		}
	}
	return nil
}

func (s *MemoryStore) insertLocked(item *model.QueueItem) (string, error) {
	if live := s.liveByKey(item.Key); live != nil {
		return live.ID, ErrDuplicatePending
	}
	delete(s.history, item.Key)

	cp := *item
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.NextAttemptAt.IsZero() {
		cp.NextAttemptAt = cp.CreatedAt
	}
	cp.Status = model.StatusPending
	s.items[cp.ID] = &cp
	s.seq[cp.ID] = s.nextSeq
	s.nextSeq++
	item.ID = cp.ID
	return cp.ID, nil
}

func (s *MemoryStore) Enqueue(_ context.Context, item *model.QueueItem) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(item)
}

func (s *MemoryStore) ClaimBatch(_ context.Context, limit int, leaseTimeout time.Duration) ([]*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-leaseTimeout)

	var eligible []*model.QueueItem
	for _, it := range s.items {
		switch {
		case it.Status == model.StatusPending && !it.NextAttemptAt.After(now):
			eligible = append(eligible, it)
		case it.Status == model.StatusProcessing && it.ClaimedAt != nil && !it.ClaimedAt.After(cutoff):
			eligible = append(eligible, it)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return s.seq[eligible[i].ID] < s.seq[eligible[j].ID]
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]*model.QueueItem, 0, len(eligible))
	for _, it := range eligible {
		it.Status = model.StatusProcessing
		t := now
		it.ClaimedAt = &t
		it.UpdatedAt = now
		if it.Stage == "" {
			it.Stage = model.FirstStage(it.EntityType)
		}
		cp := *it
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *MemoryStore) CommitAdvance(_ context.Context, item *model.QueueItem, next model.Stage, payload json.RawMessage, spawns []*model.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok || stored.Status != model.StatusProcessing {
		return ErrStale
	}
	now := time.Now().UTC()
	stored.Stage = next
	stored.Payload = payload
	stored.UpdatedAt = now
	s.history[item.Key] = append(s.history[item.Key], item.Stage)
	s.insertSpawnsLocked(spawns)

	item.Stage = next
	item.Payload = payload
	item.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CommitTerminal(_ context.Context, item *model.QueueItem, status model.Status, message string, spawns []*model.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok || stored.Status != model.StatusProcessing {
		return ErrStale
	}
	now := time.Now().UTC()
	stored.Status = status
	stored.ResultMessage = message
	stored.RetryCount = item.RetryCount
	stored.CompletedAt = &now
	stored.UpdatedAt = now
	stored.Payload = item.Payload
	if status == model.StatusSuccess && item.Stage != "" {
		s.history[item.Key] = append(s.history[item.Key], item.Stage)
	}
	s.insertSpawnsLocked(spawns)

	item.Status = status
	item.ResultMessage = message
	item.CompletedAt = &now
	return nil
}

func (s *MemoryStore) CommitRetry(_ context.Context, item *model.QueueItem, retryCount int, reason string, nextAttempt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok || stored.Status != model.StatusProcessing {
		return ErrStale
	}
	now := time.Now().UTC()
	stored.Status = model.StatusPending
	stored.ClaimedAt = nil
	stored.RetryCount = retryCount
	stored.ResultMessage = reason
	stored.NextAttemptAt = nextAttempt.UTC()
	stored.UpdatedAt = now

	item.Status = model.StatusPending
	item.RetryCount = retryCount
	item.ClaimedAt = nil
	item.NextAttemptAt = nextAttempt.UTC()
	return nil
}

func (s *MemoryStore) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	now := time.Now().UTC()
	stored.Status = model.StatusFailed
	stored.ResultMessage = "cancelled"
	stored.CompletedAt = &now
	stored.UpdatedAt = now
	return nil
}

func (s *MemoryStore) insertSpawnsLocked(spawns []*model.QueueItem) {
	for _, sp := range spawns {
		s.insertLocked(sp) // duplicate keys are skipped by contract
	}
}

func (s *MemoryStore) GetItem(_ context.Context, id string) (*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *stored
	return &cp, nil
}

func (s *MemoryStore) ListItems(_ context.Context, status model.Status, entityType model.EntityType, limit int) ([]*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.QueueItem
	for _, it := range s.items {
		if status != "" && it.Status != status {
			continue
		}
		if entityType != "" && it.EntityType != entityType {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return s.seq[out[i].ID] > s.seq[out[j].ID]
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) (map[model.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[model.Status]int)
	for _, it := range s.items {
		stats[it.Status]++
	}
	return stats, nil
}

func (s *MemoryStore) HasPendingScrape(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if it.EntityType == model.EntityScrape && !it.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CompletedStages(_ context.Context, key string) ([]model.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Stage, len(s.history[key]))
	copy(out, s.history[key])
	return out, nil
}

// Record-store half.

func (s *MemoryStore) SaveCompany(_ context.Context, c *model.Company) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.Name + "|" + c.Website
	if existing, ok := s.companies[key]; ok {
		existing.Source = c.Source
		existing.Description = c.Description
		existing.JobBoardURL = c.JobBoardURL
		existing.UpdatedAt = time.Now().UTC()
		c.ID = existing.ID
		return existing.ID, nil
	}
	cp := *c
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.companies[key] = &cp
	c.ID = cp.ID
	return cp.ID, nil
}

// Companies returns saved company rows; test helper.
func (s *MemoryStore) Companies() []*model.Company {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Company, 0, len(s.companies))
	for _, c := range s.companies {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

func (s *MemoryStore) SaveJobMatch(_ context.Context, m *model.JobMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	s.matches = append(s.matches, &cp)
	return nil
}

// JobMatches returns saved match records; test helper.
func (s *MemoryStore) JobMatches() []*model.JobMatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.JobMatch, len(s.matches))
	copy(out, s.matches)
	return out
}

func (s *MemoryStore) UpsertSource(_ context.Context, src *model.Source) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sources {
		if existing.BoardURL == src.BoardURL {
			existing.Name = src.Name
			existing.Kind = src.Kind
			existing.CompanyName = src.CompanyName
			src.ID = existing.ID
			return existing.ID, nil
		}
	}
	cp := *src
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.sources = append(s.sources, &cp)
	src.ID = cp.ID
	return cp.ID, nil
}

func (s *MemoryStore) HasSourceCovering(_ context.Context, boardURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, src := range s.sources {
		if src.BoardURL == boardURL {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) EligibleSources(_ context.Context, pinned []string) ([]*model.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(pinned) > 0 {
		var out []*model.Source
		for _, id := range pinned {
			for _, src := range s.sources {
				if src.ID == id {
					cp := *src
					out = append(out, &cp)
				}
			}
		}
		return out, nil
	}

	out := make([]*model.Source, 0, len(s.sources))
	for _, src := range s.sources {
		cp := *src
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastScrapedAt, out[j].LastScrapedAt
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

func (s *MemoryStore) MarkSourceScraped(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, src := range s.sources {
		if src.ID == id {
			t := at.UTC()
			src.LastScrapedAt = &t
			return nil
		}
	}
	return ErrNotFound
}
