package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rjoshi44/huntd/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "huntd.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func jobItem(url string) *model.QueueItem {
	payload, _ := model.EncodePayload(model.JobPayload{URL: url, CompanyName: "acme", Source: "test"})
	return &model.QueueItem{
		EntityType: model.EntityJob,
		Key:        model.JobKey(url),
		Payload:    payload,
	}
}

func TestEnqueue_DuplicatePending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Enqueue(ctx, jobItem("https://example.com/jobs/1"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Same key, equivalent URL spelled differently.
	id2, err := s.Enqueue(ctx, jobItem("https://EXAMPLE.com/jobs/1/"))
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("Enqueue duplicate: err = %v, want ErrDuplicatePending", err)
	}
	if id2 != id1 {
		t.Errorf("duplicate enqueue returned id %s, want existing %s", id2, id1)
	}
}

func TestEnqueue_AfterTerminalAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, jobItem("https://example.com/jobs/2")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := s.ClaimBatch(ctx, 1, time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimBatch: %v (n=%d)", err, len(claimed))
	}
	if err := s.CommitTerminal(ctx, claimed[0], model.StatusFailed, "boom", nil); err != nil {
		t.Fatalf("CommitTerminal: %v", err)
	}

	// A terminal item no longer blocks its key.
	if _, err := s.Enqueue(ctx, jobItem("https://example.com/jobs/2")); err != nil {
		t.Fatalf("Enqueue after terminal: %v", err)
	}
}

func TestClaimBatch_FIFOAndStageInit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := jobItem("https://example.com/jobs/a")
	first.CreatedAt = time.Now().UTC().Add(-2 * time.Minute)
	second := jobItem("https://example.com/jobs/b")
	second.CreatedAt = time.Now().UTC().Add(-1 * time.Minute)

	if _, err := s.Enqueue(ctx, second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enqueue(ctx, first); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.ClaimBatch(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d items, want 2", len(claimed))
	}
	if claimed[0].ID != first.ID {
		t.Errorf("claim order not FIFO: got %s first", claimed[0].ID)
	}
	if claimed[0].Stage != model.StageScrape {
		t.Errorf("first claim stage = %s, want scrape", claimed[0].Stage)
	}
	if claimed[0].Status != model.StatusProcessing || claimed[0].ClaimedAt == nil {
		t.Error("claimed item not marked processing with claimed_at")
	}

	// A second poll within the lease window claims nothing.
	again, err := s.ClaimBatch(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("reclaimed %d items inside lease window, want 0", len(again))
	}
}

func TestClaimBatch_LeaseReclaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, jobItem("https://example.com/jobs/stuck")); err != nil {
		t.Fatal(err)
	}
	claimed, err := s.ClaimBatch(ctx, 1, time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimBatch: %v (n=%d)", err, len(claimed))
	}

	// With a zero lease the processing item is immediately reclaimable.
	reclaimed, err := s.ClaimBatch(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ClaimBatch reclaim: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != claimed[0].ID {
		t.Fatalf("expected the stuck item to be reclaimed, got %v", reclaimed)
	}

	// The original holder's commit must now fail.
	// (The reclaimer holds it; the first worker's view is stale once the
	// reclaimer commits.)
	if err := s.CommitTerminal(ctx, reclaimed[0], model.StatusSuccess, "done", nil); err != nil {
		t.Fatalf("CommitTerminal by reclaimer: %v", err)
	}
	err = s.CommitTerminal(ctx, claimed[0], model.StatusSuccess, "done twice", nil)
	if !errors.Is(err, ErrStale) {
		t.Errorf("stale commit err = %v, want ErrStale", err)
	}
}

func TestCommitAdvance_RecordsHistoryAndSpawns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := jobItem("https://example.com/jobs/adv")
	if _, err := s.Enqueue(ctx, item); err != nil {
		t.Fatal(err)
	}
	claimed, _ := s.ClaimBatch(ctx, 1, time.Minute)
	it := claimed[0]

	spawnPayload, _ := model.EncodePayload(model.DiscoveryPayload{BoardURL: "https://boards.example.com/acme"})
	spawn := &model.QueueItem{
		EntityType:  model.EntitySourceDiscovery,
		Key:         model.DiscoveryKey("https://boards.example.com/acme"),
		Payload:     spawnPayload,
		SpawnedFrom: it.ID,
	}

	if err := s.CommitAdvance(ctx, it, model.StageFilter, it.Payload, []*model.QueueItem{spawn}); err != nil {
		t.Fatalf("CommitAdvance: %v", err)
	}

	stages, err := s.CompletedStages(ctx, it.Key)
	if err != nil {
		t.Fatalf("CompletedStages: %v", err)
	}
	if len(stages) != 1 || stages[0] != model.StageScrape {
		t.Errorf("CompletedStages = %v, want [scrape]", stages)
	}

	got, err := s.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != model.StageFilter {
		t.Errorf("stage = %s, want filter", got.Stage)
	}

	spawned, err := s.GetItem(ctx, spawn.ID)
	if err != nil {
		t.Fatalf("spawned item not inserted: %v", err)
	}
	if spawned.Status != model.StatusPending || spawned.SpawnedFrom != it.ID {
		t.Errorf("spawned item = %+v", spawned)
	}
	if !spawned.CreatedAt.After(it.CreatedAt) {
		t.Error("spawned item CreatedAt not after parent's")
	}
}

func TestCommitAdvance_SpawnDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	existing := &model.QueueItem{
		EntityType: model.EntitySourceDiscovery,
		Key:        model.DiscoveryKey("https://boards.example.com/dup"),
	}
	if _, err := s.Enqueue(ctx, existing); err != nil {
		t.Fatal(err)
	}

	item := jobItem("https://example.com/jobs/dup-spawn")
	if _, err := s.Enqueue(ctx, item); err != nil {
		t.Fatal(err)
	}
	claimed, _ := s.ClaimBatch(ctx, 10, time.Minute)
	var it *model.QueueItem
	for _, c := range claimed {
		if c.EntityType == model.EntityJob {
			it = c
		}
	}

	spawn := &model.QueueItem{
		EntityType: model.EntitySourceDiscovery,
		Key:        model.DiscoveryKey("https://boards.example.com/dup"),
	}
	if err := s.CommitAdvance(ctx, it, model.StageFilter, it.Payload, []*model.QueueItem{spawn}); err != nil {
		t.Fatalf("CommitAdvance: %v", err)
	}

	items, err := s.ListItems(ctx, "", model.EntitySourceDiscovery, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("found %d discovery items, want 1 (spawn deduplicated)", len(items))
	}
}

func TestCommitRetry_BackoffGatesClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, jobItem("https://example.com/jobs/retry")); err != nil {
		t.Fatal(err)
	}
	claimed, _ := s.ClaimBatch(ctx, 1, time.Minute)
	it := claimed[0]

	future := time.Now().UTC().Add(time.Hour)
	if err := s.CommitRetry(ctx, it, 1, "transient: oracle timeout", future); err != nil {
		t.Fatalf("CommitRetry: %v", err)
	}

	got, _ := s.GetItem(ctx, it.ID)
	if got.Status != model.StatusPending || got.RetryCount != 1 {
		t.Errorf("after retry: status=%s retry_count=%d", got.Status, got.RetryCount)
	}
	if got.ClaimedAt != nil {
		t.Error("claimed_at not cleared on retry")
	}

	// Not eligible until the backoff deadline passes.
	batch, err := s.ClaimBatch(ctx, 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 0 {
		t.Errorf("claimed %d items before next_attempt_at, want 0", len(batch))
	}
}

func TestCancel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := jobItem("https://example.com/jobs/cancel")
	if _, err := s.Enqueue(ctx, item); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(ctx, item.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, _ := s.GetItem(ctx, item.ID)
	if got.Status != model.StatusFailed || got.ResultMessage != "cancelled" {
		t.Errorf("after cancel: status=%s message=%q", got.Status, got.ResultMessage)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set on cancel")
	}

	if err := s.Cancel(ctx, item.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("second Cancel err = %v, want ErrAlreadyTerminal", err)
	}
	if err := s.Cancel(ctx, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel missing err = %v, want ErrNotFound", err)
	}
}

func TestCancel_DuringProcessingStalesCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := jobItem("https://example.com/jobs/cancel-mid")
	if _, err := s.Enqueue(ctx, item); err != nil {
		t.Fatal(err)
	}
	claimed, _ := s.ClaimBatch(ctx, 1, time.Minute)
	it := claimed[0]

	if err := s.Cancel(ctx, it.ID); err != nil {
		t.Fatalf("Cancel during processing: %v", err)
	}
	err := s.CommitAdvance(ctx, it, model.StageFilter, it.Payload, nil)
	if !errors.Is(err, ErrStale) {
		t.Errorf("commit after cancel err = %v, want ErrStale", err)
	}
}

func TestStatsAndHasPendingScrape(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, jobItem("https://example.com/jobs/s1")); err != nil {
		t.Fatal(err)
	}
	payload, _ := model.EncodePayload(model.ScrapePayload{TargetMatches: 5})
	scrape := &model.QueueItem{EntityType: model.EntityScrape, Key: model.ScrapeKey(), Payload: payload}
	if _, err := s.Enqueue(ctx, scrape); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats[model.StatusPending] != 2 {
		t.Errorf("pending count = %d, want 2", stats[model.StatusPending])
	}

	pending, err := s.HasPendingScrape(ctx)
	if err != nil || !pending {
		t.Errorf("HasPendingScrape = %v, %v; want true", pending, err)
	}

	// Second scrape intake dedups against the singleton key.
	if _, err := s.Enqueue(ctx, &model.QueueItem{EntityType: model.EntityScrape, Key: model.ScrapeKey()}); !errors.Is(err, ErrDuplicatePending) {
		t.Errorf("second scrape enqueue err = %v, want ErrDuplicatePending", err)
	}
}

func TestEligibleSources_Rotation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC().Add(-1 * time.Hour)

	a := &model.Source{Name: "a", BoardURL: "https://boards.example.com/a"}
	b := &model.Source{Name: "b", BoardURL: "https://boards.example.com/b"}
	c := &model.Source{Name: "c", BoardURL: "https://boards.example.com/c"}
	for _, src := range []*model.Source{a, b, c} {
		if _, err := s.UpsertSource(ctx, src); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.MarkSourceScraped(ctx, a.ID, recent); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSourceScraped(ctx, b.ID, old); err != nil {
		t.Fatal(err)
	}

	got, err := s.EligibleSources(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d sources, want 3", len(got))
	}
	// Never-scraped first, then oldest scrape time.
	if got[0].ID != c.ID || got[1].ID != b.ID || got[2].ID != a.ID {
		t.Errorf("rotation order = %s, %s, %s; want c, b, a", got[0].Name, got[1].Name, got[2].Name)
	}

	pinned, err := s.EligibleSources(ctx, []string{b.ID, a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(pinned) != 2 || pinned[0].ID != b.ID || pinned[1].ID != a.ID {
		t.Errorf("pinned order wrong: %v", pinned)
	}
}

func TestSaveCompany_UpsertKeepsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Acme", Website: "https://acme.com"}
	id1, err := s.SaveCompany(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	c2 := &model.Company{Name: "Acme", Website: "https://acme.com", Description: "updated"}
	id2, err := s.SaveCompany(ctx, c2)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("upsert changed company id: %s → %s", id1, id2)
	}
}

func TestSaveJobMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	m := &model.JobMatch{
		Status:        model.StatusSuccess,
		URL:           "https://example.com/jobs/99",
		CompanyName:   "acme",
		Source:        "greenhouse",
		ResultMessage: "saved with score 91",
		MatchScore:    91,
		MatchedSkills: []string{"go", "sqlite"},
		CompletedAt:   &now,
	}
	if err := s.SaveJobMatch(ctx, m); err != nil {
		t.Fatalf("SaveJobMatch: %v", err)
	}
	n, err := s.CountJobMatches(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountJobMatches = %d, %v; want 1", n, err)
	}
}
