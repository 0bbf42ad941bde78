package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rjoshi44/huntd/internal/ai"
	"github.com/rjoshi44/huntd/internal/config"
	"github.com/rjoshi44/huntd/internal/fetch"
	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/ratelimit"
	"github.com/rjoshi44/huntd/internal/store"
)

const goPosting = `<html>
<head>
  <title>Senior Go Engineer at Acme</title>
  <meta name="description" content="Build distributed systems in Go. Remote friendly.">
</head>
<body><p>Acme is hiring.</p></body>
</html>`

type stubOracle struct {
	result *model.OracleResult
	err    error
	calls  int
}

func (o *stubOracle) Score(_ context.Context, _ ai.ScoreRequest) (*model.OracleResult, error) {
	o.calls++
	return o.result, o.err
}

type captureNotifier struct {
	matches []model.JobMatch
}

func (n *captureNotifier) NotifyMatch(m model.JobMatch) error {
	n.matches = append(n.matches, m)
	return nil
}

func jobConfig() *config.Config {
	cfg := testConfig()
	cfg.AI = config.AIConfig{Enabled: true, Model: "gpt-4o-mini", APIKey: "test", Profile: "Go backend engineer"}
	return cfg
}

func newJobDispatcher(s *store.MemoryStore, client *http.Client, oracle Oracle, notifier model.MatchNotifier) *Dispatcher {
	d := NewDispatcher(s, testLogger())
	RegisterHandlers(d, Deps{
		Fetcher:  fetch.NewFetcher(client, ratelimit.NewHostLimiter(0), "huntd-test"),
		Oracle:   oracle,
		Records:  s,
		Notifier: notifier,
		Logger:   testLogger(),
	})
	return d
}

func postingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goPosting))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJobSavedAndNotified(t *testing.T) {
	srv := postingServer(t)
	s := store.NewMemoryStore()
	oracle := &stubOracle{result: &model.OracleResult{
		MatchScore:    90,
		MatchedSkills: []string{"go", "distributed systems"},
		Summary:       "strong fit",
	}}
	notifier := &captureNotifier{}
	d := newJobDispatcher(s, srv.Client(), oracle, notifier)

	cfg := jobConfig()
	cfg.Scoring.Adjustments = []config.AdjustmentRule{
		{Category: "remote", Reason: "remote role", Keywords: []string{"remote"}, Points: 10},
	}

	item, _ := NewJobItem(model.JobPayload{URL: srv.URL + "/jobs/1", CompanyName: "Acme", Source: "manual"})
	claimed := claimOne(t, s, item)
	if err := d.Dispatch(context.Background(), claimed, NewEnv(cfg)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	final, _ := s.GetItem(context.Background(), claimed.ID)
	if final.Status != model.StatusSuccess {
		t.Fatalf("item = %s %q", final.Status, final.ResultMessage)
	}
	if !strings.Contains(final.ResultMessage, "score 100") {
		t.Errorf("message = %q, want final score 100 (90 + 10 remote)", final.ResultMessage)
	}

	matches := s.JobMatches()
	if len(matches) != 1 {
		t.Fatalf("saved %d matches, want 1", len(matches))
	}
	m := matches[0]
	if m.MatchScore != 100 || m.CompanyName != "Acme" {
		t.Errorf("match = %+v", m)
	}
	if len(notifier.matches) != 1 || notifier.matches[0].MatchScore != 100 {
		t.Errorf("notified %d matches: %+v", len(notifier.matches), notifier.matches)
	}
}

func TestJobBelowThresholdSkipped(t *testing.T) {
	srv := postingServer(t)
	s := store.NewMemoryStore()
	oracle := &stubOracle{result: &model.OracleResult{MatchScore: 72}}
	d := newJobDispatcher(s, srv.Client(), oracle, nil)

	item, _ := NewJobItem(model.JobPayload{URL: srv.URL + "/jobs/1", CompanyName: "Acme", Source: "manual"})
	claimed := claimOne(t, s, item)
	if err := d.Dispatch(context.Background(), claimed, NewEnv(jobConfig())); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	final, _ := s.GetItem(context.Background(), claimed.ID)
	if final.Status != model.StatusSkipped {
		t.Fatalf("status = %s, want skipped", final.Status)
	}
	if final.ResultMessage != "below threshold: 72" {
		t.Errorf("message = %q", final.ResultMessage)
	}
	if len(s.JobMatches()) != 0 {
		t.Error("skipped job was saved")
	}

	// The score survives on the payload for later inspection.
	var p model.JobPayload
	if err := model.DecodePayload(final.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Score == nil || p.Score.FinalScore != 72 || p.Score.Threshold != 80 {
		t.Errorf("payload score = %+v", p.Score)
	}
}

func TestJobStopListKeywordFiltered(t *testing.T) {
	srv := postingServer(t)
	s := store.NewMemoryStore()
	oracle := &stubOracle{result: &model.OracleResult{MatchScore: 95}}
	d := newJobDispatcher(s, srv.Client(), oracle, nil)

	cfg := jobConfig()
	cfg.StopList = config.StopListConfig{Keywords: []string{"distributed systems"}}

	item, _ := NewJobItem(model.JobPayload{URL: srv.URL + "/jobs/1", CompanyName: "Acme", Source: "manual"})
	claimed := claimOne(t, s, item)
	if err := d.Dispatch(context.Background(), claimed, NewEnv(cfg)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	final, _ := s.GetItem(context.Background(), claimed.ID)
	if final.Status != model.StatusFiltered {
		t.Fatalf("status = %s, want filtered", final.Status)
	}
	if !strings.Contains(final.ResultMessage, `"distributed systems"`) {
		t.Errorf("message = %q, want the matched keyword cited", final.ResultMessage)
	}
	if oracle.calls != 0 {
		t.Errorf("oracle called %d times for a filtered job", oracle.calls)
	}
}

func TestJobOracleTransientFailureRetries(t *testing.T) {
	srv := postingServer(t)
	s := store.NewMemoryStore()
	oracle := &stubOracle{err: &model.TransientError{Reason: "oracle provider unavailable"}}
	d := newJobDispatcher(s, srv.Client(), oracle, nil)

	item, _ := NewJobItem(model.JobPayload{URL: srv.URL + "/jobs/1", CompanyName: "Acme", Source: "manual"})
	claimed := claimOne(t, s, item)
	if err := d.Dispatch(context.Background(), claimed, NewEnv(jobConfig())); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	stored, _ := s.GetItem(context.Background(), claimed.ID)
	if stored.Status != model.StatusPending || stored.RetryCount != 1 {
		t.Errorf("item = %s retries=%d, want pending with one retry", stored.Status, stored.RetryCount)
	}
	if !strings.Contains(stored.ResultMessage, "oracle provider unavailable") {
		t.Errorf("message = %q", stored.ResultMessage)
	}
}

func TestJobOracleStructuralFailureFails(t *testing.T) {
	srv := postingServer(t)
	s := store.NewMemoryStore()
	oracle := &stubOracle{err: &model.StructuralError{Reason: "invalid oracle response"}}
	d := newJobDispatcher(s, srv.Client(), oracle, nil)

	item, _ := NewJobItem(model.JobPayload{URL: srv.URL + "/jobs/1", CompanyName: "Acme", Source: "manual"})
	claimed := claimOne(t, s, item)
	if err := d.Dispatch(context.Background(), claimed, NewEnv(jobConfig())); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	stored, _ := s.GetItem(context.Background(), claimed.ID)
	if stored.Status != model.StatusFailed {
		t.Errorf("status = %s, want failed without retry", stored.Status)
	}
}

func TestJobAIDisabledUsesRuleScore(t *testing.T) {
	srv := postingServer(t)
	s := store.NewMemoryStore()
	oracle := &stubOracle{result: &model.OracleResult{MatchScore: 99}}
	d := newJobDispatcher(s, srv.Client(), oracle, nil)

	cfg := testConfig() // AI disabled
	cfg.Scoring.Adjustments = []config.AdjustmentRule{
		{Category: "tech-stack", Reason: "works in Go", Keywords: []string{"go"}, Points: 40},
	}

	item, _ := NewJobItem(model.JobPayload{URL: srv.URL + "/jobs/1", CompanyName: "Acme", Source: "manual"})
	claimed := claimOne(t, s, item)
	if err := d.Dispatch(context.Background(), claimed, NewEnv(cfg)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	final, _ := s.GetItem(context.Background(), claimed.ID)
	if final.Status != model.StatusSuccess {
		t.Fatalf("item = %s %q", final.Status, final.ResultMessage)
	}
	if !strings.Contains(final.ResultMessage, "score 90") {
		t.Errorf("message = %q, want rule score 90 (base 50 + 40)", final.ResultMessage)
	}
	if oracle.calls != 0 {
		t.Errorf("oracle called %d times with AI disabled", oracle.calls)
	}
}
