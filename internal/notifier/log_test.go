package notifier

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/rjoshi44/huntd/internal/model"
)

func TestLogNotifier_NotifyMatch(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	err := n.NotifyMatch(model.JobMatch{
		CompanyName:   "Acme",
		URL:           "https://example.com/jobs/1",
		MatchScore:    92,
		MatchedSkills: []string{"go", "sqlite"},
		Source:        "scraper",
	})
	if err != nil {
		t.Fatalf("NotifyMatch() = %v, want nil", err)
	}

	out := buf.String()
	for _, want := range []string{"Acme", "score=92", "https://example.com/jobs/1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
