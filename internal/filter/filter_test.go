package filter

import (
	"strings"
	"testing"

	"github.com/rjoshi44/huntd/internal/config"
)

func testEngine() *Engine {
	return NewEngine(
		config.StopListConfig{
			Companies: []string{"Evil Corp"},
			Keywords:  []string{"blockchain", "unpaid"},
			Domains:   []string{"spam.example"},
		},
		config.ScoringConfig{
			BaseScore:     50,
			MinMatchScore: 80,
			Adjustments: []config.AdjustmentRule{
				{Category: "tech-stack", Reason: "mentions preferred stack", Keywords: []string{"go", "kubernetes"}, Points: 10},
				{Category: "remote", Reason: "remote-eligible", Keywords: []string{"remote"}, Points: 15},
				{Category: "seniority", Reason: "principal-level role", Keywords: []string{"principal"}, Points: -20},
			},
		},
	)
}

func TestEvaluate_StopListCompany(t *testing.T) {
	result := testEngine().Evaluate(Entity{
		CompanyName: "evil corp", // case-insensitive
		URL:         "https://evilcorp.com/jobs/1",
		Text:        "Software Engineer",
	})
	if result.Passed {
		t.Fatal("expected rejection for stop-listed company")
	}
	if !strings.Contains(result.Reason, "evil corp") && !strings.Contains(result.Reason, "stop-list") {
		t.Errorf("Reason = %q, want it to cite the company", result.Reason)
	}
}

func TestEvaluate_StopListKeyword(t *testing.T) {
	result := testEngine().Evaluate(Entity{
		CompanyName: "acme",
		Text:        "Senior Blockchain Engineer",
	})
	if result.Passed {
		t.Fatal("expected rejection for excluded keyword")
	}
	if !strings.Contains(result.Reason, `"blockchain"`) {
		t.Errorf("Reason = %q, want it to cite the matched keyword", result.Reason)
	}
}

func TestEvaluate_StopListDomain(t *testing.T) {
	tests := []struct {
		url      string
		rejected bool
	}{
		{"https://spam.example/jobs/1", true},
		{"https://jobs.spam.example/listing", true},   // subdomain
		{"https://notspam.example/jobs/1", false},     // not a suffix on a label boundary
		{"https://example.com/spam.example", false},   // domain in path, not host
	}
	e := testEngine()
	for _, tt := range tests {
		result := e.Evaluate(Entity{CompanyName: "acme", URL: tt.url, Text: "Engineer"})
		if result.Passed == tt.rejected {
			t.Errorf("Evaluate(%s): passed = %v, want rejected = %v", tt.url, result.Passed, tt.rejected)
		}
	}
}

func TestEvaluate_Adjustments(t *testing.T) {
	result := testEngine().Evaluate(Entity{
		CompanyName: "acme",
		URL:         "https://acme.com/jobs/1",
		Text:        "Remote Principal Engineer working in Go",
	})
	if !result.Passed {
		t.Fatalf("expected pass, got rejection: %s", result.Reason)
	}
	if result.BaseScore != 50 {
		t.Errorf("BaseScore = %d, want 50", result.BaseScore)
	}
	// tech-stack +10, remote +15, seniority -20.
	if got := result.RuleScore(); got != 55 {
		t.Errorf("RuleScore() = %d, want 55", got)
	}
	if len(result.Adjustments) != 3 {
		t.Fatalf("got %d adjustments, want 3: %+v", len(result.Adjustments), result.Adjustments)
	}
	for _, a := range result.Adjustments {
		if a.Category == "" || a.Reason == "" {
			t.Errorf("adjustment missing audit fields: %+v", a)
		}
	}
}

func TestEvaluate_RuleAppliesOncePerCategory(t *testing.T) {
	// Both "go" and "kubernetes" appear; the rule still fires once.
	result := testEngine().Evaluate(Entity{
		CompanyName: "acme",
		Text:        "Go and Kubernetes",
	})
	count := 0
	for _, a := range result.Adjustments {
		if a.Category == "tech-stack" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("tech-stack rule fired %d times, want 1", count)
	}
}

func TestEvaluate_NoRulesNoAdjustments(t *testing.T) {
	e := NewEngine(config.StopListConfig{}, config.ScoringConfig{BaseScore: 50})
	result := e.Evaluate(Entity{CompanyName: "anyone", Text: "anything"})
	if !result.Passed || len(result.Adjustments) != 0 {
		t.Errorf("empty config: passed=%v adjustments=%v", result.Passed, result.Adjustments)
	}
}
