package filter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rjoshi44/huntd/internal/config"
	"github.com/rjoshi44/huntd/internal/model"
)

// Engine screens entities against the stop-list and computes rule-based score
// adjustments. Pure and deterministic: no I/O, no clock, so it always runs
// before any paid oracle call.
type Engine struct {
	stopList config.StopListConfig
	scoring  config.ScoringConfig
}

// NewEngine builds an engine from a configuration snapshot.
func NewEngine(stopList config.StopListConfig, scoring config.ScoringConfig) *Engine {
	return &Engine{stopList: stopList, scoring: scoring}
}

// Entity is the slice of an entity the engine inspects.
type Entity struct {
	CompanyName string
	URL         string
	Text        string // title, description, about — whatever the stage has accumulated
}

// Evaluate screens the entity. A rejection carries the matched rule in Reason;
// a pass carries the base score and adjustments for the analyze stage.
func (e *Engine) Evaluate(entity Entity) model.FilterResult {
	if reason, rejected := e.rejects(entity); rejected {
		return model.FilterResult{Passed: false, Reason: reason}
	}

	result := model.FilterResult{
		Passed:    true,
		BaseScore: e.scoring.BaseScore,
	}

	text := strings.ToLower(entity.Text)
	for _, rule := range e.scoring.Adjustments {
		if kw, ok := matchKeyword(text, rule.Keywords); ok {
			reason := rule.Reason
			if reason == "" {
				reason = fmt.Sprintf("matched %q", kw)
			}
			result.Adjustments = append(result.Adjustments, model.Adjustment{
				Category: rule.Category,
				Reason:   reason,
				Points:   rule.Points,
			})
		}
	}
	return result
}

// rejects checks the three exclusion sets: company names (exact,
// case-insensitive), keywords (substring over the entity text), and domains
// (suffix match on the URL host).
func (e *Engine) rejects(entity Entity) (string, bool) {
	company := strings.ToLower(strings.TrimSpace(entity.CompanyName))
	for _, excluded := range e.stopList.Companies {
		if company != "" && company == strings.ToLower(strings.TrimSpace(excluded)) {
			return fmt.Sprintf("company %q is on the stop-list", entity.CompanyName), true
		}
	}

	text := strings.ToLower(entity.Text)
	for _, kw := range e.stopList.Keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return fmt.Sprintf("matched excluded keyword %q", kw), true
		}
	}

	if host := hostOf(entity.URL); host != "" {
		for _, domain := range e.stopList.Domains {
			d := strings.ToLower(strings.TrimSpace(domain))
			if d == "" {
				continue
			}
			if host == d || strings.HasSuffix(host, "."+d) {
				return fmt.Sprintf("domain %q is on the stop-list", d), true
			}
		}
	}

	return "", false
}

func matchKeyword(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
