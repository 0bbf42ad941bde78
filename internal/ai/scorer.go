package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"text/template"
	"time"

	"github.com/rjoshi44/huntd/internal/model"
)

// ScoreRequest is what the analyze stages hand the oracle.
type ScoreRequest struct {
	Title       string
	CompanyName string
	Description string
	Profile     string // candidate profile the posting is scored against
}

// Scorer is the scoring oracle adapter. It is stateless per call; failures
// are classified into the pipeline's retry taxonomy: provider-unavailable and
// timeout are transient, a malformed response is structural (the oracle is
// deterministic enough that retrying a bad response is futile).
type Scorer struct {
	provider LLMProvider
	tmpl     *template.Template
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScorer creates a scorer backed by the given provider.
func NewScorer(provider LLMProvider, tmpl *template.Template, timeout time.Duration, logger *slog.Logger) *Scorer {
	return &Scorer{
		provider: provider,
		tmpl:     tmpl,
		timeout:  timeout,
		logger:   logger,
	}
}

// rawMatchResult is the JSON shape returned by the LLM (matches matchResultSchema).
type rawMatchResult struct {
	MatchScore    int      `json:"match_score"`
	MatchedSkills []string `json:"matched_skills"`
	MissingSkills []string `json:"missing_skills"`
	Summary       string   `json:"summary"`
}

// Score sends the request to the oracle and returns the structured result.
func (s *Scorer) Score(ctx context.Context, req ScoreRequest) (*model.OracleResult, error) {
	var promptBuf bytes.Buffer
	if err := s.tmpl.Execute(&promptBuf, req); err != nil {
		return nil, &model.StructuralError{Reason: "render prompt", Err: err}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		return nil, classifyProviderError(err)
	}

	result, err := parseMatchResult(raw)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("oracle scored",
		"company", req.CompanyName,
		"title", req.Title,
		"score", result.MatchScore,
	)
	return result, nil
}

// parseMatchResult deserializes the LLM response. Any malformation is
// structural: the schema is enforced server-side, so a bad response will not
// get better on retry.
func parseMatchResult(raw string) (*model.OracleResult, error) {
	var rm rawMatchResult
	if err := json.Unmarshal([]byte(raw), &rm); err != nil {
		return nil, &model.StructuralError{Reason: "invalid oracle response", Err: err}
	}
	if rm.MatchScore < 0 || rm.MatchScore > 100 {
		return nil, &model.StructuralError{
			Reason: fmt.Sprintf("oracle score %d out of range", rm.MatchScore),
		}
	}
	return &model.OracleResult{
		MatchScore:    rm.MatchScore,
		MatchedSkills: rm.MatchedSkills,
		MissingSkills: rm.MissingSkills,
		Summary:       rm.Summary,
	}, nil
}

// classifyProviderError maps transport failures onto the retry taxonomy.
func classifyProviderError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.TransientError{Reason: "oracle timeout", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500 {
			return &model.TransientError{Reason: "oracle provider unavailable", Err: err}
		}
		// Auth errors, bad requests: retrying will not help.
		return &model.StructuralError{Reason: "oracle rejected request", Err: err}
	}

	// Network-level failures (DNS, connection refused) are transient.
	return &model.TransientError{Reason: "oracle unreachable", Err: err}
}

// httpStatusError converts a non-2xx provider response into a typed error.
func httpStatusError(resp *http.Response, body []byte) error {
	detail := string(body)
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return &model.HTTPError{
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("llm returned: %s", detail),
	}
}
