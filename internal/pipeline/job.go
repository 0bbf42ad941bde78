package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rjoshi44/huntd/internal/ai"
	"github.com/rjoshi44/huntd/internal/fetch"
	"github.com/rjoshi44/huntd/internal/filter"
	"github.com/rjoshi44/huntd/internal/model"
)

// oracleExcerptLen caps how much posting text the oracle sees when no meta
// description exists.
const oracleExcerptLen = 2000

// Oracle scores a posting against the candidate profile. Satisfied by
// ai.Scorer; tests substitute a stub.
type Oracle interface {
	Score(ctx context.Context, req ai.ScoreRequest) (*model.OracleResult, error)
}

// jobHandlers process job items: fetch the posting, screen it against the
// stop-list, score it, and persist matches that clear the threshold.
type jobHandlers struct {
	fetcher  *fetch.Fetcher
	oracle   Oracle
	records  model.RecordStore
	notifier model.MatchNotifier
	logger   *slog.Logger
}

func (h *jobHandlers) scrape(ctx context.Context, item *model.QueueItem, _ *Env) Outcome {
	var p model.JobPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	body, err := h.fetcher.Fetch(ctx, p.URL)
	if err != nil {
		return failure("fetch posting", err)
	}
	if p.Title == "" {
		p.Title = pageTitle(body)
	}
	if p.Description == "" {
		p.Description = metaDescription(body)
	}
	if p.Description == "" {
		p.Description = textExcerpt(body, oracleExcerptLen)
	}
	return Advance(model.StageFilter, p)
}

func (h *jobHandlers) filter(ctx context.Context, item *model.QueueItem, env *Env) Outcome {
	var p model.JobPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	result := env.Engine.Evaluate(filter.Entity{
		CompanyName: p.CompanyName,
		URL:         p.URL,
		Text:        p.Title + " " + p.Location + " " + p.Description,
	})
	if !result.Passed {
		return Terminal(model.StatusFiltered, result.Reason)
	}
	p.Filter = &result
	return Advance(model.StageAnalyze, p)
}

func (h *jobHandlers) analyze(ctx context.Context, item *model.QueueItem, env *Env) Outcome {
	var p model.JobPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}
	if p.Filter == nil {
		return Terminal(model.StatusFailed, "analyze reached without a filter verdict")
	}

	score := model.ScoreResult{
		BaseScore:   p.Filter.BaseScore,
		Adjustments: p.Filter.Adjustments,
		Threshold:   env.Cfg.Scoring.MinMatchScore,
	}
	if env.Cfg.AI.Enabled && h.oracle != nil {
		result, err := h.oracle.Score(ctx, ai.ScoreRequest{
			Title:       p.Title,
			CompanyName: p.CompanyName,
			Description: p.Description,
			Profile:     env.Cfg.AI.Profile,
		})
		if err != nil {
			return failure("score posting", err)
		}
		score.BaseScore = result.MatchScore
		score.MatchedSkills = result.MatchedSkills
		score.MissingSkills = result.MissingSkills
		score.Summary = result.Summary
	}

	score.FinalScore = score.BaseScore
	for _, a := range score.Adjustments {
		score.FinalScore += a.Points
	}
	p.Score = &score

	if score.FinalScore < score.Threshold {
		return Terminal(model.StatusSkipped,
			fmt.Sprintf("below threshold: %d", score.FinalScore)).WithPayload(p)
	}
	return Advance(model.StageSave, p)
}

func (h *jobHandlers) save(ctx context.Context, item *model.QueueItem, _ *Env) Outcome {
	var p model.JobPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}
	if p.Score == nil {
		return Terminal(model.StatusFailed, "save reached without a score")
	}

	scraped, _ := json.Marshal(map[string]any{
		"title":     p.Title,
		"location":  p.Location,
		"posted_at": p.PostedAt,
		"summary":   p.Score.Summary,
	})
	now := time.Now().UTC()
	message := fmt.Sprintf("saved match with score %d", p.Score.FinalScore)
	match := &model.JobMatch{
		ID:            item.ID,
		Status:        model.StatusSuccess,
		URL:           p.URL,
		CompanyName:   p.CompanyName,
		CompanyID:     p.CompanyID,
		Source:        p.Source,
		RetryCount:    item.RetryCount,
		ResultMessage: message,
		ScrapedData:   string(scraped),
		MatchScore:    p.Score.FinalScore,
		MatchedSkills: p.Score.MatchedSkills,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     now,
		ProcessedAt:   item.ClaimedAt,
		CompletedAt:   &now,
	}
	if err := h.records.SaveJobMatch(ctx, match); err != nil {
		return failure("save match", err)
	}

	if h.notifier != nil {
		// A failed notification never fails the saved match.
		if err := h.notifier.NotifyMatch(*match); err != nil {
			h.logger.Warn("match notification failed", "url", p.URL, "error", err)
		}
	}
	return Terminal(model.StatusSuccess, message)
}
