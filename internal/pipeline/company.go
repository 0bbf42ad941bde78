package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rjoshi44/huntd/internal/fetch"
	"github.com/rjoshi44/huntd/internal/filter"
	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/source"
)

// companyHandlers process company items: fetch the homepage, extract metadata
// and a job-board link, screen against the stop-list, and save to the system
// of record. Finding an uncovered board spawns a sourceDiscovery item.
type companyHandlers struct {
	fetcher *fetch.Fetcher
	records model.RecordStore
	logger  *slog.Logger
}

func (h *companyHandlers) fetch(ctx context.Context, item *model.QueueItem, _ *Env) Outcome {
	var p model.CompanyPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	body, err := h.fetcher.Fetch(ctx, p.Website)
	if err != nil {
		return failure("fetch homepage", err)
	}
	p.RawHTML = body
	return Advance(model.StageExtract, p)
}

func (h *companyHandlers) extract(ctx context.Context, item *model.QueueItem, _ *Env) Outcome {
	var p model.CompanyPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	p.Title = pageTitle(p.RawHTML)
	p.Description = metaDescription(p.RawHTML)
	p.About = firstParagraph(p.RawHTML)
	if link, ok := source.FindBoardLink(p.RawHTML); ok {
		boardURL := resolveLink(p.Website, link)
		p.JobBoardURL = boardURL
		p.BoardKind = source.DetectKind(boardURL)
	}
	return Advance(model.StageAnalyze, p)
}

func (h *companyHandlers) analyze(ctx context.Context, item *model.QueueItem, env *Env) Outcome {
	var p model.CompanyPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	result := env.Engine.Evaluate(filter.Entity{
		CompanyName: p.Name,
		URL:         p.Website,
		Text:        strings.Join([]string{p.Title, p.Description, p.About}, " "),
	})
	if !result.Passed {
		return Terminal(model.StatusFiltered, result.Reason)
	}
	p.Filter = &result

	out := Advance(model.StageSave, p)
	if p.JobBoardURL != "" {
		covered, err := h.records.HasSourceCovering(ctx, p.JobBoardURL)
		if err != nil {
			return failure("check source coverage", err)
		}
		if !covered {
			spawn, err := NewDiscoveryItem(p.JobBoardURL, p.Name)
			if err != nil {
				return Terminal(model.StatusFailed, err.Error())
			}
			spawn.SpawnedFrom = item.ID
			out = out.WithSpawns(spawn)
			h.logger.Info("job board discovered",
				"company", p.Name, "board", p.JobBoardURL, "kind", p.BoardKind)
		}
	}
	return out
}

func (h *companyHandlers) save(ctx context.Context, item *model.QueueItem, _ *Env) Outcome {
	var p model.CompanyPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	description := p.Description
	if description == "" {
		description = p.About
	}
	id, err := h.records.SaveCompany(ctx, &model.Company{
		Name:        p.Name,
		Website:     p.Website,
		Source:      p.Source,
		Description: description,
		JobBoardURL: p.JobBoardURL,
	})
	if err != nil {
		return failure("save company", err)
	}
	return Terminal(model.StatusSuccess, fmt.Sprintf("company saved as %s", id))
}
