package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rjoshi44/huntd/internal/filter"
	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/source"
)

// scrapeHandlers run a scrape pass: visit registered sources in rotation
// order, screen their listings, and spawn a job item per listing that clears
// the stop-list. The pass halts early once it has enough matches.
type scrapeHandlers struct {
	boards  source.BoardClient
	records model.RecordStore
	logger  *slog.Logger
}

func (h *scrapeHandlers) run(ctx context.Context, item *model.QueueItem, env *Env) Outcome {
	var p model.ScrapePayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	sources, err := h.records.EligibleSources(ctx, p.SourceIDs)
	if err != nil {
		return failure("list sources", err)
	}
	if len(sources) == 0 {
		return Terminal(model.StatusSkipped, "no sources to scrape")
	}

	var spawns []*model.QueueItem
	visited, matches, failures := 0, 0, 0
	for _, src := range sources {
		if p.MaxSources > 0 && visited >= p.MaxSources {
			break
		}
		if p.TargetMatches > 0 && matches >= p.TargetMatches {
			break
		}
		visited++

		listings, err := h.boards.FetchListings(ctx, src)
		if err != nil {
			// One bad source never sinks the pass; the rotation moves on.
			failures++
			h.logger.Warn("source scrape failed", "source", src.Name, "error", err)
			continue
		}
		if err := h.records.MarkSourceScraped(ctx, src.ID, time.Now().UTC()); err != nil {
			h.logger.Warn("mark source scraped", "source", src.Name, "error", err)
		}
		h.logger.Debug("source scraped", "source", src.Name, "listings", len(listings))

		for _, listing := range listings {
			result := env.Engine.Evaluate(filter.Entity{
				CompanyName: listing.Company,
				URL:         listing.URL,
				Text:        listing.Title + " " + listing.Location,
			})
			if !result.Passed {
				continue
			}

			spawn, err := NewJobItem(model.JobPayload{
				URL:         listing.URL,
				CompanyName: listing.Company,
				Source:      "scraper",
				Title:       listing.Title,
				Location:    listing.Location,
				PostedAt:    listing.PostedAt,
			})
			if err != nil {
				return Terminal(model.StatusFailed, err.Error())
			}
			spawn.SpawnedFrom = item.ID
			spawns = append(spawns, spawn)
			matches++
			if p.TargetMatches > 0 && matches >= p.TargetMatches {
				break
			}
		}
	}

	if failures == visited {
		return Retry("all sources failed", nil)
	}

	p.SourcesVisited = visited
	p.Matches = matches
	p.JobsSpawned = len(spawns)
	return Terminal(model.StatusSuccess,
		fmt.Sprintf("visited %d sources, spawned %d job items", visited, len(spawns))).
		WithPayload(p).
		WithSpawns(spawns...)
}
