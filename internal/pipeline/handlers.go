package pipeline

import (
	"log/slog"

	"github.com/rjoshi44/huntd/internal/fetch"
	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/source"
)

// Deps carries the shared collaborators stage handlers need. Oracle and
// Notifier may be nil; the affected stages degrade gracefully.
type Deps struct {
	Fetcher  *fetch.Fetcher
	Boards   source.BoardClient
	Oracle   Oracle
	Records  model.RecordStore
	Notifier model.MatchNotifier
	Logger   *slog.Logger
}

// RegisterHandlers binds every (entity type, stage) pair to its handler.
func RegisterHandlers(d *Dispatcher, deps Deps) {
	company := &companyHandlers{
		fetcher: deps.Fetcher,
		records: deps.Records,
		logger:  deps.Logger,
	}
	d.Register(model.EntityCompany, model.StageFetch, company.fetch)
	d.Register(model.EntityCompany, model.StageExtract, company.extract)
	d.Register(model.EntityCompany, model.StageAnalyze, company.analyze)
	d.Register(model.EntityCompany, model.StageSave, company.save)

	job := &jobHandlers{
		fetcher:  deps.Fetcher,
		oracle:   deps.Oracle,
		records:  deps.Records,
		notifier: deps.Notifier,
		logger:   deps.Logger,
	}
	d.Register(model.EntityJob, model.StageScrape, job.scrape)
	d.Register(model.EntityJob, model.StageFilter, job.filter)
	d.Register(model.EntityJob, model.StageAnalyze, job.analyze)
	d.Register(model.EntityJob, model.StageSave, job.save)

	discovery := &discoveryHandlers{
		boards:  deps.Boards,
		records: deps.Records,
		logger:  deps.Logger,
	}
	d.Register(model.EntitySourceDiscovery, model.StageFetch, discovery.fetch)
	d.Register(model.EntitySourceDiscovery, model.StageExtract, discovery.extract)
	d.Register(model.EntitySourceDiscovery, model.StageSave, discovery.save)

	scraper := &scrapeHandlers{
		boards:  deps.Boards,
		records: deps.Records,
		logger:  deps.Logger,
	}
	d.Register(model.EntityScrape, model.StageScrape, scraper.run)
}
