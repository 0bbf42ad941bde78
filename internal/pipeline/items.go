package pipeline

import (
	"github.com/rjoshi44/huntd/internal/model"
)

// Item constructors are the single place queue items are assembled, so every
// entry path (CLI intake, scheduler, spawns) derives keys the same way.

// NewCompanyItem builds a pending company item. submitter records who asked
// for it: "manual", "scraper" or "scheduler".
func NewCompanyItem(name, website, submitter string) (*model.QueueItem, error) {
	payload, err := model.EncodePayload(model.CompanyPayload{
		Name:    name,
		Website: website,
		Source:  submitter,
	})
	if err != nil {
		return nil, err
	}
	return &model.QueueItem{
		EntityType: model.EntityCompany,
		Status:     model.StatusPending,
		Key:        model.CompanyKey(name, website),
		Payload:    payload,
	}, nil
}

// NewJobItem builds a pending job item from a payload carrying at least the
// posting URL.
func NewJobItem(p model.JobPayload) (*model.QueueItem, error) {
	payload, err := model.EncodePayload(p)
	if err != nil {
		return nil, err
	}
	return &model.QueueItem{
		EntityType: model.EntityJob,
		Status:     model.StatusPending,
		Key:        model.JobKey(p.URL),
		Payload:    payload,
	}, nil
}

// NewDiscoveryItem builds a pending sourceDiscovery item for a board URL.
func NewDiscoveryItem(boardURL, companyName string) (*model.QueueItem, error) {
	payload, err := model.EncodePayload(model.DiscoveryPayload{
		BoardURL:    boardURL,
		CompanyName: companyName,
	})
	if err != nil {
		return nil, err
	}
	return &model.QueueItem{
		EntityType: model.EntitySourceDiscovery,
		Status:     model.StatusPending,
		Key:        model.DiscoveryKey(boardURL),
		Payload:    payload,
	}, nil
}

// NewScrapeItem builds a pending scrape run. The queue enforces that at most
// one scrape item is live at a time.
func NewScrapeItem(p model.ScrapePayload) (*model.QueueItem, error) {
	payload, err := model.EncodePayload(p)
	if err != nil {
		return nil, err
	}
	return &model.QueueItem{
		EntityType: model.EntityScrape,
		Status:     model.StatusPending,
		Key:        model.ScrapeKey(),
		Payload:    payload,
	}, nil
}
