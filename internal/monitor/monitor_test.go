package monitor

import (
	"testing"
	"time"

	"github.com/rjoshi44/huntd/internal/model"
)

func mustPayload(t *testing.T, p any) []byte {
	t.Helper()
	raw, err := model.EncodePayload(p)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestItemTitle(t *testing.T) {
	tests := []struct {
		name string
		item *model.QueueItem
		want string
	}{
		{
			"company by name",
			&model.QueueItem{EntityType: model.EntityCompany},
			"Acme",
		},
		{
			"job with title",
			&model.QueueItem{EntityType: model.EntityJob},
			"Acme: Go Engineer",
		},
		{
			"discovery by board",
			&model.QueueItem{EntityType: model.EntitySourceDiscovery},
			"https://boards.greenhouse.io/acme",
		},
		{
			"scrape",
			&model.QueueItem{EntityType: model.EntityScrape, Key: "scrape"},
			"scrape run",
		},
	}

	tests[0].item.Payload = mustPayload(t, model.CompanyPayload{Name: "Acme"})
	tests[1].item.Payload = mustPayload(t, model.JobPayload{CompanyName: "Acme", Title: "Go Engineer"})
	tests[2].item.Payload = mustPayload(t, model.DiscoveryPayload{BoardURL: "https://boards.greenhouse.io/acme"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := itemTitle(tt.item); got != tt.want {
				t.Errorf("itemTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSortNewestFirst(t *testing.T) {
	now := time.Now()
	items := []*model.QueueItem{
		{ID: "old", UpdatedAt: now.Add(-time.Hour)},
		{ID: "new", UpdatedAt: now},
		{ID: "mid", UpdatedAt: now.Add(-time.Minute)},
	}
	sortNewestFirst(items)
	if items[0].ID != "new" || items[2].ID != "old" {
		t.Errorf("order = %s, %s, %s", items[0].ID, items[1].ID, items[2].ID)
	}
}
