package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/source"
)

// discoveryHandlers process sourceDiscovery items: probe the board, classify
// its provider, and register it as a scrapeable source.
type discoveryHandlers struct {
	boards  source.BoardClient
	records model.RecordStore
	logger  *slog.Logger
}

func (h *discoveryHandlers) fetch(ctx context.Context, item *model.QueueItem, _ *Env) Outcome {
	var p model.DiscoveryPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	// A board that cannot serve listings now is not worth registering.
	listings, err := h.boards.FetchListings(ctx, &model.Source{
		Name:        "probe",
		BoardURL:    p.BoardURL,
		CompanyName: p.CompanyName,
	})
	if err != nil {
		return failure("probe board", err)
	}
	h.logger.Debug("board probe succeeded", "board", p.BoardURL, "listings", len(listings))
	return Advance(model.StageExtract, p)
}

func (h *discoveryHandlers) extract(ctx context.Context, item *model.QueueItem, _ *Env) Outcome {
	var p model.DiscoveryPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	p.Kind = source.DetectKind(p.BoardURL)
	if p.Name == "" {
		p.Name = sourceName(p)
	}
	return Advance(model.StageSave, p)
}

func (h *discoveryHandlers) save(ctx context.Context, item *model.QueueItem, _ *Env) Outcome {
	var p model.DiscoveryPayload
	if err := model.DecodePayload(item.Payload, &p); err != nil {
		return Terminal(model.StatusFailed, err.Error())
	}

	if _, err := h.records.UpsertSource(ctx, &model.Source{
		Name:        p.Name,
		Kind:        p.Kind,
		BoardURL:    p.BoardURL,
		CompanyName: p.CompanyName,
	}); err != nil {
		return failure("register source", err)
	}
	return Terminal(model.StatusSuccess, fmt.Sprintf("source %s (%s) registered", p.Name, p.Kind))
}

// sourceName derives a stable human-readable name for a discovered board.
func sourceName(p model.DiscoveryPayload) string {
	if p.CompanyName != "" {
		return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p.CompanyName), " ", "-")) + "-board"
	}
	if u, err := url.Parse(p.BoardURL); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	return p.BoardURL
}
