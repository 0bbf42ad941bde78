package notifier

import (
	"log/slog"

	"github.com/rjoshi44/huntd/internal/model"
)

// Ensure LogNotifier implements model.MatchNotifier.
var _ model.MatchNotifier = (*LogNotifier)(nil)

// LogNotifier writes saved matches to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each match via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyMatch logs the match with company, URL, score, and matched skills.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) NotifyMatch(m model.JobMatch) error {
	n.logger.Info("job match saved",
		"company", m.CompanyName,
		"url", m.URL,
		"score", m.MatchScore,
		"skills", m.MatchedSkills,
		"source", m.Source,
	)
	return nil
}
