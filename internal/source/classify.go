package source

import (
	"regexp"
	"strings"
)

// Known hosted-board providers, checked against URL hosts.
var boardHosts = map[string]string{
	"greenhouse.io":     "greenhouse",
	"lever.co":          "lever",
	"ashbyhq.com":       "ashby",
	"myworkdayjobs.com": "workday",
}

// DetectKind classifies a board URL by its hosting provider. Returns
// "unknown" for self-hosted or unrecognized boards.
func DetectKind(boardURL string) string {
	lower := strings.ToLower(boardURL)
	for host, kind := range boardHosts {
		if strings.Contains(lower, host) {
			return kind
		}
	}
	return "unknown"
}

var hrefPattern = regexp.MustCompile(`href=["']([^"']+)["']`)

// FindBoardLink scans page HTML for a link to a known hosted job board.
// Returns the first match; companies rarely link more than one.
func FindBoardLink(html string) (string, bool) {
	for _, m := range hrefPattern.FindAllStringSubmatch(html, -1) {
		link := m[1]
		lower := strings.ToLower(link)
		for host := range boardHosts {
			if strings.Contains(lower, host) {
				return link, true
			}
		}
	}
	return "", false
}
