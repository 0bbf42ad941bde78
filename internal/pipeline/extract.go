package pipeline

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Extraction works on raw HTML with targeted patterns rather than a full DOM
// parse: the pipeline only needs head metadata, a text excerpt, and link
// hrefs, and company pages are too inconsistent for anything fancier to pay
// off.

var (
	titleRe     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaDescRe  = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]*>`)
	contentRe   = regexp.MustCompile(`(?is)content=["']([^"']*)["']`)
	paragraphRe = regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`)
	tagRe       = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptRe    = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// pageTitle returns the cleaned <title> text, or "".
func pageTitle(page string) string {
	m := titleRe.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	return cleanText(m[1])
}

// metaDescription returns the cleaned meta description content, or "".
func metaDescription(page string) string {
	tag := metaDescRe.FindString(page)
	if tag == "" {
		return ""
	}
	m := contentRe.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	return cleanText(m[1])
}

// firstParagraph returns the first non-empty <p> text, or "".
func firstParagraph(page string) string {
	for _, m := range paragraphRe.FindAllStringSubmatch(page, 5) {
		if text := cleanText(m[1]); text != "" {
			return text
		}
	}
	return ""
}

// textExcerpt strips markup from the page and returns up to max characters of
// visible text. Used when a posting has no meta description to feed the
// oracle.
func textExcerpt(page string, max int) string {
	text := cleanText(scriptRe.ReplaceAllString(page, " "))
	if len(text) > max {
		text = text[:max]
	}
	return strings.TrimSpace(text)
}

// cleanText strips tags, unescapes entities, and collapses whitespace.
func cleanText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// resolveLink makes href absolute against base. A bad base or href comes back
// unchanged; callers treat the result as best-effort.
func resolveLink(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
