package pipeline

import (
	"strings"
	"testing"
)

func TestPageTitle(t *testing.T) {
	page := `<html><head><TITLE class="x">Acme &amp; Co
	— Home</TITLE></head></html>`
	if got := pageTitle(page); got != "Acme & Co — Home" {
		t.Errorf("pageTitle = %q", got)
	}
	if got := pageTitle("<html><body>no title</body></html>"); got != "" {
		t.Errorf("pageTitle on missing tag = %q", got)
	}
}

func TestMetaDescription(t *testing.T) {
	page := `<meta charset="utf-8"><meta name="description" content="We build tools.">`
	if got := metaDescription(page); got != "We build tools." {
		t.Errorf("metaDescription = %q", got)
	}
	if got := metaDescription(`<meta name="keywords" content="x">`); got != "" {
		t.Errorf("metaDescription matched wrong tag: %q", got)
	}
}

func TestFirstParagraph(t *testing.T) {
	page := `<p class="spacer">   </p><p>First <b>real</b> paragraph.</p><p>Second.</p>`
	if got := firstParagraph(page); got != "First real paragraph." {
		t.Errorf("firstParagraph = %q", got)
	}
}

func TestTextExcerpt(t *testing.T) {
	page := `<html><head><script>var x = 1;</script><style>.a{}</style></head>
	<body><h1>Role</h1><p>Build things in Go.</p></body></html>`
	got := textExcerpt(page, 100)
	if !strings.Contains(got, "Build things in Go.") {
		t.Errorf("excerpt = %q", got)
	}
	if strings.Contains(got, "var x") {
		t.Errorf("script leaked into excerpt: %q", got)
	}

	if got := textExcerpt(page, 4); len(got) > 4 {
		t.Errorf("excerpt length %d exceeds cap", len(got))
	}
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://acme.dev/about", "/careers", "https://acme.dev/careers"},
		{"https://acme.dev", "https://boards.greenhouse.io/acme", "https://boards.greenhouse.io/acme"},
		{"https://acme.dev/a/b", "c", "https://acme.dev/a/c"},
	}
	for _, tt := range tests {
		if got := resolveLink(tt.base, tt.href); got != tt.want {
			t.Errorf("resolveLink(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}
