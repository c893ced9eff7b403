package ingest

import (
	"net/url"
	"strings"
)

// titleRule derives a display title from capture context, or reports false
// to let the next rule try.
type titleRule func(app, title, pageURL string) (string, bool)

// titleRules run in priority order; the first match wins.
var titleRules = []titleRule{
	browserTitle,
	fileInTitlePrefix,
	fileTitle,
	finderTitle,
	distinctTitle,
	appTitle,
}

// SmartTitle turns raw app/window/URL context into a human-meaningful title.
func SmartTitle(app, title, pageURL string) string {
	for _, rule := range titleRules {
		if s, ok := rule(app, title, pageURL); ok {
			return s
		}
	}
	return "Untitled Capture"
}

var browserNames = []string{
	"safari", "google chrome", "google-chrome", "chromium", "brave",
	"arc", "microsoft edge", "firefox",
}

func isBrowser(app string) bool {
	app = strings.ToLower(app)
	for _, b := range browserNames {
		if strings.Contains(app, b) {
			return true
		}
	}
	return false
}

var browserSuffixes = []string{
	" - Google Chrome", " - Mozilla Firefox", " - Safari", " - Microsoft Edge", " - Arc",
}

func browserTitle(app, title, pageURL string) (string, bool) {
	if pageURL == "" || !isBrowser(app) {
		return "", false
	}
	lt := strings.ToLower(title)
	if strings.TrimSpace(title) != "" && lt != strings.ToLower(pageURL) && lt != "new tab" {
		cleaned := title
		for _, suf := range append([]string{" - " + app}, browserSuffixes...) {
			if strings.HasSuffix(cleaned, suf) {
				cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, suf))
			}
		}
		if cleaned != "" && !strings.EqualFold(cleaned, pageURL) {
			return cleaned, true
		}
	}

	if u, err := url.Parse(pageURL); err == nil {
		var parts []string
		for _, p := range strings.Split(u.EscapedPath(), "/") {
			if p != "" {
				parts = append(parts, p)
			}
		}
		if n := len(parts); n > 0 && strings.Contains(parts[n-1], ".") {
			return unescape(parts[n-1]), true
		}
		s := u.Host
		if len(parts) > 0 {
			s += "/" + unescape(parts[0])
		}
		if s != "" {
			return s, true
		}
	}

	if strings.TrimSpace(title) != "" {
		return title, true
	}
	return pageURL, true
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

var fileExts = []string{
	".py", ".js", ".ts", ".jsx", ".tsx", ".html", ".css", ".scss", ".json", ".xml", ".yaml", ".yml",
	".md", ".txt", ".rtf",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".mov", ".mp4", ".avi", ".mkv",
	".zip", ".tar", ".gz",
}

func hasFileExt(s string) bool {
	s = strings.ToLower(s)
	for _, ext := range fileExts {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

// "notes.md - project - Editor" names the open file first.
func fileInTitlePrefix(_, title, _ string) (string, bool) {
	first, _, _ := strings.Cut(title, " - ")
	first = strings.TrimSpace(first)
	if first != "" && hasFileExt(first) {
		return first, true
	}
	return "", false
}

func fileTitle(_, title, _ string) (string, bool) {
	if title != "" && hasFileExt(title) {
		return title, true
	}
	return "", false
}

func finderTitle(app, title, _ string) (string, bool) {
	if strings.Contains(strings.ToLower(app), "finder") && title != "" && !strings.EqualFold(title, "finder") {
		return title, true
	}
	return "", false
}

func distinctTitle(app, title, _ string) (string, bool) {
	if title != "" && (app == "" || !strings.EqualFold(title, app)) {
		return title, true
	}
	return "", false
}

func appTitle(app, _, _ string) (string, bool) {
	return app, app != ""
}
