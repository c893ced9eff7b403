package timeline

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/rewind/timeline/internal/store"
)

const previewRunes = 500

var slugStrip = regexp.MustCompile(`[^a-z0-9-]`)

// AppIconURL returns a favicon URL for the page's domain, or an icon CDN URL
// keyed by the app name.
func AppIconURL(app, pageURL string) string {
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
			return "https://www.google.com/s2/favicons?sz=64&domain=" + url.QueryEscape(u.Host)
		}
	}
	if app == "" {
		return ""
	}
	slug := slugStrip.ReplaceAllString(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(app)), " ", "-"), "")
	if slug == "" {
		return ""
	}
	return "https://cdn.jsdelivr.net/npm/bootstrap-icons@1.10.5/icons/" + slug + ".svg"
}

// AbsoluteTime formats ts in local time.
func AbsoluteTime(ts int64) string {
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

// RelativeTime describes how long before now ts was, e.g. "3 minutes ago".
func RelativeTime(ts int64, now time.Time) string {
	d := now.Sub(time.Unix(ts, 0))
	if d < 0 {
		return "In the future"
	}
	days := int(d / (24 * time.Hour))
	secs := int((d % (24 * time.Hour)) / time.Second)
	switch {
	case days >= 365:
		return ago(days/365, "year")
	case days >= 30:
		return ago(days/30, "month")
	case days > 0:
		return ago(days, "day")
	case secs >= 3600:
		return ago(secs/3600, "hour")
	case secs >= 60:
		return ago(secs/60, "minute")
	case secs < 5:
		return "Just now"
	}
	return ago(secs, "second")
}

func ago(n int, unit string) string {
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}

// EntryView is the JSON shape of an entry for API callers.
type EntryView struct {
	ID          int64  `json:"id"`
	App         string `json:"app"`
	Title       string `json:"title"`
	Timestamp   int64  `json:"timestamp"`
	Filename    string `json:"filename"`
	PageURL     string `json:"page_url,omitempty"`
	AppIconURL  string `json:"app_icon_url"`
	TimestampHR string `json:"timestamp_hr"`
	Relative    string `json:"relative_time"`

	// Text is set on detail views; lists carry only the preview.
	Text        string `json:"text,omitempty"`
	TextPreview string `json:"text_preview"`
}

func newEntryView(e *store.Entry, now time.Time, full bool) EntryView {
	v := EntryView{
		ID:          e.ID,
		App:         e.App,
		Title:       e.Title,
		Timestamp:   e.Timestamp,
		Filename:    e.Filename,
		PageURL:     e.PageURL,
		AppIconURL:  AppIconURL(e.App, e.PageURL),
		TimestampHR: AbsoluteTime(e.Timestamp),
		Relative:    RelativeTime(e.Timestamp, now),
		TextPreview: preview(e.Text, previewRunes),
	}
	if full {
		v.Text = e.Text
	}
	return v
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
