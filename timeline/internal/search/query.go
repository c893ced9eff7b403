package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Date is a calendar day in the search location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func dateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{y, m, d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Clock is a time of day in seconds since midnight.
type Clock int

func clockOf(t time.Time) Clock {
	h, m, s := t.Clock()
	return Clock(h*3600 + m*60 + s)
}

// TimeFilter is either a single minute (Range false, matched on HH:MM) or an
// inclusive range of clock times.
type TimeFilter struct {
	Start Clock
	End   Clock
	Range bool
}

func (f TimeFilter) match(c Clock) bool {
	if f.Range {
		return f.Start <= c && c <= f.End
	}
	return c/60 == f.Start/60
}

// Filters are the structured parts of a query. Zero values mean absent.
type Filters struct {
	Date  *Date
	Time  *TimeFilter
	Title string // lowercase
	URL   string // lowercase, scheme and www. stripped
}

func (f Filters) empty() bool {
	return f.Date == nil && f.Time == nil && f.Title == "" && f.URL == ""
}

// Query is a parsed search string.
type Query struct {
	Text    string
	Filters Filters
}

// Empty reports whether the query has neither free text nor filters.
func (q Query) Empty() bool {
	return strings.TrimSpace(q.Text) == "" && q.Filters.empty()
}

var (
	splitRe   = regexp.MustCompile(`("[^"]*"|'[^']*')|\s+`)
	keyOnlyRe = regexp.MustCompile(`(?i)^(date|time|title|url):$`)
)

// splitQuery splits on whitespace while keeping quoted runs, quotes
// included, as single tokens.
func splitQuery(s string) []string {
	var out []string
	add := func(p string) {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	last := 0
	for _, m := range splitRe.FindAllStringSubmatchIndex(s, -1) {
		add(s[last:m[0]])
		if m[2] >= 0 {
			add(s[m[2]:m[3]])
		}
		last = m[1]
	}
	add(s[last:])
	return out
}

func isFilterKey(k string) bool {
	switch k {
	case "date", "time", "title", "url":
		return true
	}
	return false
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// ParseQuery extracts date:, time:, title: and url: filters from raw. Both
// "key:value" and "key: value" are accepted, values may be quoted. A filter
// whose value cannot be parsed is kept in the free text as written. now
// anchors relative dates and supplies the location.
func ParseQuery(raw string, now time.Time) Query {
	var (
		q    Query
		core []string
	)
	toks := splitQuery(raw)
	for i := 0; i < len(toks); {
		tok := toks[i]
		var key, val string

		switch {
		case keyOnlyRe.MatchString(tok):
			if i+1 >= len(toks) {
				core = append(core, tok)
				i++
				continue
			}
			key = strings.ToLower(tok[:len(tok)-1])
			val = toks[i+1]
			i += 2
		case strings.Contains(tok, ":") && tok[0] != '"' && tok[0] != '\'':
			k, v, _ := strings.Cut(tok, ":")
			if !isFilterKey(strings.ToLower(k)) {
				core = append(core, tok)
				i++
				continue
			}
			key, val = strings.ToLower(k), v
			i++
		default:
			core = append(core, tok)
			i++
			continue
		}

		clean := unquote(val)
		switch key {
		case "date":
			if d, ok := parseDate(clean, now); ok {
				q.Filters.Date = &d
			} else {
				core = append(core, key+":"+val)
			}
		case "time":
			if f, ok := parseTime(clean, now); ok {
				q.Filters.Time = &f
			} else {
				core = append(core, key+":"+val)
			}
		case "title":
			q.Filters.Title = strings.ToLower(clean)
		case "url":
			q.Filters.URL = normalizeURL(clean)
		}
	}
	q.Text = strings.Join(core, " ")
	return q
}

var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"1-2-2006",
	"2-1-2006",
	"2/1/2006",
}

// Layouts without a year take the current one.
var yearlessLayouts = []string{"1/2", "1-2"}

func parseDate(s string, now time.Time) (Date, bool) {
	s = strings.Trim(s, `'"`)
	switch strings.ToLower(s) {
	case "today":
		return dateOf(now), true
	case "yesterday":
		return dateOf(now.AddDate(0, 0, -1)), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return dateOf(t), true
		}
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			d := Date{now.Year(), t.Month(), t.Day()}
			// Feb 29 outside a leap year does not exist.
			if check := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, now.Location()); check.Day() != d.Day {
				return Date{}, false
			}
			return d, true
		}
	}
	if s == "" {
		return Date{}, false
	}
	t, err := dateparse.ParseIn(s, now.Location())
	if err != nil {
		return Date{}, false
	}
	return dateOf(t), true
}

var timeLayouts = []string{"15:04:05", "15:04", "3:04PM", "3PM", "3:04:05PM"}

func parseTime(s string, now time.Time) (TimeFilter, bool) {
	s = strings.Trim(s, `'"`)
	if strings.Count(s, "-") == 1 {
		a, b, _ := strings.Cut(s, "-")
		start, ok1 := parseClock(strings.TrimSpace(a), now)
		end, ok2 := parseClock(strings.TrimSpace(b), now)
		if !ok1 || !ok2 {
			return TimeFilter{}, false
		}
		return TimeFilter{Start: start, End: end, Range: true}, true
	}
	c, ok := parseClock(s, now)
	if !ok {
		return TimeFilter{}, false
	}
	return TimeFilter{Start: c, End: c}, true
}

func parseClock(s string, now time.Time) (Clock, bool) {
	if s == "" {
		return 0, false
	}
	up := strings.ToUpper(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, up); err == nil {
			return clockOf(t), true
		}
	}
	t, err := dateparse.ParseIn(s, now.Location())
	if err != nil {
		return 0, false
	}
	return clockOf(t), true
}

// normalizeURL lowercases u and strips the scheme and a leading "www.".
func normalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if _, rest, ok := strings.Cut(u, "://"); ok {
		u = rest
	}
	return strings.TrimPrefix(u, "www.")
}

// domainOf returns the host part of a page URL, normalised like normalizeURL.
func domainOf(u string) string {
	u = normalizeURL(u)
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return u
}
