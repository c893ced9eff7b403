package desktop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reActiveWindow = regexp.MustCompile(`window id # (0x[0-9a-fA-F]+)`)
	reWMClass      = regexp.MustCompile(`WM_CLASS\(STRING\) = "([^"]*)", "([^"]*)"`)
	reWMName       = regexp.MustCompile(`_NET_WM_NAME\(UTF8_STRING\) = "((?:[^"\\]|\\.)*)"`)
	reHIDIdle      = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)
)

// parseActiveWindow extracts the window id from `xprop -root _NET_ACTIVE_WINDOW`.
// A zero id means no window has focus.
func parseActiveWindow(out string) (string, bool) {
	m := reActiveWindow.FindStringSubmatch(out)
	if m == nil || m[1] == "0x0" {
		return "", false
	}
	return m[1], true
}

// parseXprop reads the application class and window title from
// `xprop -id <id> WM_CLASS _NET_WM_NAME`.
func parseXprop(out string) (app, title string) {
	if m := reWMClass.FindStringSubmatch(out); m != nil {
		app = m[2]
		if app == "" {
			app = m[1]
		}
	}
	if m := reWMName.FindStringSubmatch(out); m != nil {
		title = strings.ReplaceAll(m[1], `\"`, `"`)
	}
	return app, title
}

// parseXprintidle converts xprintidle's millisecond output.
func parseXprintidle(out string) (time.Duration, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("desktop: xprintidle output %q: %w", out, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// parseHIDIdle reads HIDIdleTime (nanoseconds) from `ioreg -c IOHIDSystem`.
func parseHIDIdle(out string) (time.Duration, bool) {
	m := reHIDIdle.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	ns, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ns), true
}

type devtoolsTarget struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// devtoolsClient is the HTTP client for DevTools lookups, bounded by
// URLTimeout.
func devtoolsClient(cfg Config) *http.Client {
	return &http.Client{Timeout: cfg.URLTimeout}
}

// devtoolsURL asks a Chromium remote-debugging endpoint for its open pages
// and returns the URL of the one whose title begins the window title.
// Chromium lists the most recently focused page first, which is used when
// no title matches.
func devtoolsURL(ctx context.Context, client *http.Client, endpoint, windowTitle string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(endpoint, "/")+"/json/list", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("devtools: status %d", resp.StatusCode)
	}
	var targets []devtoolsTarget
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return "", fmt.Errorf("devtools: decode: %w", err)
	}

	first := ""
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if first == "" {
			first = t.URL
		}
		if t.Title != "" && strings.HasPrefix(windowTitle, t.Title) {
			return t.URL, nil
		}
	}
	return first, nil
}

// browserScripts maps macOS browser application names to the AppleScript
// returning the URL of their front tab.
var browserScripts = map[string]string{
	"Safari":         `tell application "Safari" to get URL of front document`,
	"Google Chrome":  `tell application "Google Chrome" to get URL of active tab of front window`,
	"Arc":            `tell application "Arc" to get URL of active tab of front window`,
	"Microsoft Edge": `tell application "Microsoft Edge" to get URL of active tab of front window`,
	"Brave Browser":  `tell application "Brave Browser" to get URL of active tab of front window`,
	"Chromium":       `tell application "Chromium" to get URL of active tab of front window`,
	"Firefox":        `tell application "Firefox" to get URL of active tab of front window`,
}

// frontmostScript prints the frontmost application name and its front window
// title on two lines.
const frontmostScript = `tell application "System Events"
	set p to first application process whose frontmost is true
	set n to name of p
	set t to ""
	try
		set t to name of front window of p
	end try
end tell
return n & linefeed & t`

func parseFrontmost(out string) (app, title string) {
	app, title, _ = strings.Cut(out, "\n")
	return strings.TrimSpace(app), strings.TrimSpace(title)
}

// isChromium reports whether an X11 class names a Chromium-based browser.
func isChromium(app string) bool {
	a := strings.ToLower(app)
	for _, k := range []string{"chrom", "brave", "microsoft-edge", "vivaldi"} {
		if strings.Contains(a, k) {
			return true
		}
	}
	return false
}
