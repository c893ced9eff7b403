package desktop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseActiveWindow(t *testing.T) {
	id, ok := parseActiveWindow("_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3c00007")
	if !ok || id != "0x3c00007" {
		t.Fatalf("got %q, %v", id, ok)
	}
	if _, ok := parseActiveWindow("_NET_ACTIVE_WINDOW(WINDOW): window id # 0x0"); ok {
		t.Fatal("0x0 means no focused window")
	}
	if _, ok := parseActiveWindow("garbage"); ok {
		t.Fatal("garbage parsed")
	}
}

func TestParseXprop(t *testing.T) {
	out := `WM_CLASS(STRING) = "google-chrome", "Google-chrome"
_NET_WM_NAME(UTF8_STRING) = "Pull requests \"draft\" - Google Chrome"`
	app, title := parseXprop(out)
	if app != "Google-chrome" {
		t.Errorf("app: got %q", app)
	}
	if title != `Pull requests "draft" - Google Chrome` {
		t.Errorf("title: got %q", title)
	}

	app, title = parseXprop("WM_CLASS:  not found.")
	if app != "" || title != "" {
		t.Errorf("missing props: got %q %q", app, title)
	}
}

func TestParseXprintidle(t *testing.T) {
	d, err := parseXprintidle("12500\n")
	if err != nil || d != 12500*time.Millisecond {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := parseXprintidle("n/a"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseHIDIdle(t *testing.T) {
	out := `    | |   "HIDIdleTime" = 3500000000
    | |   "HIDParameters" = {}`
	d, ok := parseHIDIdle(out)
	if !ok || d != 3500*time.Millisecond {
		t.Fatalf("got %v, %v", d, ok)
	}
}

func TestParseFrontmost(t *testing.T) {
	app, title := parseFrontmost("Safari\nApple - Start\n")
	if app != "Safari" || title != "Apple - Start" {
		t.Fatalf("got %q %q", app, title)
	}
	app, title = parseFrontmost("Finder")
	if app != "Finder" || title != "" {
		t.Fatalf("no window: got %q %q", app, title)
	}
}

func TestDevtoolsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/list" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]devtoolsTarget{
			{Type: "service_worker", Title: "sw", URL: "chrome-extension://x"},
			{Type: "page", Title: "Inbox", URL: "https://mail.example.com/"},
			{Type: "page", Title: "Docs", URL: "https://docs.example.com/a"},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	u, err := devtoolsURL(ctx, srv.Client(), srv.URL, "Docs - Chromium")
	if err != nil {
		t.Fatal(err)
	}
	if u != "https://docs.example.com/a" {
		t.Fatalf("matched url: got %q", u)
	}

	u, _ = devtoolsURL(ctx, srv.Client(), srv.URL, "Unrelated")
	if u != "https://mail.example.com/" {
		t.Fatalf("fallback url: got %q", u)
	}
}

func TestIsChromium(t *testing.T) {
	for _, app := range []string{"Google-chrome", "Chromium-browser", "Brave-browser"} {
		if !isChromium(app) {
			t.Errorf("%q should be chromium", app)
		}
	}
	if isChromium("firefox") {
		t.Error("firefox is not chromium")
	}
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, err := run(context.Background(), 50*time.Millisecond, "sleep", "5")
	if err == nil {
		t.Skip("sleep unavailable or returned early")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("probe not bounded: took %v", time.Since(start))
	}
}

func TestNoopProbes(t *testing.T) {
	if (NoIdle{}).Idle(context.Background()) != 0 {
		t.Fatal("NoIdle must report active")
	}
	if (NoContext{}).Active(context.Background()) != (Context{}) {
		t.Fatal("NoContext must be empty")
	}
}

// WHAT: Defaults give external commands 500ms and the browser URL lookup 1s.
// WHY: a DevTools round trip is slower than xprop; a shared 500ms bound dropped URLs.
func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.ProbeTimeout != 500*time.Millisecond {
		t.Errorf("ProbeTimeout: got %v", c.ProbeTimeout)
	}
	if c.URLTimeout != time.Second {
		t.Errorf("URLTimeout: got %v", c.URLTimeout)
	}

	c = Config{ProbeTimeout: 200 * time.Millisecond, URLTimeout: 3 * time.Second}
	c.defaults()
	if c.ProbeTimeout != 200*time.Millisecond || c.URLTimeout != 3*time.Second {
		t.Errorf("explicit values overridden: %v %v", c.ProbeTimeout, c.URLTimeout)
	}
}

// WHAT: A DevTools endpoint slower than the command timeout still answers.
// WHY: the URL lookup runs under URLTimeout, not the command timeout.
func TestDevtoolsURL_UsesURLTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		json.NewEncoder(w).Encode([]devtoolsTarget{
			{Type: "page", Title: "Docs", URL: "https://example.org/docs"},
		})
	}))
	defer srv.Close()

	cfg := Config{ProbeTimeout: 50 * time.Millisecond}
	cfg.defaults()
	u, err := devtoolsURL(context.Background(), devtoolsClient(cfg), srv.URL, "Docs - Chromium")
	if err != nil {
		t.Fatal(err)
	}
	if u != "https://example.org/docs" {
		t.Errorf("url: got %q", u)
	}
}
