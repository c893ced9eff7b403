package timeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/rewind/dbopen"
	"github.com/hazyhaar/rewind/observability"
	"github.com/hazyhaar/rewind/timeline/internal/store"
)

type staticOCR string

func (s staticOCR) Extract(context.Context, image.Image) (string, error) { return string(s), nil }
func (staticOCR) Name() string                                           { return "static" }

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{StorageRoot: t.TempDir()}
}

func testService(t *testing.T, cfg *Config, deps Deps) *Service {
	t.Helper()
	if deps.OCR == nil {
		deps.OCR = staticOCR("meeting notes")
	}
	s, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestService_AdhocSearchEntry(t *testing.T) {
	s := testService(t, testConfig(t), Deps{Now: func() time.Time { return time.Unix(1700000000, 0) }})
	ctx := context.Background()

	e, err := s.IngestAdhoc(ctx, Adhoc{Image: bytes.NewReader(pngBytes(t, 40, 30)), App: "Notes"})
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Timestamp != 1700000000 {
		t.Fatalf("entry: %+v", e)
	}

	dup, err := s.IngestAdhoc(ctx, Adhoc{Image: bytes.NewReader(pngBytes(t, 40, 30))})
	if err != nil || dup != nil {
		t.Fatalf("same-second ingest: got %+v, %v", dup, err)
	}

	res, err := s.Search(ctx, "meeting")
	if err != nil || len(res) != 1 {
		t.Fatalf("search: %v, %v", res, err)
	}
	got, err := s.Entry(ctx, 1700000000)
	if err != nil || got.App != "Notes" {
		t.Fatalf("entry: %+v, %v", got, err)
	}
	if _, err := s.Entry(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing entry: got %v", err)
	}

	img, err := s.Screenshot(e.Filename)
	if err != nil || len(img) == 0 {
		t.Fatalf("screenshot: %d bytes, %v", len(img), err)
	}
}

func TestService_AdhocBadImage(t *testing.T) {
	s := testService(t, testConfig(t), Deps{})
	_, err := s.IngestAdhoc(context.Background(), Adhoc{Image: bytes.NewReader([]byte("nope"))})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestService_ScreenshotFromArchive(t *testing.T) {
	cfg := testConfig(t)
	s := testService(t, cfg, Deps{})
	ctx := context.Background()

	ts := time.Now().Add(-72 * time.Hour).Truncate(time.Second)
	fname := strconv.FormatInt(ts.Unix(), 10) + "_0_0badc0de.jpg"
	hot := filepath.Join(cfg.HotDir, fname)
	want := []byte("jpeg bytes stand-in")
	if err := os.WriteFile(hot, want, 0o644); err != nil {
		t.Fatal(err)
	}
	os.Chtimes(hot, ts, ts)

	c, err := s.SweepArchive(ctx)
	if err != nil || c.Archived != 1 {
		t.Fatalf("sweep: %+v, %v", c, err)
	}
	if _, err := os.Stat(hot); !os.IsNotExist(err) {
		t.Fatal("hot copy remains")
	}
	got, err := s.Screenshot(fname)
	if err != nil || !bytes.Equal(got, want) {
		t.Fatalf("archived screenshot: %q, %v", got, err)
	}
}

func TestService_ScreenshotErrors(t *testing.T) {
	s := testService(t, testConfig(t), Deps{})
	if _, err := s.Screenshot("../rewind.db"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("traversal: got %v", err)
	}
	if _, err := s.Screenshot("1700000000_0_missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: got %v", err)
	}
	if _, err := s.Screenshot("nodigits.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("no timestamp: got %v", err)
	}
}

func TestService_CaptureUnavailable(t *testing.T) {
	// WHAT: the screenshots directory cannot be created.
	// WHY: capture must switch off while search over existing data keeps working.
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.StorageRoot, "blocked")
	os.WriteFile(blocker, nil, 0o644)
	cfg.HotDir = filepath.Join(blocker, "screenshots")
	cfg.ArchiveDir = filepath.Join(blocker, "archive")

	st, err := store.Open(filepath.Join(cfg.StorageRoot, "rewind.db"))
	if err != nil {
		t.Fatal(err)
	}
	st.Insert(context.Background(), &store.Entry{Timestamp: 5, Text: "older entry"})
	st.Close()

	s := testService(t, cfg, Deps{})
	if _, err := s.IngestAdhoc(context.Background(), Adhoc{Image: bytes.NewReader(pngBytes(t, 4, 4))}); !errors.Is(err, ErrCaptureDisabled) {
		t.Fatalf("adhoc: got %v", err)
	}
	if _, err := s.SweepArchive(context.Background()); !errors.Is(err, ErrArchiveDisabled) {
		t.Fatalf("sweep: got %v", err)
	}
	res, err := s.Search(context.Background(), "older")
	if err != nil || len(res) != 1 {
		t.Fatalf("search: %v, %v", res, err)
	}
	h := s.Health(context.Background())
	if h.Capture != "unavailable" || h.Archive || h.Entries != 1 {
		t.Fatalf("health: %+v", h)
	}
}

func TestService_ToggleEvents(t *testing.T) {
	obs := dbopen.OpenMemory(t)
	if err := observability.Init(obs); err != nil {
		t.Fatal(err)
	}
	events := observability.NewEventLogger(obs)
	s := testService(t, testConfig(t), Deps{Events: events})
	ctx := context.Background()

	if s.Status() != "active" {
		t.Fatalf("initial status %q", s.Status())
	}
	if s.Toggle(ctx) || s.Status() != "paused" {
		t.Fatal("toggle should pause")
	}
	s.Pause(ctx) // no-op, no second event
	if !s.Toggle(ctx) || s.Status() != "active" {
		t.Fatal("toggle should resume")
	}

	if n, _ := events.Count(ctx, observability.EventCapturePaused); n != 1 {
		t.Errorf("paused events: %d", n)
	}
	if n, _ := events.Count(ctx, observability.EventCaptureResumed); n != 1 {
		t.Errorf("resumed events: %d", n)
	}
}

func TestService_StartPaused(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.StartPaused = true
	s := testService(t, cfg, Deps{})
	if s.IsActive() {
		t.Fatal("want paused")
	}
}

func TestService_StartStop(t *testing.T) {
	s := testService(t, testConfig(t), Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background loops did not stop")
	}
}
