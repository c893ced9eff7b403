package scheduler

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/rewind/desktop"
	"github.com/hazyhaar/rewind/timeline/internal/store"
)

func solid(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

var (
	white = solid(color.White)
	black = solid(color.Black)
)

type fakeGrabber struct {
	frames []*image.RGBA
	err    error
	calls  int
}

func (g *fakeGrabber) Grab(context.Context) ([]*image.RGBA, error) {
	g.calls++
	return g.frames, g.err
}

type fakeIdle time.Duration

func (f *fakeIdle) Idle(context.Context) time.Duration { return time.Duration(*f) }

type fakeContext struct{ c desktop.Context }

func (f *fakeContext) Active(context.Context) desktop.Context { return f.c }

type ingestCall struct {
	monitor int
	ts      int64
	app     string
}

type recordingIngester struct {
	mu    sync.Mutex
	calls []ingestCall
}

func (r *recordingIngester) Ingest(_ context.Context, _ image.Image, monitor int, ts int64, c desktop.Context) (*store.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ingestCall{monitor, ts, c.App})
	return &store.Entry{Timestamp: ts}, nil
}

type harness struct {
	s    *Scheduler
	grab *fakeGrabber
	idle *fakeIdle
	ctx  *fakeContext
	ing  *recordingIngester
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		grab: &fakeGrabber{frames: []*image.RGBA{white}},
		idle: new(fakeIdle),
		ctx:  &fakeContext{},
		ing:  &recordingIngester{},
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Unix(1000, 0) }
	}
	if cfg.SelfViewParts == nil {
		cfg.SelfViewParts = SelfViewParts(8082)
	}
	s, err := New(NewControl(true), desktop.Probes{Grabber: h.grab, Idle: h.idle, Context: h.ctx}, h.ing, cfg)
	if err != nil {
		t.Fatal(err)
	}
	h.s = s
	return h
}

func (h *harness) tick(t *testing.T) time.Duration {
	t.Helper()
	d, err := h.s.tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestTick_FirstCaptureBecomesBaseline(t *testing.T) {
	h := newHarness(t, Config{})
	if d := h.tick(t); d != 3*time.Second {
		t.Fatalf("sleep: got %v, want 3s", d)
	}
	if len(h.ing.calls) != 0 {
		t.Fatalf("ingested without a baseline: %v", h.ing.calls)
	}
	// Same screen again is a duplicate; active user gets the fast interval.
	if d := h.tick(t); d != time.Second {
		t.Fatalf("sleep: got %v, want 1s", d)
	}
	if len(h.ing.calls) != 0 {
		t.Fatalf("duplicate ingested: %v", h.ing.calls)
	}
}

func TestTick_ChangeIsIngestedOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.tick(t)

	h.grab.frames = []*image.RGBA{black}
	h.ctx.c = desktop.Context{App: "Terminal"}
	if d := h.tick(t); d != 3*time.Second {
		t.Fatalf("sleep: got %v, want 3s", d)
	}
	if len(h.ing.calls) != 1 || h.ing.calls[0] != (ingestCall{0, 1000, "Terminal"}) {
		t.Fatalf("calls: %+v", h.ing.calls)
	}

	// The accepted frame is the new baseline.
	h.tick(t)
	if len(h.ing.calls) != 1 {
		t.Fatalf("unchanged frame ingested again: %+v", h.ing.calls)
	}
}

func TestTick_Idle(t *testing.T) {
	h := newHarness(t, Config{})
	*h.idle = fakeIdle(30 * time.Second)
	if d := h.tick(t); d != 5*time.Second {
		t.Fatalf("sleep: got %v, want 5s", d)
	}
	if h.grab.calls != 0 {
		t.Fatal("captured while idle")
	}

	h2 := newHarness(t, Config{IdleThreshold: 4 * time.Second})
	*h2.idle = fakeIdle(4 * time.Second)
	if d := h2.tick(t); d != 2*time.Second {
		t.Fatalf("sleep: got %v, want 2s", d)
	}
}

func TestTick_CaptureFailureBacksOff(t *testing.T) {
	h := newHarness(t, Config{})
	h.grab.err = desktop.ErrNoDisplay
	if d := h.tick(t); d != 5*time.Second {
		t.Fatalf("sleep: got %v, want 5s", d)
	}
	h.grab.err = nil
	h.grab.frames = nil
	if d := h.tick(t); d != 5*time.Second {
		t.Fatalf("empty capture sleep: got %v, want 5s", d)
	}
}

func TestTick_SelfViewUpdatesBaselineWithoutIngest(t *testing.T) {
	h := newHarness(t, Config{})
	h.tick(t)

	h.grab.frames = []*image.RGBA{black}
	h.ctx.c = desktop.Context{App: "Firefox", URL: "http://127.0.0.1:8082/search?q=x"}
	if d := h.tick(t); d != 3*time.Second {
		t.Fatalf("sleep: got %v, want 3s", d)
	}
	if len(h.ing.calls) != 0 {
		t.Fatalf("own UI ingested: %+v", h.ing.calls)
	}

	// Leaving the UI with the same pixels on screen is not a change.
	h.ctx.c = desktop.Context{App: "Firefox", URL: "https://example.com"}
	h.tick(t)
	if len(h.ing.calls) != 0 {
		t.Fatalf("self-view frame ingested after leaving: %+v", h.ing.calls)
	}
}

func TestTick_ExcludedApp(t *testing.T) {
	h := newHarness(t, Config{ExcludeApps: []string{"*password*", "KeePassXC"}})
	h.tick(t)

	for _, app := range []string{"1Password", "keepassxc"} {
		h.grab.frames = []*image.RGBA{black}
		h.ctx.c = desktop.Context{App: app}
		h.tick(t)
		h.grab.frames = []*image.RGBA{white}
		h.tick(t)
	}
	if len(h.ing.calls) != 0 {
		t.Fatalf("excluded app ingested: %+v", h.ing.calls)
	}
}

func TestNew_BadExcludePattern(t *testing.T) {
	_, err := New(NewControl(true), desktop.Probes{Grabber: &fakeGrabber{}}, &recordingIngester{}, Config{ExcludeApps: []string{"[abc"}})
	if err == nil {
		t.Fatal("expected error for malformed glob")
	}
}

func TestTick_MonitorCountChange(t *testing.T) {
	h := newHarness(t, Config{})
	h.tick(t)

	h.grab.frames = []*image.RGBA{black, black}
	if d := h.tick(t); d != 3*time.Second {
		t.Fatalf("sleep: got %v, want 3s", d)
	}
	if len(h.ing.calls) != 0 {
		t.Fatalf("ingested on monitor change: %+v", h.ing.calls)
	}
	if len(h.s.base.slots) != 2 {
		t.Fatalf("slots: got %d, want 2", len(h.s.base.slots))
	}
	h.tick(t)
	if len(h.ing.calls) != 0 {
		t.Fatalf("new baseline not used: %+v", h.ing.calls)
	}
}

func TestTick_MonitorsShareTimestamp(t *testing.T) {
	h := newHarness(t, Config{MonitorPause: time.Millisecond})
	h.grab.frames = []*image.RGBA{white, white}
	h.tick(t)

	h.grab.frames = []*image.RGBA{black, black}
	h.tick(t)
	if len(h.ing.calls) != 2 {
		t.Fatalf("calls: %+v", h.ing.calls)
	}
	if h.ing.calls[0].ts != h.ing.calls[1].ts || h.ing.calls[0].monitor != 0 || h.ing.calls[1].monitor != 1 {
		t.Fatalf("calls: %+v", h.ing.calls)
	}
}

func TestTick_BlocksWhilePaused(t *testing.T) {
	h := newHarness(t, Config{})
	h.s.ctl.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := h.s.tick(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if h.grab.calls != 0 {
		t.Fatal("captured while paused")
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.s.tick(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	h.s.ctl.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resume did not wake the scheduler")
	}
}

func TestRun_SeedsBaselineAndStops(t *testing.T) {
	h := newHarness(t, Config{Interval: 5 * time.Millisecond, FastInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := h.s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run: got %v", err)
	}
	if len(h.ing.calls) != 0 {
		t.Fatalf("unchanged screen ingested: %+v", h.ing.calls)
	}
	if h.grab.calls < 2 {
		t.Fatalf("grab calls: %d", h.grab.calls)
	}
}

func TestControl(t *testing.T) {
	c := NewControl(true)
	if !c.IsActive() {
		t.Fatal("want active")
	}
	if c.Resume() {
		t.Error("resume on active reported a change")
	}
	if !c.Pause() || c.IsActive() {
		t.Error("pause failed")
	}
	if c.Pause() {
		t.Error("second pause reported a change")
	}
	if !c.Toggle() || !c.IsActive() {
		t.Error("toggle from paused should activate")
	}
	if c.Toggle() || c.IsActive() {
		t.Error("toggle from active should pause")
	}
}
