// Package scheduler runs the capture loop: wait while paused, skip while the
// user is idle, grab every monitor, drop frames that match the monitor's
// baseline, and hand the rest to ingestion.
package scheduler

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/hazyhaar/rewind/desktop"
	"github.com/hazyhaar/rewind/framediff"
	"github.com/hazyhaar/rewind/observability"
	"github.com/hazyhaar/rewind/timeline/internal/store"
)

// Ingester stores an accepted frame.
type Ingester interface {
	Ingest(ctx context.Context, frame image.Image, monitor int, ts int64, c desktop.Context) (*store.Entry, error)
}

// Config tunes pacing and filtering.
type Config struct {
	Interval      time.Duration // default 3s
	FastInterval  time.Duration // after an unchanged tick, default 1s
	IdleThreshold time.Duration // default 10s
	MaxIdleSleep  time.Duration // default 5s
	RetryBackoff  time.Duration // after a failed grab, default 5s
	SettleDelay   time.Duration // after self-view or a monitor change, default 3s
	MonitorPause  time.Duration // between ingested monitors, default 50ms

	// SelfViewParts are URL fragments identifying rewind's own UI.
	SelfViewParts []string

	// ExcludeApps are glob patterns matched against the lowercased app
	// name. Matching apps are treated like self-view.
	ExcludeApps []string

	Gate    framediff.Config
	Logger  *slog.Logger
	Metrics observability.Recorder
	Now     func() time.Time
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.FastInterval <= 0 {
		c.FastInterval = time.Second
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = 10 * time.Second
	}
	if c.MaxIdleSleep <= 0 {
		c.MaxIdleSleep = 5 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 3 * time.Second
	}
	if c.MonitorPause <= 0 {
		c.MonitorPause = 50 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// SelfViewParts returns the URL fragments of a UI served on port.
func SelfViewParts(port int) []string {
	return []string{
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
		fmt.Sprintf("0.0.0.0:%d", port),
	}
}

// Scheduler is the capture loop. Run it in a single goroutine.
type Scheduler struct {
	cfg     Config
	ctl     *Control
	probes  desktop.Probes
	ing     Ingester
	gate    *framediff.Gate
	exclude []glob.Glob
	base    baselines
}

// New validates the exclusion patterns. Nil probes fall back to the no-op
// implementations.
func New(ctl *Control, probes desktop.Probes, ing Ingester, cfg Config) (*Scheduler, error) {
	cfg.defaults()
	if probes.Grabber == nil {
		return nil, fmt.Errorf("scheduler: no frame grabber")
	}
	if probes.Idle == nil {
		probes.Idle = desktop.NoIdle{}
	}
	if probes.Context == nil {
		probes.Context = desktop.NoContext{}
	}
	s := &Scheduler{
		cfg:    cfg,
		ctl:    ctl,
		probes: probes,
		ing:    ing,
		gate:   framediff.NewGate(cfg.Gate),
	}
	for _, p := range cfg.ExcludeApps {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("scheduler: exclude pattern %q: %w", p, err)
		}
		s.exclude = append(s.exclude, g)
	}
	return s, nil
}

// Run loops until ctx is cancelled. It seeds the baselines from an initial
// capture so the first tick does not ingest an unchanged screen.
func (s *Scheduler) Run(ctx context.Context) error {
	if frames, err := s.probes.Grabber.Grab(ctx); err == nil && len(frames) > 0 {
		if err := s.base.reset(s.gate, frames); err != nil {
			s.cfg.Logger.Warn("scheduler: seed baseline", "error", err)
		}
	} else {
		s.cfg.Logger.Warn("scheduler: initial capture failed, will retry", "error", err)
	}

	for {
		d, err := s.tick(ctx)
		if err != nil {
			return err
		}
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
}

// tick runs one iteration and returns how long to sleep before the next.
func (s *Scheduler) tick(ctx context.Context) (time.Duration, error) {
	if err := s.ctl.wait(ctx); err != nil {
		return 0, err
	}

	idle := s.probes.Idle.Idle(ctx)
	if idle >= s.cfg.IdleThreshold {
		return min(s.cfg.IdleThreshold/2, s.cfg.MaxIdleSleep), nil
	}

	frames, err := s.probes.Grabber.Grab(ctx)
	if err != nil || len(frames) == 0 {
		s.cfg.Logger.Warn("scheduler: capture failed", "error", err, "retry_in", s.cfg.RetryBackoff)
		return s.cfg.RetryBackoff, nil
	}
	s.record(observability.MetricFramesCaptured, float64(len(frames)))

	active := s.probes.Context.Active(ctx)
	if reason := s.skipReason(active); reason != "" {
		s.cfg.Logger.Debug("scheduler: skipping own or excluded view", "reason", reason, "app", active.App)
		s.reset(frames)
		return s.cfg.SettleDelay, nil
	}

	if !s.base.fits(len(frames)) {
		if s.base.stable {
			s.cfg.Logger.Info("scheduler: monitor count changed, reinitializing baseline",
				"from", len(s.base.slots), "to", len(frames))
			s.reset(frames)
			return s.cfg.SettleDelay, nil
		}
		// No baseline yet: adopt this capture and compare from the next tick.
		s.reset(frames)
		return s.cfg.Interval, nil
	}

	ts := s.cfg.Now().Unix()
	changed := 0
	for i, frame := range frames {
		v, err := s.gate.Compare(s.base.get(i), frame)
		if err != nil {
			s.cfg.Logger.Warn("scheduler: compare", "monitor", i, "error", err)
		}
		if v.Duplicate {
			s.record(observability.MetricFramesDuplicate, 1)
			continue
		}
		if changed > 0 && len(frames) > 1 {
			if err := sleep(ctx, s.cfg.MonitorPause); err != nil {
				return 0, err
			}
		}
		changed++
		s.base.set(i, v.Next)
		s.cfg.Logger.Debug("scheduler: change detected", "monitor", i, "mssim", v.MSSIM, "distance", v.Distance)

		if _, err := s.ing.Ingest(ctx, frame, i, ts, active); err != nil {
			s.cfg.Logger.Warn("scheduler: ingest failed", "monitor", i, "ts", ts, "error", err)
		}
	}

	// Idle users returned early, so an unchanged tick means an active user
	// looking at a still screen.
	if changed == 0 {
		return s.cfg.FastInterval, nil
	}
	return s.cfg.Interval, nil
}

func (s *Scheduler) reset(frames []*image.RGBA) {
	if err := s.base.reset(s.gate, frames); err != nil {
		s.cfg.Logger.Warn("scheduler: fingerprint baseline", "error", err)
	}
}

// skipReason is non-empty when the foreground shows rewind itself or an
// excluded application.
func (s *Scheduler) skipReason(c desktop.Context) string {
	if c.URL != "" {
		for _, part := range s.cfg.SelfViewParts {
			if part != "" && strings.Contains(c.URL, part) {
				return "self-view"
			}
		}
	}
	if c.App != "" {
		app := strings.ToLower(c.App)
		for _, g := range s.exclude {
			if g.Match(app) {
				return "excluded"
			}
		}
	}
	return ""
}

func (s *Scheduler) record(name string, v float64) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordSimple(name, v, "count")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
