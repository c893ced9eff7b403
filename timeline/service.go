// Package timeline is rewind's orchestrator. It wires the entry store, the
// capture scheduler, ingestion, the archive and search, and exposes them
// over HTTP and MCP.
//
// Startup failures are contained per subsystem: without a writable
// screenshots directory capture stays off, without an archive directory
// old screenshots stay hot, and search keeps working over whatever the
// database already holds.
//
// Usage:
//
//	svc, err := timeline.New(cfg, timeline.Deps{Probes: desktop.NewProbes(cfg.Desktop())})
//	defer svc.Close()
//	svc.Routes(router)
//	svc.RegisterMCP(mcpServer)
//	svc.Start(ctx)
package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/rewind/dbopen"
	"github.com/hazyhaar/rewind/desktop"
	"github.com/hazyhaar/rewind/embedder"
	"github.com/hazyhaar/rewind/horosafe"
	"github.com/hazyhaar/rewind/observability"
	"github.com/hazyhaar/rewind/ocr"
	"github.com/hazyhaar/rewind/timeline/internal/archive"
	"github.com/hazyhaar/rewind/timeline/internal/ingest"
	"github.com/hazyhaar/rewind/timeline/internal/scheduler"
	"github.com/hazyhaar/rewind/timeline/internal/search"
	"github.com/hazyhaar/rewind/timeline/internal/store"
)

// Entry is a stored moment.
type Entry = store.Entry

// Adhoc is a user-submitted capture.
type Adhoc = ingest.Adhoc

// Deps are the collaborators chosen by the caller. Nil fields fall back to
// no-op implementations.
type Deps struct {
	Probes   desktop.Probes
	OCR      ocr.Extractor
	Embedder embedder.Embedder
	Metrics  observability.Recorder
	Events   *observability.EventLogger
	Logger   *slog.Logger

	// DBOptions are passed to dbopen when opening the entries database.
	DBOptions []dbopen.Option

	Now func() time.Time
}

// Service is a running rewind instance.
type Service struct {
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time

	store   *store.Store
	search  *search.Engine
	ingest  *ingest.Pipeline     // nil when capture is unavailable
	archive *archive.Manager     // nil when archiving is unavailable
	sched   *scheduler.Scheduler // nil when capture is unavailable
	ctl     *scheduler.Control
	metrics observability.Recorder
	events  *observability.EventLogger

	wg sync.WaitGroup
}

// New opens the database and builds every subsystem that can start. Only a
// database failure is fatal.
func New(cfg *Config, deps Deps) (*Service, error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Embedder == nil {
		deps.Embedder = embedder.Noop{}
	}

	st, err := store.Open(cfg.DBPath, deps.DBOptions...)
	if err != nil {
		return nil, fmt.Errorf("timeline: open store: %w", err)
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		now:     now,
		store:   st,
		ctl:     scheduler.NewControl(!cfg.Capture.StartPaused),
		metrics: deps.Metrics,
		events:  deps.Events,
	}
	s.search = search.New(st, search.Config{
		Embedder: deps.Embedder,
		Now:      now,
		Logger:   logger,
		Metrics:  deps.Metrics,
	})

	s.ingest, err = ingest.New(st, ingest.Config{
		HotDir:    cfg.HotDir,
		MaxWidth:  cfg.Capture.MaxWidth,
		MaxHeight: cfg.Capture.MaxHeight,
		Quality:   cfg.Capture.Quality,
		OCR:       deps.OCR,
		Embedder:  deps.Embedder,
		Metrics:   deps.Metrics,
		Logger:    logger,
		Now:       now,
	})
	if err != nil {
		logger.Error("timeline: capture unavailable", "dir", cfg.HotDir, "error", err)
		s.ingest = nil
	}

	if !cfg.Archive.Disabled {
		s.archive, err = archive.New(archive.Config{
			HotDir:     cfg.HotDir,
			ArchiveDir: cfg.ArchiveDir,
			ColdAge:    cfg.Archive.ColdAge,
			Interval:   cfg.Archive.SweepInterval,
			Logger:     logger,
			Metrics:    deps.Metrics,
		})
		if err != nil {
			logger.Error("timeline: archive unavailable", "dir", cfg.ArchiveDir, "error", err)
			s.archive = nil
		}
	}

	if s.ingest != nil && !cfg.Capture.Disabled && deps.Probes.Grabber != nil {
		s.sched, err = scheduler.New(s.ctl, deps.Probes, s.ingest, scheduler.Config{
			Interval:      cfg.Capture.Interval,
			FastInterval:  cfg.Capture.FastInterval,
			IdleThreshold: cfg.Capture.IdleThreshold,
			SelfViewParts: scheduler.SelfViewParts(cfg.Port),
			ExcludeApps:   cfg.Capture.ExcludeApps,
			Gate:          cfg.Capture.Similarity,
			Logger:        logger,
			Metrics:       deps.Metrics,
			Now:           now,
		})
		if err != nil {
			st.Close()
			if s.archive != nil {
				s.archive.Close()
			}
			return nil, err
		}
	}
	return s, nil
}

// Start launches the capture loop and the archive sweeper. They stop when
// ctx is cancelled; Close waits for them.
func (s *Service) Start(ctx context.Context) {
	if s.sched != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("timeline: capture loop stopped", "error", err)
			}
		}()
	}
	if s.archive != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.archive.Run(ctx, func(c archive.Counts) {
				if c.Archived+c.Cleaned+c.Errors == 0 {
					return
				}
				details, _ := json.Marshal(c)
				s.event(ctx, observability.Event{
					Type:    observability.EventArchiveSweep,
					Details: string(details),
					Success: c.Errors == 0,
				})
			})
		}()
	}
	s.logger.Info("timeline: started",
		"db", s.cfg.DBPath,
		"capture", s.sched != nil,
		"archive", s.archive != nil,
		"active", s.ctl.IsActive())
}

// Close waits for background loops, which must already be stopping, and
// releases resources.
func (s *Service) Close() error {
	s.wg.Wait()
	if s.archive != nil {
		s.archive.Close()
	}
	return s.store.Close()
}

// Search runs a query; see the search package for the syntax.
func (s *Service) Search(ctx context.Context, q string) ([]*Entry, error) {
	return s.search.Search(ctx, q)
}

// Entry returns the entry recorded at ts.
func (s *Service) Entry(ctx context.Context, ts int64) (*Entry, error) {
	e, err := s.store.GetByTimestamp(ctx, ts)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

// Timeline returns every entry timestamp, newest first.
func (s *Service) Timeline(ctx context.Context) ([]int64, error) {
	return s.store.ListTimestamps(ctx)
}

// Screenshot returns the image bytes for name from the hot directory or,
// failing that, the archive.
func (s *Service) Screenshot(name string) ([]byte, error) {
	if err := horosafe.ValidateFilename(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p, err := horosafe.SafePath(s.cfg.HotDir, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	data, err := os.ReadFile(p)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if s.archive == nil {
		return nil, ErrNotFound
	}
	data, err = s.archive.Fetch(name)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, archive.ErrBadFilename), errors.Is(err, archive.ErrNotArchived):
		return nil, ErrNotFound
	case errors.Is(err, archive.ErrCorrupt):
		s.logger.Warn("timeline: corrupt archive file", "file", name)
		return nil, ErrNotFound
	}
	return nil, err
}

// IsActive reports whether capture is running.
func (s *Service) IsActive() bool { return s.ctl.IsActive() }

// Pause stops capture.
func (s *Service) Pause(ctx context.Context) {
	if s.ctl.Pause() {
		s.logger.Info("timeline: capture paused")
		s.event(ctx, observability.Event{Type: observability.EventCapturePaused, Success: true})
	}
}

// Resume restarts capture.
func (s *Service) Resume(ctx context.Context) {
	if s.ctl.Resume() {
		s.logger.Info("timeline: capture resumed")
		s.event(ctx, observability.Event{Type: observability.EventCaptureResumed, Success: true})
	}
}

// Toggle flips capture and returns whether it is now active.
func (s *Service) Toggle(ctx context.Context) bool {
	if s.ctl.IsActive() {
		s.Pause(ctx)
	} else {
		s.Resume(ctx)
	}
	return s.ctl.IsActive()
}

// Status is "active" or "paused".
func (s *Service) Status() string {
	if s.ctl.IsActive() {
		return "active"
	}
	return "paused"
}

// IngestAdhoc stores a user-submitted capture. A nil entry with a nil
// error means another entry already holds this second.
func (s *Service) IngestAdhoc(ctx context.Context, a Adhoc) (*Entry, error) {
	if s.ingest == nil {
		return nil, ErrCaptureDisabled
	}
	e, err := s.ingest.IngestAdhoc(ctx, a)
	if errors.Is(err, ingest.ErrBadImage) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return nil, err
	}
	if e != nil {
		s.event(ctx, observability.Event{
			Type:     observability.EventAdhocIngested,
			EntityID: strconv.FormatInt(e.Timestamp, 10),
			Details:  fmt.Sprintf(`{"filename":%q}`, e.Filename),
			Success:  true,
		})
	}
	return e, nil
}

// SweepArchive runs one archive sweep now.
func (s *Service) SweepArchive(ctx context.Context) (archive.Counts, error) {
	if s.archive == nil {
		return archive.Counts{}, ErrArchiveDisabled
	}
	return s.archive.Sweep(ctx, 0)
}

// Health summarises subsystem state.
type Health struct {
	Status  string `json:"status"`
	Capture string `json:"capture"`
	Archive bool   `json:"archive"`
	Entries int    `json:"entries"`
}

func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Capture: s.Status(), Archive: s.archive != nil}
	if s.sched == nil {
		h.Capture = "unavailable"
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		h.Status = "degraded"
	}
	h.Entries = n
	return h
}

func (s *Service) event(ctx context.Context, e observability.Event) {
	if s.events != nil {
		s.events.Log(context.WithoutCancel(ctx), e)
	}
}
