// Package ingest turns an accepted frame into a stored, searchable entry:
// downscale and save the artifact, OCR the full-resolution frame, embed the
// text, derive a title, and insert.
//
// OCR and embedding failures degrade to empty text and an empty vector.
// Only a failure to save the artifact or a hard database error aborts a
// frame. A duplicate timestamp is reported as (nil, nil) and the artifact
// stays on disk.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"image"
	_ "image/gif" // ad-hoc upload decoders
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	_ "golang.org/x/image/webp"

	"github.com/hazyhaar/rewind/desktop"
	"github.com/hazyhaar/rewind/embedder"
	"github.com/hazyhaar/rewind/framediff"
	"github.com/hazyhaar/rewind/idgen"
	"github.com/hazyhaar/rewind/observability"
	"github.com/hazyhaar/rewind/ocr"
	"github.com/hazyhaar/rewind/timeline/internal/store"
)

const (
	// Ext is the artifact extension.
	Ext = ".jpg"

	UnknownApp        = "Unknown App"
	UnknownAdhocApp   = "Unknown App (Adhoc)"
	UnknownAdhocTitle = "Unknown Title (Adhoc)"
)

// ErrBadImage is returned for ad-hoc uploads that do not decode.
var ErrBadImage = errors.New("ingest: unreadable image")

// Store is the write side of the entry store.
type Store interface {
	Insert(ctx context.Context, e *store.Entry) (id int64, inserted bool, err error)
}

// Config for a Pipeline.
type Config struct {
	HotDir    string
	MaxWidth  int // default 960
	MaxHeight int // default 600
	Quality   int // JPEG quality, default 75

	OCR      ocr.Extractor     // nil means no text
	Embedder embedder.Embedder // nil means no vectors
	Metrics  observability.Recorder
	Logger   *slog.Logger

	// Suffix generates the random part of artifact names.
	Suffix idgen.Generator
	Now    func() time.Time
}

func (c *Config) defaults() {
	if c.MaxWidth <= 0 {
		c.MaxWidth = 960
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = 600
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = 75
	}
	if c.OCR == nil {
		c.OCR = ocr.Noop{}
	}
	if c.Embedder == nil {
		c.Embedder = embedder.Noop{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Suffix == nil {
		c.Suffix = idgen.Hex(4)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Pipeline ingests frames. It is safe for concurrent use.
type Pipeline struct {
	st     Store
	cfg    Config
	strict *bluemonday.Policy
}

// New creates the hot directory if needed.
func New(st Store, cfg Config) (*Pipeline, error) {
	cfg.defaults()
	if cfg.HotDir == "" {
		return nil, fmt.Errorf("ingest: hot directory is required")
	}
	if err := os.MkdirAll(cfg.HotDir, 0o755); err != nil {
		return nil, fmt.Errorf("ingest: create hot dir: %w", err)
	}
	return &Pipeline{st: st, cfg: cfg, strict: bluemonday.StrictPolicy()}, nil
}

// Ingest stores a scheduled capture of monitor taken at ts.
func (p *Pipeline) Ingest(ctx context.Context, frame image.Image, monitor int, ts int64, c desktop.Context) (*store.Entry, error) {
	start := time.Now()
	prefix := strconv.FormatInt(ts, 10) + "_" + strconv.Itoa(monitor) + "_"
	name, err := p.save(framediff.Thumbnail(frame, p.cfg.MaxWidth, p.cfg.MaxHeight), prefix, p.cfg.Suffix, ts)
	if err != nil {
		return nil, err
	}

	app := c.App
	if strings.TrimSpace(app) == "" {
		app = UnknownApp
	}
	e := &store.Entry{
		App:       app,
		Title:     SmartTitle(c.App, c.Title, c.URL),
		Timestamp: ts,
		Filename:  name,
		PageURL:   c.URL,
	}
	return p.finish(ctx, frame, e, start)
}

// Adhoc is an externally submitted capture.
type Adhoc struct {
	Image io.Reader
	App   string
	Title string
	URL   string
}

// IngestAdhoc stores a user-supplied image. There is no duplicate-frame
// check, and the image is only downscaled when it exceeds the bounds.
func (p *Pipeline) IngestAdhoc(ctx context.Context, a Adhoc) (*store.Entry, error) {
	start := time.Now()
	img, _, err := image.Decode(a.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	ts := p.cfg.Now().Unix()
	name, err := p.save(framediff.Thumbnail(img, p.cfg.MaxWidth, p.cfg.MaxHeight),
		strconv.FormatInt(ts, 10)+"_adhoc_", idgen.Hex(16), ts)
	if err != nil {
		return nil, err
	}

	e := &store.Entry{
		App:       p.clean(a.App, UnknownAdhocApp),
		Title:     p.clean(a.Title, UnknownAdhocTitle),
		Timestamp: ts,
		Filename:  name,
		PageURL:   p.clean(a.URL, ""),
	}
	return p.finish(ctx, img, e, start)
}

// clean strips markup from user-supplied metadata.
func (p *Pipeline) clean(s, fallback string) string {
	s = strings.TrimSpace(html.UnescapeString(p.strict.Sanitize(s)))
	if s == "" {
		return fallback
	}
	return s
}

// finish runs OCR and embedding on the full frame and inserts e.
func (p *Pipeline) finish(ctx context.Context, frame image.Image, e *store.Entry, start time.Time) (*store.Entry, error) {
	log := p.cfg.Logger.With("file", e.Filename, "ts", e.Timestamp)

	text, err := p.cfg.OCR.Extract(ctx, frame)
	if err != nil {
		log.Warn("ingest: ocr failed", "ocr", p.cfg.OCR.Name(), "error", err)
		text = ""
	}
	e.Text = text

	e.Embedding = []float32{}
	if strings.TrimSpace(text) != "" {
		vec, err := p.cfg.Embedder.Embed(ctx, text)
		if err != nil {
			log.Warn("ingest: embedding failed", "model", p.cfg.Embedder.Model(), "error", err)
		} else if vec != nil {
			e.Embedding = vec
		}
	}

	_, inserted, err := p.st.Insert(ctx, e)
	if err != nil {
		log.Error("ingest: insert failed", "error", err)
		return nil, err
	}
	if !inserted {
		log.Info("ingest: duplicate timestamp, entry skipped")
		p.record(observability.MetricEntriesDuplicate, 1, "count")
		return nil, nil
	}

	p.record(observability.MetricEntriesIngested, 1, "count")
	p.record(observability.MetricIngestDurationMs, float64(time.Since(start).Milliseconds()), "ms")
	log.Debug("ingest: stored", "app", e.App, "title", e.Title, "chars", len(e.Text), "dim", len(e.Embedding))
	return e, nil
}

func (p *Pipeline) record(name string, v float64, unit string) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordSimple(name, v, unit)
	}
}

// save encodes img as JPEG under prefix+suffix+Ext. The file is created
// exclusively so an existing artifact is never overwritten; a collision
// draws a new suffix. The modification time is set to ts: the archive files
// by mtime day and looks up by the filename's day, and the two must agree.
func (p *Pipeline) save(img image.Image, prefix string, suffix idgen.Generator, ts int64) (string, error) {
	for range 3 {
		name := prefix + suffix() + Ext
		path := filepath.Join(p.cfg.HotDir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("ingest: create %s: %w", name, err)
		}
		if err := jpeg.Encode(f, img, &jpeg.Options{Quality: p.cfg.Quality}); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("ingest: encode %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("ingest: close %s: %w", name, err)
		}
		at := time.Unix(ts, 0)
		if err := os.Chtimes(path, at, at); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("ingest: set time %s: %w", name, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("ingest: no free filename for prefix %s", prefix)
}
