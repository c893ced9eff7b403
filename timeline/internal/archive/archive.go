// Package archive moves aged screenshots from the hot directory into a
// zstd-compressed cold tier partitioned by day, and reads them back.
//
// The archive has no index. A file's location is derived from its name:
// archive/<YYYY-MM-DD>/<name>.zst, the date being that of the leading
// unix timestamp in the name. Sweep derives the same date from the file's
// modification time, which ingestion sets to that timestamp.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hazyhaar/rewind/horosafe"
	"github.com/hazyhaar/rewind/observability"
)

// Ext is appended to archived file names.
const Ext = ".zst"

// chunkSize is the streaming unit for compression.
const chunkSize = 16384

// maxDecoded caps the decompressed size of one archived screenshot.
const maxDecoded = 64 << 20

var (
	ErrBadFilename = errors.New("archive: filename has no leading timestamp")
	ErrNotArchived = errors.New("archive: not archived")
	ErrCorrupt     = errors.New("archive: corrupt archive file")
)

var leadingTS = regexp.MustCompile(`^(\d+)_`)

// Config controls the archive manager.
type Config struct {
	HotDir     string
	ArchiveDir string
	ColdAge    time.Duration  // default 24h
	Interval   time.Duration  // sweep period for Run, default 1h
	Location   *time.Location // day boundaries, default time.Local
	Logger     *slog.Logger
	Metrics    observability.Recorder // optional
}

func (c *Config) defaults() {
	if c.ColdAge <= 0 {
		c.ColdAge = 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Counts summarises one sweep.
type Counts struct {
	Archived int `json:"archived"`
	Cleaned  int `json:"cleaned"` // hot copies removed because the archive already had them
	Errors   int `json:"errors"`
}

// Manager owns the cold tier.
type Manager struct {
	cfg Config
	dec *zstd.Decoder
}

// New creates the archive root if needed. An error here means archiving is
// unavailable; callers keep serving hot files without it.
func New(cfg Config) (*Manager, error) {
	cfg.defaults()
	if cfg.HotDir == "" || cfg.ArchiveDir == "" {
		return nil, fmt.Errorf("archive: hot and archive directories are required")
	}
	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create root: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded))
	if err != nil {
		return nil, fmt.Errorf("archive: decoder: %w", err)
	}
	return &Manager{cfg: cfg, dec: dec}, nil
}

// Close releases the shared decoder.
func (m *Manager) Close() {
	m.dec.Close()
}

// Path returns where name is archived for a screenshot taken at t.
func (m *Manager) Path(name string, t time.Time) string {
	day := t.In(m.cfg.Location).Format("2006-01-02")
	return filepath.Join(m.cfg.ArchiveDir, day, name+Ext)
}

// Sweep archives every hot file whose modification time is older than
// coldAge. A zero coldAge uses the configured default. Per-file failures are
// counted and logged; the returned error is only for an unreadable hot
// directory or a cancelled context.
func (m *Manager) Sweep(ctx context.Context, coldAge time.Duration) (Counts, error) {
	if coldAge <= 0 {
		coldAge = m.cfg.ColdAge
	}
	var c Counts
	ents, err := os.ReadDir(m.cfg.HotDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, fmt.Errorf("archive: read hot dir: %w", err)
	}

	cutoff := time.Now().Add(-coldAge)
	for _, de := range ents {
		if err := ctx.Err(); err != nil {
			return c, err
		}
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue // removed since ReadDir
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		switch m.archiveOne(de.Name(), info.ModTime()) {
		case outcomeArchived:
			c.Archived++
		case outcomeCleaned:
			c.Cleaned++
		case outcomeFailed:
			c.Errors++
		}
	}

	if c.Archived+c.Cleaned+c.Errors > 0 {
		m.cfg.Logger.Info("archive: sweep done",
			"archived", c.Archived, "cleaned", c.Cleaned, "errors", c.Errors)
	}
	if r := m.cfg.Metrics; r != nil {
		r.RecordSimple(observability.MetricArchived, float64(c.Archived), "count")
		r.RecordSimple(observability.MetricArchiveCleaned, float64(c.Cleaned), "count")
		r.RecordSimple(observability.MetricArchiveErrors, float64(c.Errors), "count")
	}
	return c, nil
}

type outcome int

const (
	outcomeArchived outcome = iota
	outcomeCleaned
	outcomeFailed
)

func (m *Manager) archiveOne(name string, mtime time.Time) outcome {
	src := filepath.Join(m.cfg.HotDir, name)
	dst := m.Path(name, mtime)
	log := m.cfg.Logger.With("file", name)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		log.Warn("archive: create day dir", "error", err)
		return outcomeFailed
	}

	if info, err := os.Stat(dst); err == nil {
		if info.Size() > 0 {
			if err := os.Remove(src); err != nil {
				log.Warn("archive: remove stale hot copy", "error", err)
				return outcomeFailed
			}
			return outcomeCleaned
		}
		// Empty leftovers are not a valid frame; archive over them.
		os.Remove(dst)
	}

	if err := compressFile(src, dst); err != nil {
		log.Warn("archive: compress", "error", err)
		return outcomeFailed
	}
	if err := os.Remove(src); err != nil {
		// The archive copy is complete; next sweep cleans the hot copy.
		log.Warn("archive: remove hot original", "error", err)
	}
	return outcomeArchived
}

// compressFile streams src into dst through a temporary sibling. dst only
// appears once the stream is complete; on any failure the temporary file is
// removed and src is left alone.
func compressFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return err
	}
	buf := make([]byte, chunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := enc.Write(buf[:n]); werr != nil {
				enc.Close()
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			enc.Close()
			return rerr
		}
	}
	if err = enc.Close(); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// Fetch returns the original bytes of an archived screenshot. It never
// scans: a name without a leading timestamp fails with ErrBadFilename.
func (m *Manager) Fetch(name string) ([]byte, error) {
	if err := horosafe.ValidateFilename(name); err != nil {
		return nil, ErrBadFilename
	}
	ts, ok := filenameTime(name)
	if !ok {
		return nil, ErrBadFilename
	}

	f, err := os.Open(m.Path(name, ts))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotArchived
		}
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	defer f.Close()

	raw, err := horosafe.LimitedReadAll(f, maxDecoded)
	if err != nil {
		return nil, fmt.Errorf("archive: read: %w", err)
	}
	out, err := m.dec.DecodeAll(raw, nil)
	if err != nil || len(out) == 0 {
		return nil, ErrCorrupt
	}
	return out, nil
}

func filenameTime(name string) (time.Time, bool) {
	name = strings.TrimSuffix(name, Ext)
	mm := leadingTS.FindStringSubmatch(name)
	if mm == nil {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(mm[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// Run sweeps once immediately and then every Interval until ctx is done.
// onSweep, if non-nil, receives each sweep's counts.
func (m *Manager) Run(ctx context.Context, onSweep func(Counts)) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		c, err := m.Sweep(ctx, 0)
		if err != nil && ctx.Err() == nil {
			m.cfg.Logger.Warn("archive: sweep failed", "error", err)
		}
		if err == nil && onSweep != nil {
			onSweep(c)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
