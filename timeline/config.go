package timeline

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/rewind/desktop"
	"github.com/hazyhaar/rewind/embedder"
	"github.com/hazyhaar/rewind/framediff"
	"github.com/hazyhaar/rewind/ocr"
)

// Config holds all rewind configuration.
type Config struct {
	// StorageRoot holds the database, screenshots and archive unless the
	// individual paths are set.
	StorageRoot     string `yaml:"storage_root"`
	DBPath          string `yaml:"db_path"`
	HotDir          string `yaml:"screenshots_dir"`
	ArchiveDir      string `yaml:"archive_dir"`
	ObservabilityDB string `yaml:"observability_db"`

	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// TraceSQL routes the entries database through the tracing driver.
	TraceSQL bool `yaml:"trace_sql"`

	Capture  CaptureConfig   `yaml:"capture"`
	Archive  ArchiveConfig   `yaml:"archive"`
	OCR      ocr.Config      `yaml:"ocr"`
	Embedder embedder.Config `yaml:"embedder"`
}

// CaptureConfig controls the capture loop and the stored artifacts.
type CaptureConfig struct {
	Disabled      bool          `yaml:"disabled"`
	StartPaused   bool          `yaml:"start_paused"`
	Interval      time.Duration `yaml:"interval"`
	FastInterval  time.Duration `yaml:"fast_interval"`
	IdleThreshold time.Duration `yaml:"idle_threshold"`

	// ExcludeApps are glob patterns of app names never recorded.
	ExcludeApps []string `yaml:"exclude_apps"`
	PrimaryOnly bool     `yaml:"primary_only"`

	MaxWidth  int `yaml:"max_width"`
	MaxHeight int `yaml:"max_height"`
	Quality   int `yaml:"quality"`

	Similarity framediff.Config `yaml:"similarity"`

	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	URLTimeout   time.Duration `yaml:"url_timeout"`
	DevToolsURL  string        `yaml:"devtools_url"`
}

// ArchiveConfig controls the cold tier.
type ArchiveConfig struct {
	Disabled      bool          `yaml:"disabled"`
	ColdAge       time.Duration `yaml:"cold_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func (c *Config) defaults() {
	if c.StorageRoot == "" {
		c.StorageRoot = DefaultStorageRoot()
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.StorageRoot, "rewind.db")
	}
	if c.HotDir == "" {
		c.HotDir = filepath.Join(c.StorageRoot, "screenshots")
	}
	if c.ArchiveDir == "" {
		c.ArchiveDir = filepath.Join(c.StorageRoot, "archive")
	}
	if c.ObservabilityDB == "" {
		c.ObservabilityDB = filepath.Join(c.StorageRoot, "observability.db")
	}
	if c.Port == 0 {
		c.Port = 8082
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Capture.Interval <= 0 {
		c.Capture.Interval = 3 * time.Second
	}
	if c.Capture.FastInterval <= 0 {
		c.Capture.FastInterval = time.Second
	}
	if c.Capture.IdleThreshold <= 0 {
		c.Capture.IdleThreshold = 10 * time.Second
	}
	if c.Capture.MaxWidth <= 0 {
		c.Capture.MaxWidth = 960
	}
	if c.Capture.MaxHeight <= 0 {
		c.Capture.MaxHeight = 600
	}
	if c.Capture.Quality <= 0 {
		c.Capture.Quality = 75
	}
	if c.Capture.ProbeTimeout <= 0 {
		c.Capture.ProbeTimeout = 500 * time.Millisecond
	}
	if c.Capture.URLTimeout <= 0 {
		c.Capture.URLTimeout = time.Second
	}
	if c.Archive.ColdAge <= 0 {
		c.Archive.ColdAge = 24 * time.Hour
	}
	if c.Archive.SweepInterval <= 0 {
		c.Archive.SweepInterval = time.Hour
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.Capture.Quality > 100 {
		return fmt.Errorf("config: capture.quality %d above 100", c.Capture.Quality)
	}
	if t := c.Capture.Similarity.MSSIMThreshold; t < -1 || t > 1 {
		return fmt.Errorf("config: capture.similarity.mssim_threshold %v outside [-1, 1]", t)
	}
	if d := c.Capture.Similarity.MaxHashDistance; d < 0 || d > 64 {
		return fmt.Errorf("config: capture.similarity.max_hash_distance %d outside [0, 64]", d)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Desktop returns the probe settings.
func (c *Config) Desktop() desktop.Config {
	return desktop.Config{
		ProbeTimeout: c.Capture.ProbeTimeout,
		URLTimeout:   c.Capture.URLTimeout,
		DevToolsURL:  c.Capture.DevToolsURL,
		PrimaryOnly:  c.Capture.PrimaryOnly,
	}
}

// LoadConfigFile reads a YAML config file. Defaults are applied by New.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through
// getenv. Unset variables leave the field alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("REWIND_STORAGE", &c.StorageRoot)
	set("LOG_LEVEL", &c.LogLevel)
	set("EMBED_PROVIDER", &c.Embedder.Provider)
	set("EMBED_ENDPOINT", &c.Embedder.Endpoint)
	set("EMBED_MODEL", &c.Embedder.Model)
	set("OCR_PROVIDER", &c.OCR.Provider)
	set("OCR_ENDPOINT", &c.OCR.Endpoint)
	set("OCR_MODEL", &c.OCR.Model)
	if v := getenv("OPENAI_API_KEY"); v != "" {
		if c.OCR.APIKey == "" {
			c.OCR.APIKey = v
		}
		if c.Embedder.APIKey == "" {
			c.Embedder.APIKey = v
		}
	}
	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT %q: %w", v, err)
		}
		c.Port = p
	}
	return nil
}

// DefaultStorageRoot is the per-user data directory for rewind.
func DefaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "rewind")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "rewind")
		}
		return filepath.Join(home, "AppData", "Roaming", "rewind")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "rewind")
	}
	return filepath.Join(home, ".local", "share", "rewind")
}
