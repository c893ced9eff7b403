// Package desktop is rewind's view of the local machine: it grabs one frame
// per connected monitor, reports how long the user has been idle, and
// names the foreground application, window and browser page.
//
// Probes shell out to platform tools (xprop, xprintidle, osascript, ioreg)
// under a short timeout and degrade to empty values; they never block the
// capture loop for long.
package desktop

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"
)

// ErrNoDisplay is returned when no monitor can be captured.
var ErrNoDisplay = errors.New("desktop: no active display")

// Grabber captures every connected monitor, in a stable index order.
type Grabber interface {
	Grab(ctx context.Context) ([]*image.RGBA, error)
}

// IdleProbe reports time since the last user input. 0 means "active" and
// is also the answer when the platform cannot tell.
type IdleProbe interface {
	Idle(ctx context.Context) time.Duration
}

// Context describes the foreground application.
type Context struct {
	App   string `json:"app"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// ContextProbe reports the foreground application. Fields it cannot
// determine are left empty.
type ContextProbe interface {
	Active(ctx context.Context) Context
}

// Config tunes the platform probes.
type Config struct {
	// ProbeTimeout bounds each external command. Default 500ms.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// URLTimeout bounds the browser URL lookup (DevTools request or
	// browser AppleScript). Default 1s.
	URLTimeout time.Duration `yaml:"url_timeout"`

	// DevToolsURL is a Chromium remote-debugging endpoint used on Linux to
	// read the active tab URL, e.g. "http://127.0.0.1:9222". Empty disables
	// URL lookup there.
	DevToolsURL string `yaml:"devtools_url"`

	// PrimaryOnly captures monitor 0 only.
	PrimaryOnly bool `yaml:"primary_only"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 500 * time.Millisecond
	}
	if c.URLTimeout <= 0 {
		c.URLTimeout = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Probes bundles the platform implementations selected at startup.
type Probes struct {
	Grabber Grabber
	Idle    IdleProbe
	Context ContextProbe
}

// NewProbes returns the implementations for the running platform.
func NewProbes(cfg Config) Probes {
	cfg.defaults()
	return Probes{
		Grabber: &Screen{PrimaryOnly: cfg.PrimaryOnly},
		Idle:    newIdleProbe(cfg),
		Context: newContextProbe(cfg),
	}
}

// NoIdle always reports an active user.
type NoIdle struct{}

func (NoIdle) Idle(context.Context) time.Duration { return 0 }

// NoContext always reports an unknown foreground application.
type NoContext struct{}

func (NoContext) Active(context.Context) Context { return Context{} }
