//go:build darwin

package desktop

import (
	"context"
	"time"
)

type hidIdle struct {
	timeout time.Duration
}

func newIdleProbe(cfg Config) IdleProbe {
	return &hidIdle{timeout: cfg.ProbeTimeout}
}

func (p *hidIdle) Idle(ctx context.Context) time.Duration {
	out, err := run(ctx, p.timeout, "ioreg", "-c", "IOHIDSystem", "-d", "4")
	if err != nil {
		return 0
	}
	d, ok := parseHIDIdle(out)
	if !ok {
		return 0
	}
	return d
}

type osaContext struct {
	timeout    time.Duration
	urlTimeout time.Duration
}

func newContextProbe(cfg Config) ContextProbe {
	return &osaContext{timeout: cfg.ProbeTimeout, urlTimeout: cfg.URLTimeout}
}

func (p *osaContext) Active(ctx context.Context) Context {
	out, err := run(ctx, p.timeout, "osascript", "-e", frontmostScript)
	if err != nil {
		return Context{}
	}
	var c Context
	c.App, c.Title = parseFrontmost(out)

	if script, ok := browserScripts[c.App]; ok {
		if u, err := run(ctx, p.urlTimeout, "osascript", "-e", script); err == nil {
			c.URL = u
		}
	}
	return c
}
