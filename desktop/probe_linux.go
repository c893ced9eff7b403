//go:build linux

package desktop

import (
	"context"
	"net/http"
	"os/exec"
	"time"
)

type xIdle struct {
	timeout time.Duration
}

func newIdleProbe(cfg Config) IdleProbe {
	if _, err := exec.LookPath("xprintidle"); err != nil {
		cfg.Logger.Warn("desktop: xprintidle not found, idle detection disabled")
		return NoIdle{}
	}
	return &xIdle{timeout: cfg.ProbeTimeout}
}

func (p *xIdle) Idle(ctx context.Context) time.Duration {
	out, err := run(ctx, p.timeout, "xprintidle")
	if err != nil {
		return 0
	}
	d, err := parseXprintidle(out)
	if err != nil {
		return 0
	}
	return d
}

type xContext struct {
	timeout  time.Duration
	devtools string
	client   *http.Client
}

func newContextProbe(cfg Config) ContextProbe {
	if _, err := exec.LookPath("xprop"); err != nil {
		cfg.Logger.Warn("desktop: xprop not found, window context disabled")
		return NoContext{}
	}
	return &xContext{
		timeout:  cfg.ProbeTimeout,
		devtools: cfg.DevToolsURL,
		client:   devtoolsClient(cfg),
	}
}

func (p *xContext) Active(ctx context.Context) Context {
	out, err := run(ctx, p.timeout, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return Context{}
	}
	id, ok := parseActiveWindow(out)
	if !ok {
		return Context{}
	}
	out, err = run(ctx, p.timeout, "xprop", "-id", id, "WM_CLASS", "_NET_WM_NAME")
	if err != nil {
		return Context{}
	}
	var c Context
	c.App, c.Title = parseXprop(out)

	if p.devtools != "" && isChromium(c.App) {
		if u, err := devtoolsURL(ctx, p.client, p.devtools, c.Title); err == nil {
			c.URL = u
		}
	}
	return c
}
