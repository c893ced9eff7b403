package scheduler

import (
	"context"
	"sync/atomic"
)

// Control is the capture on/off switch shared between the scheduler and
// API handlers. Transitions are idempotent.
type Control struct {
	active atomic.Bool
	wake   chan struct{}
}

// NewControl returns a switch in the given state.
func NewControl(active bool) *Control {
	c := &Control{wake: make(chan struct{}, 1)}
	c.active.Store(active)
	return c
}

func (c *Control) IsActive() bool { return c.active.Load() }

// Pause stops capture at the next tick. It reports whether the state changed.
func (c *Control) Pause() bool {
	return c.active.CompareAndSwap(true, false)
}

// Resume restarts capture. It reports whether the state changed.
func (c *Control) Resume() bool {
	if !c.active.CompareAndSwap(false, true) {
		return false
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// Toggle flips the state and returns the new one.
func (c *Control) Toggle() bool {
	for {
		if c.Pause() {
			return false
		}
		if c.Resume() {
			return true
		}
	}
}

// wait blocks while capture is paused.
func (c *Control) wait(ctx context.Context) error {
	for !c.active.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
	}
	return nil
}
