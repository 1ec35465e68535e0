// Package interrupt turns user interrupts (Ctrl-C, Esc) into cancellation of
// the operation that is currently running.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/m4xw311/quill/errors"
)

// Controller owns at most one cancellation scope at a time.
type Controller struct {
	mu          sync.Mutex
	cancel      context.CancelCauseFunc
	scope       uint64
	interrupted bool
}

// New creates an idle controller.
func New() *Controller { return &Controller{} }

// Begin opens a scope derived from parent. The returned end func closes it
// and returns the controller to idle; calling it more than once is harmless.
// A scope opened while another is active replaces it.
func (c *Controller) Begin(parent context.Context) (context.Context, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel(errors.ErrCancelled)
	}
	return c.open(parent)
}

// TryBegin is Begin for callers that must not preempt: with a scope already
// open it leaves it alone and reports false.
func (c *Controller) TryBegin(parent context.Context) (context.Context, func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil, nil, false
	}
	ctx, end := c.open(parent)
	return ctx, end, true
}

// open must be called with c.mu held.
func (c *Controller) open(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	c.scope++
	id := c.scope
	c.cancel = cancel
	c.interrupted = false

	return ctx, func() {
		c.mu.Lock()
		if c.scope == id {
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel(nil)
	}
}

// Interrupt cancels the active scope. It reports false when nothing was
// running or the scope was already interrupted.
func (c *Controller) Interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil || c.interrupted {
		return false
	}
	c.interrupted = true
	c.cancel(errors.ErrCancelled)
	return true
}

// Interrupted reports whether the current or most recent scope was
// interrupted.
func (c *Controller) Interrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupted
}

// Active reports whether a scope is open.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// WatchSignals routes SIGINT to Interrupt. With no scope open, onIdle runs
// instead (typically to exit). The returned func stops watching.
func (c *Controller) WatchSignals(onIdle func()) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigCh:
				if !c.Interrupt() && !c.Active() && onIdle != nil {
					onIdle()
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}
}
