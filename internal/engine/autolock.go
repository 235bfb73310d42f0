package engine

import (
	"context"
	"time"
)

func (e *Engine) SetAutoLockTimeout(ctx context.Context, seconds int) error {
	return e.store.SetAutoLockTimeout(ctx, seconds)
}

// GetAutoLockTimeout returns the timeout in seconds; 0 disables auto-lock.
func (e *Engine) GetAutoLockTimeout(ctx context.Context) (int, error) {
	return e.store.GetAutoLockTimeout(ctx)
}

// OnAppBackgrounded arms the auto-lock timer. A previously armed timer is
// replaced.
func (e *Engine) OnAppBackgrounded(ctx context.Context) error {
	seconds, err := e.store.GetAutoLockTimeout(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimer()
	if seconds <= 0 {
		return nil
	}

	d := time.Duration(seconds) * time.Second
	gen := e.gen
	e.deadline = e.now().Add(d)
	e.timer = e.afterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.gen != gen {
			return
		}
		e.timer = nil
		e.deadline = time.Time{}
		e.clearCache()
		e.logger.Info(context.Background(), "vault auto-locked")
	})

	e.logger.Debug(ctx, "auto-lock armed", "timeout", d)
	return nil
}

// OnAppForegrounded disarms the timer. If the deadline already passed, for
// example because the process was suspended, the vault is locked now.
func (e *Engine) OnAppForegrounded(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	deadline := e.deadline
	armed := e.timer != nil
	e.stopTimer()

	if armed && !e.now().Before(deadline) {
		e.clearCache()
		e.logger.Info(ctx, "vault auto-locked on foreground")
	}
}

func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.deadline = time.Time{}
	e.gen++
}
