// Package lifecycle turns process signals into context cancellation and
// reload requests, and bounds the ordered shutdown of the gateway's parts.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownManager turns SIGTERM and SIGINT, or an explicit Shutdown call,
// into cancellation of the context returned by Start. SIGHUP runs the reload
// hook instead when one is registered.
type ShutdownManager struct {
	signals chan os.Signal
	done    chan struct{}

	mu       sync.Mutex
	cancel   context.CancelFunc
	reason   string
	onReload func()
	stopped  bool
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager() *ShutdownManager {
	return &ShutdownManager{
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
}

// OnReload registers fn to run on SIGHUP. It must be called before Start.
func (sm *ShutdownManager) OnReload(fn func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onReload = fn
}

// Start subscribes to signals and returns a context that is cancelled on
// shutdown or when ctx ends.
func (sm *ShutdownManager) Start(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)

	sm.mu.Lock()
	sm.cancel = cancel
	reload := sm.onReload
	if sm.reason != "" {
		cancel()
	}
	sm.mu.Unlock()

	watched := []os.Signal{syscall.SIGTERM, syscall.SIGINT}
	if reload != nil {
		watched = append(watched, syscall.SIGHUP)
	}
	signal.Notify(sm.signals, watched...)

	go sm.watch(runCtx, reload)
	return runCtx
}

func (sm *ShutdownManager) watch(ctx context.Context, reload func()) {
	for {
		select {
		case sig := <-sm.signals:
			if sig == syscall.SIGHUP {
				reload()
				continue
			}
			sm.Shutdown(fmt.Sprintf("received signal: %v", sig))
			return
		case <-ctx.Done():
			return
		case <-sm.done:
			return
		}
	}
}

// Shutdown records reason and cancels the context returned by Start. Only
// the first reason is kept.
func (sm *ShutdownManager) Shutdown(reason string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.reason != "" {
		return
	}
	sm.reason = reason
	if sm.cancel != nil {
		sm.cancel()
	}
}

// IsShutdown reports whether shutdown has been initiated.
func (sm *ShutdownManager) IsShutdown() bool {
	return sm.Reason() != ""
}

// Reason returns the reason given for shutdown.
func (sm *ShutdownManager) Reason() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.reason
}

// Stop unsubscribes from signals and ends the watcher. It is safe to call
// more than once.
func (sm *ShutdownManager) Stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.stopped {
		return
	}
	sm.stopped = true
	signal.Stop(sm.signals)
	close(sm.done)
	if sm.cancel != nil {
		sm.cancel()
	}
}

// Step is one named part of an ordered shutdown.
type Step struct {
	Name string
	Fn   func(context.Context) error
}

// GracefulShutdown runs steps in order under a shared timeout. A failing
// step does not prevent later steps from running; all failures are joined.
// If the steps take longer than timeout, it returns without waiting for them.
func GracefulShutdown(ctx context.Context, timeout time.Duration, steps ...Step) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		var errs []error
		for _, step := range steps {
			if err := step.Fn(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		return err
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timed out after %v", timeout)
	}
}
