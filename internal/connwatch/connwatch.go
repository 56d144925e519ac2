// Package connwatch tracks whether the model backend is reachable.
//
// A Watcher probes one service on an interval. While the service is
// down the interval backs off exponentially from InitialDelay up to
// PollInterval; once it answers, checks settle at PollInterval. Turns
// never wait on a watcher: it only feeds logs and the health endpoint.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Config configures a Watcher. Zero durations take the defaults.
type Config struct {
	Name  string
	Probe ProbeFunc

	InitialDelay time.Duration // first retry after a failure (default 2s)
	PollInterval time.Duration // steady-state interval and backoff ceiling (default 60s)
	ProbeTimeout time.Duration // per-probe limit (default 10s)

	Logger *slog.Logger
}

// ServiceStatus is the health of a watched service, suitable for JSON
// serialization in health endpoints.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors a single service.
type Watcher struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	status  ServiceStatus
	checked bool
}

// Start launches a watcher that runs until ctx is cancelled or Stop is
// called. The first probe runs immediately.
func Start(ctx context.Context, cfg Config) *Watcher {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 2 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.InitialDelay > cfg.PollInterval {
		cfg.InitialDelay = cfg.PollInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		cfg:    cfg,
		cancel: cancel,
		done:   make(chan struct{}),
		status: ServiceStatus{Name: cfg.Name},
	}
	go w.run(ctx)
	return w
}

// Status returns the latest probe outcome.
func (w *Watcher) Status() ServiceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Ready reports whether the last probe succeeded.
func (w *Watcher) Ready() bool {
	return w.Status().Ready
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.cfg.InitialDelay
	for {
		if w.check(ctx) {
			delay = w.cfg.PollInterval
		} else {
			next := delay
			delay = min(delay*2, w.cfg.PollInterval)
			w.cfg.Logger.Debug("probe failed", "service", w.cfg.Name, "next_check", next)
			if !sleepCtx(ctx, next) {
				return
			}
			continue
		}
		if !sleepCtx(ctx, delay) {
			return
		}
		// Back to fast retries after the next failure.
		delay = w.cfg.InitialDelay
	}
}

// check probes once, records the result, and logs state transitions.
func (w *Watcher) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	err := w.cfg.Probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return false
	}

	w.mu.Lock()
	wasReady, first := w.status.Ready, !w.checked
	w.checked = true
	w.status.Ready = err == nil
	w.status.LastCheck = time.Now()
	w.status.LastError = ""
	if err != nil {
		w.status.LastError = err.Error()
	}
	w.mu.Unlock()

	switch {
	case err == nil && (first || !wasReady):
		w.cfg.Logger.Info("service reachable", "service", w.cfg.Name)
	case err != nil && (first || wasReady):
		w.cfg.Logger.Warn("service unreachable", "service", w.cfg.Name, "error", err)
	}
	return err == nil
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
