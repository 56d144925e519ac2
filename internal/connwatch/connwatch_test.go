package connwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatcher_Ready(t *testing.T) {
	w := Start(context.Background(), Config{
		Name:   "ollama",
		Probe:  func(context.Context) error { return nil },
		Logger: quietLogger(),
	})
	defer w.Stop()

	waitFor(t, w.Ready)
	s := w.Status()
	if s.Name != "ollama" || s.LastError != "" || s.LastCheck.IsZero() {
		t.Errorf("status = %+v", s)
	}
}

func TestWatcher_Recovers(t *testing.T) {
	var healthy atomic.Bool
	var probes atomic.Int32
	w := Start(context.Background(), Config{
		Name: "ollama",
		Probe: func(context.Context) error {
			probes.Add(1)
			if healthy.Load() {
				return nil
			}
			return errors.New("connection refused")
		},
		InitialDelay: time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		Logger:       quietLogger(),
	})
	defer w.Stop()

	waitFor(t, func() bool { return probes.Load() >= 2 })
	if w.Ready() {
		t.Fatal("watcher reported ready while probe fails")
	}
	if got := w.Status().LastError; got != "connection refused" {
		t.Errorf("LastError = %q", got)
	}

	healthy.Store(true)
	waitFor(t, w.Ready)

	healthy.Store(false)
	waitFor(t, func() bool { return !w.Ready() })
}

func TestWatcher_ProbeTimeout(t *testing.T) {
	w := Start(context.Background(), Config{
		Name: "slow",
		Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		ProbeTimeout: 5 * time.Millisecond,
		InitialDelay: time.Millisecond,
		PollInterval: time.Millisecond,
		Logger:       quietLogger(),
	})
	defer w.Stop()

	waitFor(t, func() bool { return w.Status().LastError != "" })
	if w.Ready() {
		t.Error("timed-out probe reported ready")
	}
}

func TestWatcher_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := Start(ctx, Config{
		Name:   "x",
		Probe:  func(context.Context) error { return nil },
		Logger: quietLogger(),
	})
	cancel()

	select {
	case <-w.done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not exit after context cancel")
	}
}
