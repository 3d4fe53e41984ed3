// Package watch runs an action when a polled version token changes, after a
// quiet debounce window. locguard uses it to re-run the drift battery when
// the locator file is edited by hand.
//
//	w := watch.New(watch.FileVersion("locators.json"), watch.Options{Interval: 2 * time.Second, Debounce: time.Second})
//	go w.OnChange(ctx, func() error { _, err := g.Monitor(ctx); return err })
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// Detector reads a version token. Two calls returning different values mean
// something changed.
type Detector func(ctx context.Context) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires.
	// Further changes during the window restart it. 0 fires immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a Detector and runs an action on change.
type Watcher struct {
	detect Detector
	opts   Options

	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	fired   atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Fired           int64 `json:"fired"`
}

// New creates a Watcher. Call OnChange to start the loop.
func New(detect Detector, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{detect: detect, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Fired:           w.fired.Load(),
	}
}

// Version returns the last version the action ran for (or the seed).
func (w *Watcher) Version() int64 { return w.version.Load() }

// OnChange blocks until ctx is done. The first observed version is the
// baseline and does not fire. A failed action leaves the version where it
// was, so the next poll retries.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if v, err := w.detect(ctx); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	log.Debug("watch: started", "interval", w.opts.Interval, "debounce", w.opts.Debounce)
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			log.Debug("watch: stopped")
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.detect(ctx)
			if err != nil {
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(log, action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C
			log.Debug("watch: change detected, debouncing", "pending_version", cur)

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				w.fire(log, action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(log *slog.Logger, action func() error, ver int64) {
	log.Info("watch: change", "old_version", w.version.Load(), "new_version", ver)
	if err := action(); err != nil {
		w.errors.Add(1)
		log.Error("watch: action failed", "error", err, "version", ver)
		return
	}
	w.fired.Add(1)
	w.version.Store(ver)
}

// FileVersion reports the modification time of path in nanoseconds. A
// missing file is version 0.
func FileVersion(path string) Detector {
	return func(context.Context) (int64, error) {
		fi, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return fi.ModTime().UnixNano(), nil
	}
}
