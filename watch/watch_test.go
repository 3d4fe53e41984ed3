package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type counter struct{ v atomic.Int64 }

func (c *counter) detect(context.Context) (int64, error) { return c.v.Load(), nil }

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestOnChange_FiresOnChange(t *testing.T) {
	var c counter
	c.v.Store(1)
	w := New(c.detect, Options{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired atomic.Int64
	go w.OnChange(ctx, func() error { fired.Add(1); return nil })

	time.Sleep(30 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("baseline version fired the action")
	}
	c.v.Store(2)
	eventually(t, func() bool { return fired.Load() == 1 })
	if w.Version() != 2 {
		t.Errorf("version: got %d, want 2", w.Version())
	}
}

func TestOnChange_Debounce(t *testing.T) {
	var c counter
	w := New(c.detect, Options{Interval: 5 * time.Millisecond, Debounce: 60 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired atomic.Int64
	go w.OnChange(ctx, func() error { fired.Add(1); return nil })

	time.Sleep(20 * time.Millisecond)
	for v := int64(1); v <= 3; v++ {
		c.v.Store(v)
		time.Sleep(15 * time.Millisecond)
	}
	eventually(t, func() bool { return fired.Load() == 1 })
	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("fired: got %d, want 1", fired.Load())
	}
	if w.Version() != 3 {
		t.Errorf("version: got %d, want 3", w.Version())
	}
}

func TestOnChange_FailedActionRetries(t *testing.T) {
	var c counter
	w := New(c.detect, Options{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	go w.OnChange(ctx, func() error {
		if calls.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	})

	time.Sleep(20 * time.Millisecond)
	c.v.Store(7)
	eventually(t, func() bool { return w.Version() == 7 })
	if s := w.Stats(); s.Errors != 1 || s.Fired != 1 {
		t.Errorf("stats: %+v", s)
	}
}

func TestFileVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locators.json")
	detect := FileVersion(path)
	ctx := context.Background()

	v, err := detect(ctx)
	if err != nil || v != 0 {
		t.Fatalf("missing file: got %d, %v", v, err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	then := time.Now().Add(-time.Minute).Truncate(time.Second)
	if err := os.Chtimes(path, then, then); err != nil {
		t.Fatal(err)
	}
	v1, _ := detect(ctx)
	if v1 != then.UnixNano() {
		t.Errorf("version: got %d, want %d", v1, then.UnixNano())
	}
}
