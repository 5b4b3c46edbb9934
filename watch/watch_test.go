package watch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/seskeep/dbopen"
	_ "modernc.org/sqlite"
)

func TestOnChange_FiresOnUserVersionBump(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var fired atomic.Int64
	w := New(db, Options{
		Interval: 10 * time.Millisecond,
		Detector: PragmaUserVersion,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.OnChange(ctx, func() error {
			fired.Add(1)
			return nil
		})
		close(done)
	}()

	// Give the loop time to seed the initial version.
	time.Sleep(50 * time.Millisecond)

	if _, err := db.Exec("PRAGMA user_version = 7"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fired.Load() == 0 {
		t.Fatal("action never fired after version bump")
	}
	if got := w.Version(); got != 7 {
		t.Fatalf("version: got %d, want 7", got)
	}

	cancel()
	<-done
}

func TestOnChange_ErrorRetries(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var calls atomic.Int64
	w := New(db, Options{
		Interval: 10 * time.Millisecond,
		Detector: PragmaUserVersion,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.OnChange(ctx, func() error {
		n := calls.Add(1)
		if n == 1 {
			return context.DeadlineExceeded // any error: version must not advance
		}
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	if _, err := db.Exec("PRAGMA user_version = 3"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatal("failed action was not retried")
	}
	if got := w.Version(); got != 3 {
		t.Fatalf("version after successful retry: got %d, want 3", got)
	}
}

func TestStats(t *testing.T) {
	db := dbopen.OpenMemory(t)
	w := New(db, Options{Interval: time.Hour})

	s := w.Stats()
	if s.Checks != 0 || s.Reloads != 0 {
		t.Fatalf("fresh watcher stats: %+v", s)
	}
}
