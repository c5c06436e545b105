package artifactwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Run: func(context.Context) error { return nil }}); err == nil {
		t.Error("expected error for missing dir")
	}
	if _, err := New(Config{Dir: t.TempDir()}); err == nil {
		t.Error("expected error for missing run function")
	}
}

func TestWatch_TriggersOnNewArtifact(t *testing.T) {
	dir := t.TempDir()
	var runs atomic.Int32

	w, err := New(Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "drb-1.0-1.noarch.rpm"), []byte("rpm"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("run not triggered by new artifact")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch returned error: %v", err)
	}
}

func TestWatch_IgnoresNonArtifacts(t *testing.T) {
	dir := t.TempDir()
	var runs atomic.Int32

	w, err := New(Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "build.log"), []byte("log"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("expected no runs for non-artifact file, got %d", got)
	}

	cancel()
	<-done
}

func TestWatch_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	var runs atomic.Int32

	w, err := New(Config{
		Dir:      dir,
		Debounce: 200 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)

	// a build drops several rpms in quick succession
	for _, name := range []string{"a.rpm", "b.rpm", "c.rpm"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("rpm"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(30 * time.Millisecond)
	}

	time.Sleep(600 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("expected exactly 1 debounced run, got %d", got)
	}

	cancel()
	<-done
}

func TestChanged(t *testing.T) {
	now := time.Now()
	a := map[string]time.Time{"a.rpm": now}

	if changed(a, map[string]time.Time{"a.rpm": now}) {
		t.Error("identical listings must not read as changed")
	}
	if !changed(a, map[string]time.Time{"a.rpm": now, "b.rpm": now}) {
		t.Error("new file must read as changed")
	}
	if !changed(a, map[string]time.Time{"a.rpm": now.Add(time.Second)}) {
		t.Error("touched file must read as changed")
	}
	if !changed(a, map[string]time.Time{}) {
		t.Error("removed file must read as changed")
	}
}
