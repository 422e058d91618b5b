package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, debounce time.Duration) *Watcher {
	t.Helper()
	w, err := New(Config{Debounce: debounce, BufferSize: 10})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestNew(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		w := newTestWatcher(t, 0)
		if w.config.Debounce != 100*time.Millisecond {
			t.Errorf("Debounce = %v, want 100ms", w.config.Debounce)
		}
		if w.config.BufferSize != 10 {
			t.Errorf("BufferSize = %d, want 10", w.config.BufferSize)
		}
		if len(w.config.Extensions) != 1 || w.config.Extensions[0] != ".json" {
			t.Errorf("Extensions = %v, want [.json]", w.config.Extensions)
		}
	})
}

func TestWatcher_Watch(t *testing.T) {
	t.Run("reports a new trigger file", func(t *testing.T) {
		dir := t.TempDir()
		w := newTestWatcher(t, 50*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.Watch(ctx, dir); err != nil {
			t.Fatalf("Watch() error = %v", err)
		}

		path := filepath.Join(dir, "job-1.json")
		if err := os.WriteFile(path, []byte(`{"entity":"listing","id":"42","action":"import"}`), 0644); err != nil {
			t.Fatalf("write trigger: %v", err)
		}

		select {
		case event := <-w.Events():
			if event.Path != path {
				t.Errorf("Path = %q, want %q", event.Path, path)
			}
			if event.Type != EventCreate && event.Type != EventWrite {
				t.Errorf("Type = %q, want create or write", event.Type)
			}
		case err := <-w.Errors():
			t.Fatalf("unexpected error: %v", err)
		case <-ctx.Done():
			t.Fatal("timeout waiting for event")
		}
	})

	t.Run("ignores other extensions", func(t *testing.T) {
		dir := t.TempDir()
		w := newTestWatcher(t, 50*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
		defer cancel()
		if err := w.Watch(ctx, dir); err != nil {
			t.Fatalf("Watch() error = %v", err)
		}

		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644); err != nil {
			t.Fatalf("write file: %v", err)
		}

		select {
		case event, ok := <-w.Events():
			if ok {
				t.Errorf("unexpected event: %+v", event)
			}
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("debounces rapid writes", func(t *testing.T) {
		dir := t.TempDir()
		w := newTestWatcher(t, 100*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.Watch(ctx, dir); err != nil {
			t.Fatalf("Watch() error = %v", err)
		}

		path := filepath.Join(dir, "burst.json")
		for i := 0; i < 5; i++ {
			if err := os.WriteFile(path, []byte(`{"n":`+string(rune('0'+i))+`}`), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			time.Sleep(10 * time.Millisecond)
		}

		count := 0
		timeout := time.After(400 * time.Millisecond)
		for {
			select {
			case <-w.Events():
				count++
			case <-timeout:
				if count == 0 || count > 2 {
					t.Errorf("events = %d, want 1 or 2", count)
				}
				return
			}
		}
	})

	t.Run("skips missing directories", func(t *testing.T) {
		w := newTestWatcher(t, 0)
		if err := w.Watch(context.Background(), t.TempDir(), "/non/existent/inbox"); err != nil {
			t.Fatalf("Watch() error = %v", err)
		}
	})
}

func TestWatcher_EmitStableEvents(t *testing.T) {
	w := newTestWatcher(t, time.Second)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	w.pending["/inbox/a.json"] = pendingEvent{eventType: EventCreate, timestamp: base}
	w.pending["/inbox/b.json"] = pendingEvent{eventType: EventWrite, timestamp: base.Add(900 * time.Millisecond)}

	w.emitStableEvents(base.Add(time.Second))

	select {
	case event := <-w.events:
		if event.Path != "/inbox/a.json" || event.Type != EventCreate {
			t.Errorf("event = %+v, want create of a.json", event)
		}
	default:
		t.Fatal("expected a stable event")
	}
	if _, ok := w.pending["/inbox/b.json"]; !ok {
		t.Error("b.json should still be pending")
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("Events channel should be closed")
	}
}
