package trigger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/logging"
)

type call struct {
	action string
	entity record.EntityType
	id     string
}

type fakeRunner struct {
	mu        sync.Mutex
	calls     []call
	importOut outcome.Outcome
	pushOK    bool
	pushErr   error
}

func (f *fakeRunner) ImportOne(_ context.Context, entity record.EntityType, externalID string) outcome.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{ActionImport, entity, externalID})
	return f.importOut
}

func (f *fakeRunner) PushToAPI(_ context.Context, entity record.EntityType, id record.RecordID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{ActionPush, entity, string(id)})
	return f.pushOK, f.pushErr
}

func (f *fakeRunner) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func testLogger() *logging.Logger {
	return logging.Discard()
}

func writeTrigger(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write trigger: %v", err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantEntity record.EntityType
		wantAction string
		wantErr    bool
	}{
		{name: "import listing", body: `{"entity":"listing","id":" 42 ","action":"import"}`, wantEntity: record.EntityListing, wantAction: ActionImport},
		{name: "push agent upper case", body: `{"entity":"agents","id":"7","action":"PUSH"}`, wantEntity: record.EntityAgent, wantAction: ActionPush},
		{name: "bad json", body: `{`, wantErr: true},
		{name: "unknown entity", body: `{"entity":"office","id":"1","action":"import"}`, wantErr: true},
		{name: "missing id", body: `{"entity":"listing","action":"import"}`, wantErr: true},
		{name: "unknown action", body: `{"entity":"listing","id":"1","action":"delete"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig, entity, err := Parse([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Parse() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if entity != tt.wantEntity || trig.Action != tt.wantAction {
				t.Errorf("Parse() = (%q, %q), want (%q, %q)", entity, trig.Action, tt.wantEntity, tt.wantAction)
			}
		})
	}

	t.Run("missing id is a validation error", func(t *testing.T) {
		_, _, err := Parse([]byte(`{"entity":"listing","action":"push"}`))
		if !domainerrors.Is(err, domainerrors.ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
	})
}

func TestNewService(t *testing.T) {
	if _, err := NewService(Config{InboxDir: t.TempDir()}, nil, testLogger()); err == nil {
		t.Error("expected error for nil runner")
	}
	if _, err := NewService(Config{}, &fakeRunner{}, testLogger()); err == nil {
		t.Error("expected error for empty inbox")
	}
}

func TestService_Handle(t *testing.T) {
	t.Run("import removes the trigger", func(t *testing.T) {
		dir := t.TempDir()
		runner := &fakeRunner{importOut: outcome.Outcome{Status: outcome.StatusCreated}}
		var got []Result
		svc, _ := NewService(Config{InboxDir: dir, OnResult: func(r Result) { got = append(got, r) }}, runner, testLogger())

		path := writeTrigger(t, dir, "a.json", `{"entity":"listing","id":"42","action":"import"}`)
		svc.Handle(context.Background(), path)

		if calls := runner.snapshot(); len(calls) != 1 || calls[0] != (call{ActionImport, record.EntityListing, "42"}) {
			t.Fatalf("calls = %+v", calls)
		}
		if exists(path) {
			t.Error("handled trigger should be removed")
		}
		if len(got) != 1 || got[0].Status != "created" || got[0].Err != nil {
			t.Errorf("results = %+v", got)
		}
	})

	t.Run("failed import is parked", func(t *testing.T) {
		dir := t.TempDir()
		runner := &fakeRunner{importOut: outcome.Outcome{Status: outcome.StatusError, Message: "fetch failed: timeout"}}
		var got []Result
		svc, _ := NewService(Config{InboxDir: dir, OnResult: func(r Result) { got = append(got, r) }}, runner, testLogger())

		path := writeTrigger(t, dir, "b.json", `{"entity":"agent","id":"7","action":"import"}`)
		svc.Handle(context.Background(), path)

		if exists(path) || !exists(path+FailedSuffix) {
			t.Error("failed trigger should be renamed with the failed suffix")
		}
		if len(got) != 1 || got[0].Err == nil || got[0].Err.Error() != "fetch failed: timeout" {
			t.Errorf("results = %+v", got)
		}
	})

	t.Run("push", func(t *testing.T) {
		dir := t.TempDir()
		runner := &fakeRunner{pushOK: true}
		var got []Result
		svc, _ := NewService(Config{InboxDir: dir, OnResult: func(r Result) { got = append(got, r) }}, runner, testLogger())

		path := writeTrigger(t, dir, "c.json", `{"entity":"listing","id":"rec-1","action":"push"}`)
		svc.Handle(context.Background(), path)

		if calls := runner.snapshot(); len(calls) != 1 || calls[0] != (call{ActionPush, record.EntityListing, "rec-1"}) {
			t.Fatalf("calls = %+v", calls)
		}
		if len(got) != 1 || got[0].Status != "pushed" {
			t.Errorf("results = %+v", got)
		}
	})

	t.Run("rejected push keeps its error", func(t *testing.T) {
		dir := t.TempDir()
		reject := errors.New("422 unprocessable")
		runner := &fakeRunner{pushErr: reject}
		var got []Result
		svc, _ := NewService(Config{InboxDir: dir, OnResult: func(r Result) { got = append(got, r) }}, runner, testLogger())

		path := writeTrigger(t, dir, "d.json", `{"entity":"listing","id":"rec-1","action":"push"}`)
		svc.Handle(context.Background(), path)

		if len(got) != 1 || !errors.Is(got[0].Err, reject) {
			t.Errorf("results = %+v", got)
		}
		if !exists(path + FailedSuffix) {
			t.Error("rejected push trigger should be parked")
		}
	})

	t.Run("invalid trigger never reaches the runner", func(t *testing.T) {
		dir := t.TempDir()
		runner := &fakeRunner{}
		svc, _ := NewService(Config{InboxDir: dir}, runner, testLogger())

		path := writeTrigger(t, dir, "e.json", `{"entity":"listing","id":"1","action":"delete"}`)
		svc.Handle(context.Background(), path)

		if len(runner.snapshot()) != 0 {
			t.Error("runner should not be called")
		}
		if !exists(path + FailedSuffix) {
			t.Error("invalid trigger should be parked")
		}
	})

	t.Run("file outside the inbox is left alone", func(t *testing.T) {
		runner := &fakeRunner{}
		called := false
		svc, _ := NewService(Config{InboxDir: t.TempDir(), OnResult: func(Result) { called = true }}, runner, testLogger())

		path := writeTrigger(t, t.TempDir(), "f.json", `{"entity":"listing","id":"1","action":"import"}`)
		svc.Handle(context.Background(), path)

		if len(runner.snapshot()) != 0 || called {
			t.Error("trigger outside the inbox should not run")
		}
		if !exists(path) {
			t.Error("trigger outside the inbox should not be touched")
		}
	})

	t.Run("missing file is ignored", func(t *testing.T) {
		called := false
		svc, _ := NewService(Config{InboxDir: t.TempDir(), OnResult: func(Result) { called = true }}, &fakeRunner{}, testLogger())
		svc.Handle(context.Background(), filepath.Join(t.TempDir(), "gone.json"))
		if called {
			t.Error("OnResult should not be called for a missing file")
		}
	})
}

func TestService_StartStop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	runner := &fakeRunner{importOut: outcome.Outcome{Status: outcome.StatusUnchanged}}

	results := make(chan Result, 4)
	svc, err := NewService(Config{
		InboxDir: dir,
		Debounce: 50 * time.Millisecond,
		OnResult: func(r Result) { results <- r },
	}, runner, testLogger())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	early := writeTrigger(t, dir, "early.json", `{"entity":"listing","id":"1","action":"import"}`)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.Stop()

	if !svc.IsRunning() {
		t.Error("expected service to be running")
	}

	select {
	case r := <-results:
		if r.Path != early {
			t.Errorf("first result path = %q, want %q", r.Path, early)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("existing trigger was not drained")
	}

	late := writeTrigger(t, dir, "late.json", `{"entity":"agent","id":"9","action":"import"}`)
	select {
	case r := <-results:
		if r.Path != late {
			t.Errorf("watched result path = %q, want %q", r.Path, late)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for watched trigger")
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if svc.IsRunning() {
		t.Error("expected service to be stopped")
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
}
