// Package e2e provides end-to-end integration tests for listingsync.
package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/application"
	"github.com/jbctechsolutions/listingsync/internal/application/trigger"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/testutil"
	"github.com/jbctechsolutions/listingsync/internal/presentation/cli/commands"
)

// executeCommand executes a cobra command with the given args and captures output.
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	commands.Shutdown()
	return buf.String(), err
}

// isolate points HOME at a temp dir, clears the API token and writes a
// config using the in-memory store.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.DefaultAPITokenEnv, "")
	os.Unsetenv(config.DefaultAPITokenEnv)

	return testutil.WriteFile(t, home, "config.yaml", "store:\n  kind: memory\nmedia:\n  enabled: false\n")
}

// TestE2E_CLICommands runs commands that need no reachable CRM.
func TestE2E_CLICommands(t *testing.T) {
	cfgPath := isolate(t)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    string
	}{
		{"version", []string{"version"}, false, "Listingsync"},
		{"version short", []string{"version", "--short"}, false, commands.Version},
		{"version json", []string{"version", "-o", "json"}, false, `"version"`},

		{"mapping listing", []string{"--config", cfgPath, "mapping", "listing"}, false, "external_id"},
		{"mapping agent json", []string{"--config", cfgPath, "-o", "json", "mapping", "agent"}, false, `"target"`},
		{"mapping unknown entity", []string{"--config", cfgPath, "mapping", "project"}, true, ""},

		{"status without outcome", []string{"--config", cfgPath, "status", "1"}, false, "No sync outcome"},

		// The API is only contacted when a command needs it.
		{"locations without token", []string{"--config", cfgPath, "locations", "marina"}, true, ""},
		{"import without token", []string{"--config", cfgPath, "import", "listing", "--id", "1"}, true, ""},

		{"bad output format", []string{"--config", cfgPath, "-o", "yaml", "mapping", "listing"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(commands.NewRootCmd(), tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v\noutput: %s", err, tt.wantErr, out)
			}
			if tt.want != "" && !strings.Contains(out, tt.want) {
				t.Errorf("output does not contain %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestE2E_SubcommandStructure(t *testing.T) {
	root := commands.NewRootCmd()

	gallery, _, err := root.Find([]string{"gallery", "remove"})
	if err != nil || gallery.Name() != "remove" {
		t.Errorf("gallery remove not found: %v", err)
	}

	for _, name := range []string{"import", "push", "status", "watch"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Errorf("command %s not found: %v", name, err)
			continue
		}
		if cmd.Long == "" {
			t.Errorf("command %s has no long description", name)
		}
	}
}

func TestE2E_InitThenLoad(t *testing.T) {
	isolate(t)
	dir := filepath.Join(t.TempDir(), "cfg")

	if _, err := executeCommand(commands.NewRootCmd(), "init", "--dir", dir, "--defaults"); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfgPath := filepath.Join(dir, config.FileName)
	out, err := executeCommand(commands.NewRootCmd(), "--config", cfgPath, "mapping", "listing")
	if err != nil {
		t.Fatalf("mapping with generated config: %v\n%s", err, out)
	}
}

// TestE2E_TriggerFlow drives an import and a push through the trigger inbox
// against a sqlite store.
func TestE2E_TriggerFlow(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Store.DSN = filepath.Join(dir, "sync.db")
	cfg.Media.Enabled = false
	cfg.Watch.Debounce = 50 * time.Millisecond

	api := testutil.NewFakeAPI().Add(record.EntityListing, testutil.ListingPage("L", 2)...)
	container, err := application.NewContainer(cfg, false,
		application.WithExternalAPI(api),
		application.WithLogOutput(io.Discard),
	)
	testutil.AssertNoError(t, err)
	defer container.Close()

	inbox := filepath.Join(dir, "inbox")
	results := make(chan trigger.Result, 8)
	svc, err := container.NewTriggerService(inbox, func(r trigger.Result) { results <- r })
	testutil.AssertNoError(t, err)

	// A trigger written before Start is drained on startup.
	testutil.AssertNoError(t, os.MkdirAll(inbox, 0755))
	dropTrigger(t, inbox, "001", `{"entity":"listing","id":"L-1","action":"import"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	testutil.AssertNoError(t, svc.Start(ctx))
	defer svc.Stop()

	r := waitResult(t, results)
	testutil.AssertEqual(t, r.Status, string(outcome.StatusCreated))

	last, err := container.Engine().GetLastOutcomeByExternal(ctx, record.EntityListing, "L-1")
	testutil.AssertNoError(t, err)
	if last == nil || last.RecordID == "" {
		t.Fatalf("expected an outcome with a record id, got %+v", last)
	}

	dropTrigger(t, inbox, "002", fmt.Sprintf(`{"entity":"listing","id":%q,"action":"push"}`, last.RecordID))
	r = waitResult(t, results)
	if r.Err != nil {
		t.Fatalf("push trigger failed: %v", r.Err)
	}
	testutil.AssertEqual(t, r.Status, "pushed")
	testutil.AssertEqual(t, len(api.Updates), 1)

	pushed, err := container.Engine().GetLastOutcome(ctx, last.RecordID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, pushed.Direction, outcome.DirectionPush)

	dropTrigger(t, inbox, "003", `{"entity":"listing","id":"L-404","action":"import"}`)
	r = waitResult(t, results)
	if r.Err == nil {
		t.Fatal("expected the unknown listing to fail")
	}
	if _, err := os.Stat(filepath.Join(inbox, "003.json"+trigger.FailedSuffix)); err != nil {
		t.Errorf("failed trigger not parked: %v", err)
	}
}

// dropTrigger writes a trigger under a temporary name and renames it into
// place so the watcher never sees a partial file.
func dropTrigger(t *testing.T, inbox, name, body string) {
	t.Helper()
	tmp := filepath.Join(inbox, name+".tmp")
	testutil.AssertNoError(t, os.WriteFile(tmp, []byte(body), 0644))
	testutil.AssertNoError(t, os.Rename(tmp, filepath.Join(inbox, name+".json")))
}

func waitResult(t *testing.T, results <-chan trigger.Result) trigger.Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a trigger result")
		return trigger.Result{}
	}
}
