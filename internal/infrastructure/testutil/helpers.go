// Package testutil holds fakes, fixtures and assertions shared by the
// listingsync test suites.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// WriteFile writes content to dir/name, creating dir when needed, and returns
// the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("create %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertErrorIs fails the test unless err wraps target.
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want one wrapping %v", err, target)
	}
}

// AssertEqual fails the test if got != want.
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// AssertOutcome fails the test unless o ended with status. The outcome
// message is included so a failed import explains itself.
func AssertOutcome(t *testing.T, o outcome.Outcome, status outcome.Status) {
	t.Helper()
	if o.Status != status {
		t.Fatalf("outcome status = %s, want %s (message: %q)", o.Status, status, o.Message)
	}
}

// AssertChanged fails the test unless the outcome lists exactly the given
// changed keys, in any order.
func AssertChanged(t *testing.T, o outcome.Outcome, keys ...string) {
	t.Helper()
	got := append([]string(nil), o.Changed...)
	want := append([]string(nil), keys...)
	sort.Strings(got)
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("changed = %v, want %v", got, want)
	}
}

// AssertField fails the test unless fields[key] deep-equals want.
func AssertField(t *testing.T, fields record.Fields, key string, want any) {
	t.Helper()
	got, ok := fields[key]
	if !ok {
		t.Fatalf("field %q missing", key)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("field %q = %#v, want %#v", key, got, want)
	}
}

// AssertNoField fails the test if key is present in fields.
func AssertNoField(t *testing.T, fields record.Fields, key string) {
	t.Helper()
	if v, ok := fields[key]; ok {
		t.Fatalf("field %q = %#v, want it absent", key, v)
	}
}
