package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConnection_OpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	conn, err := NewConnection(dbPath)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}

	t.Run("open creates database and runs migrations", func(t *testing.T) {
		if err := conn.Open(); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("Open() did not create database file")
		}
		db, _ := conn.DB()
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count != len(migrations) {
			t.Errorf("applied %d migrations, want %d", count, len(migrations))
		}
	})

	t.Run("open twice fails", func(t *testing.T) {
		if err := conn.Open(); err == nil {
			t.Error("expected error opening an open database")
		}
	})

	t.Run("close then DB fails", func(t *testing.T) {
		if err := conn.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if !conn.IsClosed() {
			t.Error("IsClosed() = false after Close")
		}
		if _, err := conn.DB(); err == nil {
			t.Error("expected error from DB() after Close")
		}
	})

	t.Run("reopen skips applied migrations", func(t *testing.T) {
		again, _ := NewConnection(dbPath)
		if err := again.Open(); err != nil {
			t.Fatalf("reopen error = %v", err)
		}
		_ = again.Close()
	})
}

func TestStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Create(ctx, record.EntityListing, record.Fields{
		"external_id":      "L-1",
		"price_amount":     int64(1200000),
		"size":             1450.5,
		"price_on_request": "0",
		"location":         map[string]any{"id": 50.0, "name": "Dubai Marina"},
		"image_urls":       []any{"https://cdn.example.com/1.jpg"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := s.Update(ctx, id, record.Fields{"title": "Marina view", "size": 1500.25}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	entity, fields, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entity != record.EntityListing {
		t.Errorf("entity = %q", entity)
	}
	want := record.Fields{
		"external_id":      "L-1",
		"price_amount":     int64(1200000),
		"size":             1500.25,
		"price_on_request": "0",
		"title":            "Marina view",
		"location":         map[string]any{"id": 50.0, "name": "Dubai Marina"},
		"image_urls":       []any{"https://cdn.example.com/1.jpg"},
	}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("Get() = %#v\nwant %#v", fields, want)
	}
}

func TestStore_FindByFieldOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, _ := s.Create(ctx, record.EntityAgent, record.Fields{"external_id": "7"})
	_, _ = s.Create(ctx, record.EntityListing, record.Fields{"external_id": "7"})
	second, _ := s.Create(ctx, record.EntityAgent, record.Fields{"external_id": "7"})

	ids, err := s.FindByField(ctx, record.EntityAgent, record.FieldExternalID, "7")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != first || ids[1] != second {
		t.Errorf("FindByField() = %v, want [%s %s]", ids, first, second)
	}

	ids, _ = s.FindByField(ctx, record.EntityAgent, record.FieldExternalID, int64(7))
	if len(ids) != 0 {
		t.Errorf("an int value must not match a string field: %v", ids)
	}
}

func TestStore_MissingRecord(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("Get() error = %v", err)
	}
	if err := s.Update(ctx, "missing", record.Fields{"a": "b"}); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("Update() error = %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := s.AttachMedia(ctx, "missing", []byte("x"), ""); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("AttachMedia() error = %v", err)
	}
}

func TestStore_DeleteFieldsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, _ := s.Create(ctx, record.EntityListing, record.Fields{"a": "1", "b": "2"})
	mid, _ := s.AttachMedia(ctx, id, []byte("img"), "")

	if err := s.DeleteFields(ctx, id, "a"); err != nil {
		t.Fatal(err)
	}
	_, fields, _ := s.Get(ctx, id)
	if _, ok := fields["a"]; ok || fields["b"] != "2" {
		t.Errorf("after DeleteFields: %v", fields)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	db, _ := s.conn.DB()
	var n int
	_ = db.QueryRow("SELECT COUNT(*) FROM media WHERE id = ?", string(mid)).Scan(&n)
	if n != 0 {
		t.Error("media should cascade with the record")
	}
}

func TestStore_PrimaryMedia(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, _ := s.Create(ctx, record.EntityListing, record.Fields{})

	a, _ := s.AttachMedia(ctx, id, []byte("a"), "first")
	b, _ := s.AttachMedia(ctx, id, []byte("b"), "second")

	if err := s.SetPrimaryMedia(ctx, id, a); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPrimaryMedia(ctx, id, b); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.PrimaryMedia(ctx, id); got != b {
		t.Errorf("PrimaryMedia() = %q, want %q", got, b)
	}

	if err := s.SetPrimaryMedia(ctx, id, "unknown"); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("SetPrimaryMedia(unknown) error = %v", err)
	}

	if err := s.DetachMedia(ctx, id, b); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.PrimaryMedia(ctx, id); got != "" {
		t.Errorf("PrimaryMedia() after detach = %q, want empty", got)
	}
}

func TestStore_Outcomes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.Load(ctx, "record:x")
	if err != nil || got != nil {
		t.Fatalf("Load(empty) = %v, %v", got, err)
	}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := outcome.Outcome{ID: "1", EntityType: record.EntityListing, Status: outcome.StatusCreated, Timestamp: ts}
	second := outcome.Outcome{
		ID: "2", EntityType: record.EntityListing, Status: outcome.StatusError,
		Message: "fetch failed: timeout", Warnings: []string{"w"}, Timestamp: ts.Add(time.Minute),
		RawPayload: []byte(`{"id":"L-1"}`),
	}
	_ = s.Save(ctx, "record:x", first)
	if err := s.Save(ctx, "record:x", second); err != nil {
		t.Fatal(err)
	}

	got, err = s.Load(ctx, "record:x")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "2" || got.Message != second.Message || !got.Timestamp.Equal(second.Timestamp) {
		t.Errorf("Load() = %+v", got)
	}
	if string(got.RawPayload) != `{"id":"L-1"}` {
		t.Errorf("RawPayload = %s", got.RawPayload)
	}
}
