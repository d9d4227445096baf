// Package storagetest holds a reusable contract suite that verifies a
// storage.Storage implementation behaves the way the persistence middleware
// relies on: absent keys load nothing without erroring, saves overwrite,
// deletes are idempotent, and keys do not interfere.
package storagetest

import (
	"bytes"
	"context"
	"testing"

	"github.com/goliatone/go-state/pkg/storage"
)

// Factory builds a fresh, empty backend for one contract run.
type Factory func(t *testing.T) storage.Storage

// Run exercises backend behavior every implementation must share.
func Run(t *testing.T, factory Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key loads nothing", func(t *testing.T) {
		backend := factory(t)
		value, ok, err := backend.Load(ctx, "absent")
		if err != nil {
			t.Fatalf("unexpected error loading absent key: %v", err)
		}
		if ok {
			t.Fatalf("expected ok=false for absent key, got value %q", value)
		}
	})

	t.Run("save then load round-trips", func(t *testing.T) {
		backend := factory(t)
		payload := []byte(`{"state":{"count":5},"version":1}`)
		if err := backend.Save(ctx, "app", payload); err != nil {
			t.Fatalf("save: %v", err)
		}
		value, ok, err := backend.Load(ctx, "app")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if !ok {
			t.Fatalf("expected record to exist after save")
		}
		if !bytes.Equal(payload, value) {
			t.Fatalf("expected %q, got %q", payload, value)
		}
	})

	t.Run("save overwrites previous value", func(t *testing.T) {
		backend := factory(t)
		if err := backend.Save(ctx, "app", []byte("first")); err != nil {
			t.Fatalf("save first: %v", err)
		}
		if err := backend.Save(ctx, "app", []byte("second")); err != nil {
			t.Fatalf("save second: %v", err)
		}
		value, ok, err := backend.Load(ctx, "app")
		if err != nil || !ok {
			t.Fatalf("load after overwrite: ok=%v err=%v", ok, err)
		}
		if string(value) != "second" {
			t.Fatalf("expected overwrite to win, got %q", value)
		}
	})

	t.Run("delete removes the record", func(t *testing.T) {
		backend := factory(t)
		if err := backend.Save(ctx, "app", []byte("payload")); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := backend.Delete(ctx, "app"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		_, ok, err := backend.Load(ctx, "app")
		if err != nil {
			t.Fatalf("load after delete: %v", err)
		}
		if ok {
			t.Fatalf("expected record gone after delete")
		}
	})

	t.Run("delete of absent key is a no-op", func(t *testing.T) {
		backend := factory(t)
		if err := backend.Delete(ctx, "never-saved"); err != nil {
			t.Fatalf("expected nil error deleting absent key, got %v", err)
		}
	})

	t.Run("keys do not interfere", func(t *testing.T) {
		backend := factory(t)
		if err := backend.Save(ctx, "app-a", []byte("a")); err != nil {
			t.Fatalf("save a: %v", err)
		}
		if err := backend.Save(ctx, "app-b", []byte("b")); err != nil {
			t.Fatalf("save b: %v", err)
		}
		if err := backend.Delete(ctx, "app-a"); err != nil {
			t.Fatalf("delete a: %v", err)
		}
		value, ok, err := backend.Load(ctx, "app-b")
		if err != nil || !ok {
			t.Fatalf("load b: ok=%v err=%v", ok, err)
		}
		if string(value) != "b" {
			t.Fatalf("expected sibling key untouched, got %q", value)
		}
	})

	t.Run("empty value round-trips", func(t *testing.T) {
		backend := factory(t)
		if err := backend.Save(ctx, "empty", nil); err != nil {
			t.Fatalf("save empty: %v", err)
		}
		value, ok, err := backend.Load(ctx, "empty")
		if err != nil {
			t.Fatalf("load empty: %v", err)
		}
		if !ok {
			t.Fatalf("expected empty record to exist")
		}
		if len(value) != 0 {
			t.Fatalf("expected empty payload, got %q", value)
		}
	})
}
