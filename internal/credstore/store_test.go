package credstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "melcloud.json")
	store := &FileStore{Path: path}
	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}

	data, err := EncodeState(State{Token: "ctx-key"})
	if err != nil {
		t.Fatalf("EncodeState: %v", err)
	}
	if err := store.Save(ctx, data); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	state, err := DecodeState(loaded)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if state.Token != "ctx-key" {
		t.Fatalf("unexpected token: %q", state.Token)
	}
	if state.SchemaVersion != SchemaVersion {
		t.Fatalf("unexpected schema version: %d", state.SchemaVersion)
	}
}

func TestDecodeStateRejectsWrongSchema(t *testing.T) {
	if _, err := DecodeState([]byte(`{"schema_version": 99, "token": "x"}`)); err == nil {
		t.Fatalf("expected error for unsupported schema version")
	}
}
