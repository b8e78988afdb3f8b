// Package credstore persists MELCloud credential state between runs, so a
// restart does not force a fresh login.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersion guards against reading state written by an incompatible
// build.
const SchemaVersion = 1

// ErrNotFound is returned when no credential state has been stored yet.
var ErrNotFound = errors.New("credential state not found")

// Store loads and saves opaque credential blobs.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// State is the persisted credential state.
type State struct {
	SchemaVersion int    `json:"schema_version"`
	Token         string `json:"token"`
}

func DecodeState(data []byte) (State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode credential state: %w", err)
	}
	if state.SchemaVersion != SchemaVersion {
		return State{}, fmt.Errorf("unsupported credential schema_version: %d", state.SchemaVersion)
	}
	return state, nil
}

func EncodeState(state State) ([]byte, error) {
	state.SchemaVersion = SchemaVersion
	return json.MarshalIndent(state, "", "  ")
}

// FileStore keeps credential state in a local file.
type FileStore struct {
	Path string
}

func (s *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read credential state: %w", err)
	}
	return data, nil
}

func (s *FileStore) Save(_ context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credential state: %w", err)
	}
	return os.Rename(tmp, s.Path)
}
