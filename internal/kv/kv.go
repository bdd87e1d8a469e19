// Package kv is the small key-value store kept beside the relational store.
// Sync checkpoints live here so they survive a rebuilt database file.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wallet-sync-go/internal/models"

	"go.uber.org/zap"
)

type Store interface {
	// Get returns "" when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// CheckpointKey addresses the last-sync timestamp of one kind for one owner.
func CheckpointKey(kind models.RecordKind, owner string) string {
	return fmt.Sprintf("sync:%s:last_sync:%s", kind, owner)
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// FileStore keeps every key in one JSON document, rewritten atomically on
// each change.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint file path cannot be empty")
	}
	f := &FileStore{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &f.values); err != nil {
			zap.L().Warn("Checkpoint file is corrupt, starting empty",
				zap.String("file", path),
				zap.Error(err))
			f.values = make(map[string]string)
		}
	}
	return f, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	previous, existed := f.values[key]
	f.values[key] = value
	if err := f.flush(); err != nil {
		if existed {
			f.values[key] = previous
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.flush()
}

func (f *FileStore) flush() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoints: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".checkpoints-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoints: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close checkpoints: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
