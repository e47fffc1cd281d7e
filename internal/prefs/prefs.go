// Package prefs persists small user preferences such as the name of the
// last network saved on the classification server.
package prefs

import (
	"context"
	"fmt"
	"sync"

	"github.com/yok-tottii/EzClassify/internal/config"
)

// LastSavedNetworkKey holds the name of the most recently saved network
const LastSavedNetworkKey = "lastSavedNNName"

// Store is a string key/value preference slot
type Store interface {
	// Get returns the value for key and whether it was set
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error
	// Delete removes key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
	// Close releases the backend connection
	Close() error
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Open returns the Store selected by config
func Open(ctx context.Context, cfg config.PrefsConfig) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		path, err := config.ExpandPath(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(path)
	case "redis":
		return DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown prefs backend: %s", cfg.Backend)
	}
}
