// Package storage backs the storage.* capabilities with the settings map of
// each extension's install record.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/install"
)

// Store is a per-extension key-value store persisted through the
// install-state API. Settings are cached after the first read; writes go
// through to the API before the cache is updated.
type Store struct {
	installs install.Store
	cache    sync.Map // extID -> map[string]any
	locks    sync.Map // extID -> *sync.Mutex
}

// New creates a settings-backed store
func New(installs install.Store) *Store {
	return &Store{installs: installs}
}

func (s *Store) lock(extID string) func() {
	v, _ := s.locks.LoadOrStore(extID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// settings returns the cached settings, loading them on first use. Callers
// hold the extension lock and must not mutate the result.
func (s *Store) settings(ctx context.Context, extID string) (map[string]any, error) {
	if cached, ok := s.cache.Load(extID); ok {
		return cached.(map[string]any), nil
	}

	rec, err := s.installs.Get(ctx, extID)
	switch {
	case errors.Is(err, install.ErrNotFound):
		return map[string]any{}, nil
	case err != nil:
		return nil, fmt.Errorf("load settings for %s: %w", extID, err)
	}

	settings := rec.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	s.cache.Store(extID, settings)
	return settings, nil
}

// Get returns the value under key, or nil when absent
func (s *Store) Get(ctx context.Context, extID, key string) (any, error) {
	unlock := s.lock(extID)
	defer unlock()

	settings, err := s.settings(ctx, extID)
	if err != nil {
		return nil, err
	}
	return settings[key], nil
}

// Set stores value under key
func (s *Store) Set(ctx context.Context, extID, key string, value any) error {
	return s.update(ctx, extID, func(next map[string]any) {
		next[key] = value
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, extID, key string) error {
	unlock := s.lock(extID)
	settings, err := s.settings(ctx, extID)
	unlock()
	if err != nil {
		return err
	}
	if _, ok := settings[key]; !ok {
		return nil
	}
	return s.update(ctx, extID, func(next map[string]any) {
		delete(next, key)
	})
}

// Keys lists the stored keys of one extension
func (s *Store) Keys(ctx context.Context, extID string) ([]string, error) {
	unlock := s.lock(extID)
	defer unlock()

	settings, err := s.settings(ctx, extID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	return keys, nil
}

// Forget drops the cached settings, e.g. after uninstall
func (s *Store) Forget(extID string) {
	s.cache.Delete(extID)
}

func (s *Store) update(ctx context.Context, extID string, mutate func(map[string]any)) error {
	unlock := s.lock(extID)
	defer unlock()

	current, err := s.settings(ctx, extID)
	if err != nil {
		return err
	}

	next := make(map[string]any, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	mutate(next)

	err = s.installs.UpdateSettings(ctx, extID, next)
	if errors.Is(err, install.ErrNotFound) {
		// No record yet: an extension without gated permissions is never
		// persisted by the permission gate.
		_, err = s.installs.Save(ctx, extID, nil, next)
	}
	if err != nil {
		return fmt.Errorf("save settings for %s: %w", extID, err)
	}

	s.cache.Store(extID, next)
	return nil
}
