package install

import (
	"context"
	"sort"
	"sync"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

// Memory is an in-process Store used when no install API is configured and
// in tests.
type Memory struct {
	mu       sync.RWMutex
	clock    clock.Clock
	installs map[string]Install
}

// NewMemory creates an empty store.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory{clock: clk, installs: make(map[string]Install)}
}

func (m *Memory) List(ctx context.Context) ([]Install, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Install, 0, len(m.installs))
	for _, i := range m.installs {
		out = append(out, i.Clone())
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].InstalledAt.Equal(out[b].InstalledAt) {
			return out[a].ExtensionID < out[b].ExtensionID
		}
		return out[a].InstalledAt.Before(out[b].InstalledAt)
	})
	return out, nil
}

func (m *Memory) Get(ctx context.Context, extID string) (*Install, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.installs[extID]
	if !ok {
		return nil, ErrNotFound
	}
	out := i.Clone()
	return &out, nil
}

func (m *Memory) Save(ctx context.Context, extID string, approved []manifest.Permission, settings map[string]any) (*Install, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := Install{
		ExtensionID:         extID,
		InstalledAt:         m.clock.Now(),
		ApprovedPermissions: approved,
		Settings:            settings,
	}
	if prev, ok := m.installs[extID]; ok {
		i.InstalledAt = prev.InstalledAt
	}
	i = i.Clone()
	m.installs[extID] = i

	out := i.Clone()
	return &out, nil
}

func (m *Memory) UpdateSettings(ctx context.Context, extID string, settings map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.installs[extID]
	if !ok {
		return ErrNotFound
	}
	i.Settings = settings
	m.installs[extID] = i.Clone()
	return nil
}

func (m *Memory) Delete(ctx context.Context, extID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.installs[extID]; !ok {
		return ErrNotFound
	}
	delete(m.installs, extID)
	return nil
}
