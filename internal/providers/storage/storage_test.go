package storage

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/install"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
)

type mockInstalls struct {
	mock.Mock
	install.Store
}

func (m *mockInstalls) Get(ctx context.Context, extID string) (*install.Install, error) {
	args := m.Called(ctx, extID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*install.Install), args.Error(1)
}

func (m *mockInstalls) UpdateSettings(ctx context.Context, extID string, settings map[string]any) error {
	return m.Called(ctx, extID, settings).Error(0)
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	installs := install.NewMemory(nil)
	_, err := installs.Save(ctx, "acme.notes", []manifest.Permission{manifest.PermStorageRead, manifest.PermStorageWrite}, nil)
	require.NoError(t, err)

	s := New(installs)

	v, err := s.Get(ctx, "acme.notes", "draft")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Set(ctx, "acme.notes", "draft", map[string]any{"text": "hi"}))
	require.NoError(t, s.Set(ctx, "acme.notes", "count", 2.0))

	v, err = s.Get(ctx, "acme.notes", "draft")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hi"}, v)

	// Persisted through the install record, approvals untouched
	rec, err := installs.Get(ctx, "acme.notes")
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.Settings["count"])
	assert.Len(t, rec.ApprovedPermissions, 2)

	keys, err := s.Keys(ctx, "acme.notes")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"count", "draft"}, keys)

	require.NoError(t, s.Delete(ctx, "acme.notes", "draft"))
	require.NoError(t, s.Delete(ctx, "acme.notes", "missing"))

	rec, err = installs.Get(ctx, "acme.notes")
	require.NoError(t, err)
	assert.NotContains(t, rec.Settings, "draft")
}

func TestSetWithoutRecordCreatesOne(t *testing.T) {
	ctx := context.Background()
	installs := install.NewMemory(nil)
	s := New(installs)

	require.NoError(t, s.Set(ctx, "acme.fresh", "k", "v"))

	rec, err := installs.Get(ctx, "acme.fresh")
	require.NoError(t, err)
	assert.Equal(t, "v", rec.Settings["k"])
}

func TestExtensionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New(install.NewMemory(nil))

	require.NoError(t, s.Set(ctx, "acme.a", "k", "a"))
	require.NoError(t, s.Set(ctx, "acme.b", "k", "b"))

	v, err := s.Get(ctx, "acme.a", "k")
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestFailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	installs := &mockInstalls{}
	installs.On("Get", ctx, "acme.x").Return(&install.Install{ExtensionID: "acme.x", Settings: map[string]any{"k": "old"}}, nil).Once()
	installs.On("UpdateSettings", ctx, "acme.x", mock.Anything).Return(errors.New("503")).Once()

	s := New(installs)
	err := s.Set(ctx, "acme.x", "k", "new")
	require.Error(t, err)

	v, err := s.Get(ctx, "acme.x", "k")
	require.NoError(t, err)
	assert.Equal(t, "old", v)
	installs.AssertExpectations(t)
}

func TestForgetReloads(t *testing.T) {
	ctx := context.Background()
	installs := install.NewMemory(nil)
	s := New(installs)
	require.NoError(t, s.Set(ctx, "acme.y", "k", "v"))

	require.NoError(t, installs.Delete(ctx, "acme.y"))
	s.Forget("acme.y")

	v, err := s.Get(ctx, "acme.y", "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}
