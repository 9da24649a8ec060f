// Package install persists per-user extension installs: the permissions the
// user approved and the extension's settings.
package install

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
)

// ErrNotFound is returned when no install record exists.
var ErrNotFound = errors.New("install record not found")

// Install is one user's install of one extension.
type Install struct {
	ExtensionID         string                `json:"extensionId"`
	InstalledAt         time.Time             `json:"installedAt"`
	ApprovedPermissions []manifest.Permission `json:"approvedPermissions"`
	Settings            map[string]any        `json:"settings"`
	Extension           *manifest.Manifest    `json:"extension,omitempty"`
}

// Approved returns the approved permissions as a set.
func (i Install) Approved() manifest.Set {
	return manifest.NewSet(i.ApprovedPermissions...)
}

// Clone returns a copy that shares no maps or slices with i.
func (i Install) Clone() Install {
	out := i
	out.ApprovedPermissions = append([]manifest.Permission(nil), i.ApprovedPermissions...)
	out.Settings = make(map[string]any, len(i.Settings))
	for k, v := range i.Settings {
		out.Settings[k] = v
	}
	if i.Extension != nil {
		m := i.Extension.Clone()
		out.Extension = &m
	}
	return out
}

// Store is the install-state API.
type Store interface {
	// List returns every install of the current user.
	List(ctx context.Context) ([]Install, error)
	// Get returns ErrNotFound when the extension is not installed.
	Get(ctx context.Context, extID string) (*Install, error)
	// Save creates or replaces an install record.
	Save(ctx context.Context, extID string, approved []manifest.Permission, settings map[string]any) (*Install, error)
	// UpdateSettings replaces the settings of an existing install.
	UpdateSettings(ctx context.Context, extID string, settings map[string]any) error
	// Delete removes an install record.
	Delete(ctx context.Context, extID string) error
}
