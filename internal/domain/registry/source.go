package registry

import (
	"context"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
)

// Source supplies raw catalog data. Implementations do no validation.
type Source interface {
	Catalog(ctx context.Context) ([]manifest.Manifest, error)
	Manifest(ctx context.Context, id string) (*manifest.Manifest, error)
	Payload(ctx context.Context, m manifest.Manifest) (*Payload, error)
}

// Payload is an extension bundle as delivered by a source: JavaScript for
// worker extensions, an HTML document for iframe extensions.
type Payload struct {
	ExtID      string
	Version    string
	Kind       manifest.Kind
	Body       []byte
	Integrity  string
	CacheUntil time.Time
	MIME       string
}

// Bundle is a validated manifest with its verified payload.
type Bundle struct {
	Manifest manifest.Manifest
	Payload  Payload
}

// CatalogResponse is the registry's catalog document.
type CatalogResponse struct {
	Extensions []manifest.Manifest `json:"extensions"`
	Total      int                 `json:"total"`
	APIVersion string              `json:"apiVersion"`
}

// CodeResponse is the registry's payload document.
type CodeResponse struct {
	ID         string        `json:"id"`
	Kind       manifest.Kind `json:"kind"`
	Version    string        `json:"version,omitempty"`
	Payload    string        `json:"payload"`
	Integrity  string        `json:"integrity"`
	CacheUntil int64         `json:"cacheUntil"` // unix milliseconds
}

// Update reports a newer compatible catalog version of a loaded extension.
type Update struct {
	ExtID     string `json:"extId"`
	Current   string `json:"current"`
	Available string `json:"available"`
}
