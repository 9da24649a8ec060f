package registry

import (
	"context"
	"net/url"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/providers/http/client"
)

// HTTPSource reads the catalog from a remote registry:
//
//	GET {base}/extensions            -> CatalogResponse
//	GET {base}/extensions/{id}       -> Manifest
//	GET {codeUrl | base/extensions/{id}/code} -> CodeResponse
type HTTPSource struct {
	client *client.Client
}

// NewHTTPSource creates a source on top of a configured client.
func NewHTTPSource(c *client.Client) *HTTPSource {
	return &HTTPSource{client: c}
}

func (s *HTTPSource) Catalog(ctx context.Context) ([]manifest.Manifest, error) {
	var resp CatalogResponse
	if err := s.client.GetJSON(ctx, "/extensions", &resp); err != nil {
		return nil, err
	}
	return resp.Extensions, nil
}

func (s *HTTPSource) Manifest(ctx context.Context, id string) (*manifest.Manifest, error) {
	var m manifest.Manifest
	if err := s.client.GetJSON(ctx, "/extensions/"+url.PathEscape(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *HTTPSource) Payload(ctx context.Context, m manifest.Manifest) (*Payload, error) {
	path := m.CodeURL
	if path == "" {
		path = "/extensions/" + url.PathEscape(m.ID) + "/code"
	}

	var resp CodeResponse
	if err := s.client.GetJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	p := &Payload{
		ExtID:     resp.ID,
		Version:   resp.Version,
		Kind:      resp.Kind,
		Body:      []byte(resp.Payload),
		Integrity: resp.Integrity,
	}
	if resp.CacheUntil > 0 {
		p.CacheUntil = time.UnixMilli(resp.CacheUntil)
	}
	return p, nil
}
