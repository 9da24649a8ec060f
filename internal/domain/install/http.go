package install

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/providers/http/client"
)

// HTTPStore talks to the remote install-state API:
//
//	GET    /extensions/user       -> {installs, total}
//	POST   /extensions/user/{id}  {approvedPermissions, settings}
//	PATCH  /extensions/user/{id}  {settings}
//	DELETE /extensions/user/{id}
type HTTPStore struct {
	client *client.Client
}

// NewHTTPStore creates a store on top of a configured client.
func NewHTTPStore(c *client.Client) *HTTPStore {
	return &HTTPStore{client: c}
}

type listResponse struct {
	Installs []Install `json:"installs"`
	Total    int       `json:"total"`
}

type saveRequest struct {
	ApprovedPermissions []manifest.Permission `json:"approvedPermissions"`
	Settings            map[string]any        `json:"settings"`
}

type patchRequest struct {
	Settings map[string]any `json:"settings"`
}

func userPath(extID string) string {
	return "/extensions/user/" + url.PathEscape(extID)
}

func notFound(err error) error {
	if client.IsStatus(err, http.StatusNotFound) {
		return errors.Join(ErrNotFound, err)
	}
	return err
}

func (s *HTTPStore) List(ctx context.Context) ([]Install, error) {
	var resp listResponse
	if err := s.client.GetJSON(ctx, "/extensions/user", &resp); err != nil {
		return nil, err
	}
	return resp.Installs, nil
}

// Get has no dedicated endpoint; it filters the user's list.
func (s *HTTPStore) Get(ctx context.Context, extID string) (*Install, error) {
	installs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range installs {
		if installs[i].ExtensionID == extID {
			return &installs[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *HTTPStore) Save(ctx context.Context, extID string, approved []manifest.Permission, settings map[string]any) (*Install, error) {
	if approved == nil {
		approved = []manifest.Permission{}
	}
	if settings == nil {
		settings = map[string]any{}
	}

	var out Install
	err := s.client.SendJSON(ctx, http.MethodPost, userPath(extID), saveRequest{
		ApprovedPermissions: approved,
		Settings:            settings,
	}, &out)
	if err != nil {
		return nil, notFound(err)
	}
	if out.ExtensionID == "" {
		out = Install{ExtensionID: extID, ApprovedPermissions: approved, Settings: settings, InstalledAt: time.Now()}
	}
	return &out, nil
}

func (s *HTTPStore) UpdateSettings(ctx context.Context, extID string, settings map[string]any) error {
	if settings == nil {
		settings = map[string]any{}
	}
	return notFound(s.client.SendJSON(ctx, http.MethodPatch, userPath(extID), patchRequest{Settings: settings}, nil))
}

func (s *HTTPStore) Delete(ctx context.Context, extID string) error {
	return notFound(s.client.SendJSON(ctx, http.MethodDelete, userPath(extID), nil, nil))
}
