package install

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/providers/http/client"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Unix(100, 0))
	s := NewMemory(clk)

	_, err := s.Get(ctx, "lab.a")
	assert.ErrorIs(t, err, ErrNotFound)

	perms := []manifest.Permission{manifest.PermDataQuery}
	saved, err := s.Save(ctx, "lab.a", perms, map[string]any{"theme": "dark"})
	require.NoError(t, err)
	assert.True(t, saved.Approved().Has(manifest.PermDataQuery))

	// Mutating the caller's slice does not leak into the store
	perms[0] = manifest.PermEventsEmit
	got, err := s.Get(ctx, "lab.a")
	require.NoError(t, err)
	assert.Equal(t, []manifest.Permission{manifest.PermDataQuery}, got.ApprovedPermissions)

	clk.Advance(time.Minute)
	_, err = s.Save(ctx, "lab.a", nil, nil)
	require.NoError(t, err)
	got, _ = s.Get(ctx, "lab.a")
	assert.Equal(t, time.Unix(100, 0), got.InstalledAt, "re-saving keeps the original install time")

	require.NoError(t, s.UpdateSettings(ctx, "lab.a", map[string]any{"k": "v"}))
	got, _ = s.Get(ctx, "lab.a")
	assert.Equal(t, "v", got.Settings["k"])

	assert.ErrorIs(t, s.UpdateSettings(ctx, "lab.b", nil), ErrNotFound)

	require.NoError(t, s.Delete(ctx, "lab.a"))
	assert.ErrorIs(t, s.Delete(ctx, "lab.a"), ErrNotFound)
}

func TestHTTPStore(t *testing.T) {
	var (
		lastMethod string
		lastBody   map[string]any
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/extensions/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"installs":[{"extensionId":"lab.a","approvedPermissions":["data.query"],"settings":{}}],"total":1}`)
	})
	mux.HandleFunc("/extensions/user/", func(w http.ResponseWriter, r *http.Request) {
		lastMethod = r.Method
		lastBody = nil
		if r.ContentLength > 0 {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
		}
		if r.URL.Path == "/extensions/user/lab.missing" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"Install record not found"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
		}
		io.WriteString(w, `{"extensionId":"lab.b","approvedPermissions":["events.emit"],"settings":{}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	opts := client.DefaultOptions("install", srv.URL)
	opts.Retries = 0
	opts.Token = "secret"
	s := NewHTTPStore(client.New(opts))
	ctx := context.Background()

	got, err := s.Get(ctx, "lab.a")
	require.NoError(t, err)
	assert.Equal(t, []manifest.Permission{manifest.PermDataQuery}, got.ApprovedPermissions)

	_, err = s.Get(ctx, "lab.zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	saved, err := s.Save(ctx, "lab.b", []manifest.Permission{manifest.PermEventsEmit}, nil)
	require.NoError(t, err)
	assert.Equal(t, "lab.b", saved.ExtensionID)
	assert.Equal(t, http.MethodPost, lastMethod)
	assert.Equal(t, []any{"events.emit"}, lastBody["approvedPermissions"])
	assert.Equal(t, map[string]any{}, lastBody["settings"])

	require.NoError(t, s.UpdateSettings(ctx, "lab.b", map[string]any{"x": 1.0}))
	assert.Equal(t, http.MethodPatch, lastMethod)
	assert.Equal(t, map[string]any{"x": 1.0}, lastBody["settings"])

	assert.ErrorIs(t, s.Delete(ctx, "lab.missing"), ErrNotFound)
	assert.Equal(t, http.MethodDelete, lastMethod)
}
