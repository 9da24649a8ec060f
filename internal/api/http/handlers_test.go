package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/install"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/permission"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/registry"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/providers/storage"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/sandbox"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

const greeterJS = `
module.exports.activate = function (openldr) {
	openldr.ui.registerCommand("lab.greet", "Greet", function (name) {
		openldr.ui.showNotification("hello " + name, "success");
	});
};
`

const panelHTML = `<!DOCTYPE html><html><head><title>Panel</title></head><body>
<div id="app"></div>
<script>
OPENLDR_BRIDGE_INJECT
document.getElementById("app").textContent = "panel ready";
</script>
</body></html>`

func writeExtension(t *testing.T, root, dir, manifestJSON, entry, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, dir, "manifest.json"), []byte(manifestJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, dir, entry), []byte(body), 0o644))
}

func setupRouter(t *testing.T) (*gin.Engine, *lifecycle.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	writeExtension(t, root, "greeter", `{
		"id": "lab.greeter", "name": "Greeter", "version": "1.0.0", "author": "lab",
		"kind": "worker", "entry": "index.js",
		"permissions": ["ui.commands", "ui.notifications"]
	}`, "index.js", greeterJS)
	writeExtension(t, root, "panel", `{
		"id": "lab.panel", "name": "Panel", "version": "0.2.0", "author": "lab",
		"kind": "iframe", "slot": "main", "entry": "index.html", "permissions": []
	}`, "index.html", panelHTML)

	clk := clock.Real()
	installs := install.NewMemory(clk)
	m := lifecycle.NewManager(lifecycle.Deps{
		Catalog: registry.NewLoader(registry.NewDirSource(root), registry.LoaderOptions{HostVersion: "1.0.0"}),
		Sandboxes: sandbox.NewAdapter(sandbox.Config{
			ScriptTimeout: time.Second,
			CallTimeout:   5 * time.Second,
			Clock:         clk,
		}, zap.NewNop(), nil),
		Installs:    installs,
		Permissions: permission.NewManager(installs, clk, nil, nil),
		KV:          storage.New(installs),
	}, lifecycle.Options{HandshakeTimeout: 5 * time.Second})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, m.Shutdown(ctx))
	})

	router := gin.New()
	Register(router, NewHandlers(m, "1.0.0"))
	return router, m
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func syncCatalog(t *testing.T, router *gin.Engine) {
	t.Helper()
	w := do(t, router, http.MethodPost, "/catalog/sync", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t)
	syncCatalog(t, router)

	w := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Extensions map[string]int `json:"extensions"`
	}
	decode(t, w, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.0.0", body.Version)
	assert.Equal(t, 2, body.Extensions[string(lifecycle.StateAvailable)])
}

func TestExtensionIDValidation(t *testing.T) {
	router, _ := setupRouter(t)
	syncCatalog(t, router)

	w := do(t, router, http.MethodGet, "/extensions/Not%20Valid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/extensions/lab.missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/extensions/lab.greeter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ext lifecycle.Extension
	decode(t, w, &ext)
	assert.Equal(t, "Greeter", ext.Name)
	assert.Equal(t, lifecycle.StateAvailable, ext.State)
}

func TestIllegalTransitionIsConflict(t *testing.T) {
	router, _ := setupRouter(t)
	syncCatalog(t, router)

	w := do(t, router, http.MethodPost, "/extensions/lab.greeter/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/extensions/lab.greeter/deactivate", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodGet, "/extensions/lab.panel/document", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestActivateApproveAndInvoke(t *testing.T) {
	router, m := setupRouter(t)
	syncCatalog(t, router)

	w := do(t, router, http.MethodPost, "/extensions/lab.greeter/activate", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var prompts struct {
		Prompts []permission.Prompt `json:"prompts"`
	}
	require.Eventually(t, func() bool {
		decode(t, do(t, router, http.MethodGet, "/prompts", nil), &prompts)
		return len(prompts.Prompts) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "lab.greeter", prompts.Prompts[0].ExtID)

	w = do(t, router, http.MethodPost, "/prompts/"+string(prompts.Prompts[0].ID)+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodPost, "/prompts/"+string(prompts.Prompts[0].ID)+"/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "a prompt is answered once")

	require.Eventually(t, func() bool {
		return m.Store().StateOf("lab.greeter") == lifecycle.StateActive
	}, 3*time.Second, 10*time.Millisecond)

	var commands struct {
		Commands []struct {
			ID          string `json:"id"`
			ExtensionID string `json:"extensionId"`
		} `json:"commands"`
	}
	require.Eventually(t, func() bool {
		decode(t, do(t, router, http.MethodGet, "/commands?q=greet", nil), &commands)
		return len(commands.Commands) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "lab.greet", commands.Commands[0].ID)
	assert.Equal(t, "lab.greeter", commands.Commands[0].ExtensionID)

	w = do(t, router, http.MethodPost, "/commands/invoke", gin.H{"extId": "lab.greeter", "id": "lab.greet", "args": []string{"lab"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var notes struct {
		Notifications []struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		} `json:"notifications"`
	}
	require.Eventually(t, func() bool {
		decode(t, do(t, router, http.MethodGet, "/notifications", nil), &notes)
		return len(notes.Notifications) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "hello lab", notes.Notifications[0].Message)

	w = do(t, router, http.MethodDelete, "/notifications/"+notes.Notifications[0].ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodDelete, "/notifications/"+notes.Notifications[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var logs struct {
		Entries []struct {
			ExtID string `json:"extId"`
			Event string `json:"event"`
		} `json:"entries"`
	}
	decode(t, do(t, router, http.MethodGet, "/logs?ext=lab.greeter", nil), &logs)
	events := make([]string, 0, len(logs.Entries))
	for _, e := range logs.Entries {
		assert.Equal(t, "lab.greeter", e.ExtID)
		events = append(events, e.Event)
	}
	assert.Contains(t, events, "command.invoke")
	assert.Contains(t, events, "ui.showNotification")

	w = do(t, router, http.MethodDelete, "/extensions/lab.greeter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, lifecycle.StateAvailable, m.Store().StateOf("lab.greeter"))
}

func TestInvokeValidation(t *testing.T) {
	router, _ := setupRouter(t)
	syncCatalog(t, router)

	w := do(t, router, http.MethodPost, "/commands/invoke", gin.H{"id": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/commands/invoke", gin.H{"extId": "lab.greeter", "id": "no spaces allowed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/commands/invoke", gin.H{"extId": "lab.greeter", "id": "lab.greet"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBuiltinCommandsAndPanels(t *testing.T) {
	router, m := setupRouter(t)
	syncCatalog(t, router)

	w := do(t, router, http.MethodPost, "/palette/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ui struct {
		PaletteOpen bool `json:"paletteOpen"`
		ConsoleOpen bool `json:"consoleOpen"`
	}
	decode(t, w, &ui)
	assert.True(t, ui.PaletteOpen)

	w = do(t, router, http.MethodPost, "/commands/invoke", gin.H{"extId": "host", "id": "__console"})
	require.Equal(t, http.StatusOK, w.Code)
	palette, console, _ := m.Store().UI()
	assert.False(t, palette, "invoking a command closes the palette")
	assert.True(t, console)

	w = do(t, router, http.MethodPost, "/commands/invoke", gin.H{"extId": "host", "id": "__refresh"})
	require.Equal(t, http.StatusOK, w.Code)

	var events struct {
		Events []lifecycle.AppEvent `json:"events"`
	}
	decode(t, do(t, router, http.MethodGet, "/events", nil), &events)
	require.Len(t, events.Events, 1)
	assert.Equal(t, "data.refresh", events.Events[0].Topic)

	w = do(t, router, http.MethodGet, "/logs?ext=host&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodGet, "/logs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIframeDocumentRoute(t *testing.T) {
	router, m := setupRouter(t)
	syncCatalog(t, router)

	w := do(t, router, http.MethodPost, "/extensions/lab.panel/activate", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Eventually(t, func() bool {
		return m.Store().StateOf("lab.panel") == lifecycle.StateActive
	}, 3*time.Second, 10*time.Millisecond)

	w = do(t, router, http.MethodGet, "/extensions/lab.panel/document", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "sandbox "+sandbox.IframeSandbox, w.Header().Get("Content-Security-Policy"))
	assert.Contains(t, w.Body.String(), "panel ready")

	w = do(t, router, http.MethodPost, "/extensions/lab.panel/select", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap lifecycle.Snapshot
	decode(t, w, &snap)
	assert.Equal(t, "lab.panel", snap.Selected)
	assert.Len(t, snap.Extensions, 2)
}
