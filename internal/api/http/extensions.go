package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/sandbox"
)

// ListExtensions lists every known extension with its lifecycle state
func (h *Handlers) ListExtensions(c *gin.Context) {
	store := h.manager.Store()
	c.JSON(http.StatusOK, gin.H{
		"extensions": store.List(),
		"counts":     store.Counts(),
	})
}

// GetExtension returns one extension
func (h *Handlers) GetExtension(c *gin.Context) {
	id, ok := extensionID(c)
	if !ok {
		return
	}
	ext, found := h.manager.Store().Get(id)
	if !found {
		fail(c, lifecycle.ErrUnknownExtension)
		return
	}
	c.JSON(http.StatusOK, ext)
}

// Document serves the rendered document of an active iframe extension.
// The response carries the same sandbox restrictions the console frame uses.
func (h *Handlers) Document(c *gin.Context) {
	id, ok := extensionID(c)
	if !ok {
		return
	}
	doc, err := h.manager.Document(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Security-Policy", "sandbox "+sandbox.IframeSandbox)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

// lifecycleAction adapts a manager operation keyed by extension id
func (h *Handlers) lifecycleAction(op func(id string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := extensionID(c)
		if !ok {
			return
		}
		if err := op(id); err != nil {
			fail(c, err)
			return
		}
		ext, _ := h.manager.Store().Get(id)
		c.JSON(http.StatusAccepted, ext)
	}
}

// Activate starts activation; progress is observed through /stream
func (h *Handlers) Activate(c *gin.Context) { h.lifecycleAction(h.manager.Activate)(c) }

// Deactivate stops a live extension
func (h *Handlers) Deactivate(c *gin.Context) { h.lifecycleAction(h.manager.Deactivate)(c) }

// Retry re-activates an extension in the error state
func (h *Handlers) Retry(c *gin.Context) { h.lifecycleAction(h.manager.Retry)(c) }

// Reload drops the cached payload and activates again
func (h *Handlers) Reload(c *gin.Context) { h.lifecycleAction(h.manager.Reload)(c) }

// Select focuses an extension in the console
func (h *Handlers) Select(c *gin.Context) {
	id, ok := extensionID(c)
	if !ok {
		return
	}
	if err := h.manager.Select(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "selected": id})
}

// Uninstall removes the install record and stored settings
func (h *Handlers) Uninstall(c *gin.Context) {
	id, ok := extensionID(c)
	if !ok {
		return
	}
	if err := h.manager.Uninstall(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "extension_id": id})
}

// SyncCatalog reloads the catalog and re-activates installed extensions
func (h *Handlers) SyncCatalog(c *gin.Context) {
	if err := h.manager.SyncCatalog(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"extensions": h.manager.Store().List(),
	})
}

// Updates lists installed extensions with a newer catalog version
func (h *Handlers) Updates(c *gin.Context) {
	updates, err := h.manager.Updates(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updates": updates})
}
