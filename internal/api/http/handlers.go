package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/permission"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	manager     *lifecycle.Manager
	hostVersion string
	started     time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(manager *lifecycle.Manager, hostVersion string) *Handlers {
	return &Handlers{
		manager:     manager,
		hostVersion: hostVersion,
		started:     time.Now(),
	}
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     "exthost",
		"version":     h.hostVersion,
		"session":     h.manager.Session(),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"extensions":  h.manager.Store().Counts(),
		"prompts":     len(h.manager.Permissions().Pending()),
		"log_entries": h.manager.Log().Len(),
	})
}

// Status returns the full console snapshot
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Snapshot())
}

// extensionID reads and validates the :id path parameter. On failure the
// response has already been written.
func extensionID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !manifest.ValidID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid extension id"})
		return "", false
	}
	return id, true
}

// statusFor maps a manager error onto an HTTP status
func statusFor(err error) int {
	var terr *lifecycle.TransitionError
	switch {
	case errors.Is(err, lifecycle.ErrUnknownExtension),
		errors.Is(err, lifecycle.ErrUnknownCommand),
		errors.Is(err, permission.ErrNoPrompt):
		return http.StatusNotFound
	case errors.As(err, &terr), errors.Is(err, lifecycle.ErrNotActive), errors.Is(err, faults.Disposed):
		return http.StatusConflict
	case errors.Is(err, faults.ProtocolViolation):
		return http.StatusBadRequest
	case errors.Is(err, faults.PermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, faults.FetchFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, faults.Timeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if kind, ok := faults.KindOf(err); ok {
		body["kind"] = kind
	}
	c.JSON(statusFor(err), body)
}
