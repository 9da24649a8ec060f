package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/command"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/id"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/utils"
)

// InvokeRequest is the body of POST /commands/invoke
type InvokeRequest struct {
	ExtID string        `json:"extId" binding:"required"`
	ID    string        `json:"id" binding:"required"`
	Args  []interface{} `json:"args"`
}

// Prompts lists the permission prompt queue; the first entry is the one
// the console shows
func (h *Handlers) Prompts(c *gin.Context) {
	pending := h.manager.Permissions().Pending()
	c.JSON(http.StatusOK, gin.H{
		"prompts": pending,
		"count":   len(pending),
	})
}

// ApprovePrompt grants the requested permissions
func (h *Handlers) ApprovePrompt(c *gin.Context) {
	if err := h.manager.Permissions().Approve(id.PromptID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DenyPrompt rejects the requested permissions
func (h *Handlers) DenyPrompt(c *gin.Context) {
	if err := h.manager.Permissions().Deny(id.PromptID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Commands lists palette commands matching ?q=; mode=fuzzy ranks them
func (h *Handlers) Commands(c *gin.Context) {
	query := c.Query("q")
	if err := utils.ValidateString(query, "q", 0, utils.MaxTitleLength, false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	matches := h.manager.Commands(query, c.Query("mode") == "fuzzy")
	c.JSON(http.StatusOK, gin.H{
		"commands": matches,
		"count":    len(matches),
	})
}

// InvokeCommand runs a palette command
func (h *Handlers) InvokeCommand(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ExtID != command.HostID && !manifest.ValidID(req.ExtID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid extension id"})
		return
	}
	if err := utils.ValidateCommandID(req.ID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateValue(req.Args, "args"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.Invoke(c.Request.Context(), req.ExtID, req.ID, req.Args); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Notifications lists visible notifications, newest first
func (h *Handlers) Notifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.manager.Notifications()})
}

// DismissNotification removes one notification
func (h *Handlers) DismissNotification(c *gin.Context) {
	if !h.manager.Dismiss(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Logs returns the bridge traffic log. ?ext= narrows it to one extension
// (or the host); "all" or empty returns everything. ?limit= keeps the
// newest n entries.
func (h *Handlers) Logs(c *gin.Context) {
	ext := c.Query("ext")
	if ext == "all" {
		ext = ""
	}
	if ext != "" && ext != command.HostID && !manifest.ValidID(ext) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid extension id"})
		return
	}

	log := h.manager.Log()
	entries := log.Entries(ext)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		if n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":  entries,
		"count":    len(entries),
		"retained": log.Len(),
		"total":    log.Total(),
	})
}

// Events returns recent app events, most recent first
func (h *Handlers) Events(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.manager.Store().Events()})
}

// TogglePalette flips the command palette
func (h *Handlers) TogglePalette(c *gin.Context) {
	h.manager.TogglePalette()
	h.ui(c)
}

// ClosePalette closes the command palette
func (h *Handlers) ClosePalette(c *gin.Context) {
	h.manager.ClosePalette()
	h.ui(c)
}

// ToggleConsole flips the IPC console
func (h *Handlers) ToggleConsole(c *gin.Context) {
	h.manager.ToggleConsole()
	h.ui(c)
}

func (h *Handlers) ui(c *gin.Context) {
	palette, console, selected := h.manager.Store().UI()
	c.JSON(http.StatusOK, gin.H{
		"paletteOpen": palette,
		"consoleOpen": console,
		"selected":    selected,
	})
}
