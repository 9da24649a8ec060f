package http

import "github.com/gin-gonic/gin"

// Register mounts every console route on r
func Register(r gin.IRouter, h *Handlers) {
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)

	ext := r.Group("/extensions")
	ext.GET("", h.ListExtensions)
	ext.GET("/:id", h.GetExtension)
	ext.GET("/:id/document", h.Document)
	ext.POST("/:id/activate", h.Activate)
	ext.POST("/:id/deactivate", h.Deactivate)
	ext.POST("/:id/retry", h.Retry)
	ext.POST("/:id/reload", h.Reload)
	ext.POST("/:id/select", h.Select)
	ext.DELETE("/:id", h.Uninstall)

	r.POST("/catalog/sync", h.SyncCatalog)
	r.GET("/catalog/updates", h.Updates)

	r.GET("/prompts", h.Prompts)
	r.POST("/prompts/:id/approve", h.ApprovePrompt)
	r.POST("/prompts/:id/deny", h.DenyPrompt)

	r.GET("/commands", h.Commands)
	r.POST("/commands/invoke", h.InvokeCommand)
	r.POST("/palette/toggle", h.TogglePalette)
	r.POST("/palette/close", h.ClosePalette)
	r.POST("/console/toggle", h.ToggleConsole)

	r.GET("/notifications", h.Notifications)
	r.DELETE("/notifications/:id", h.DismissNotification)

	r.GET("/logs", h.Logs)
	r.GET("/events", h.Events)
}
