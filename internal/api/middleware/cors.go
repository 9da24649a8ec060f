package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/tracing"
)

// CORSConfig defines which console origins may call the API.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows any origin. The console API carries no cookies,
// so credentials are never allowed.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Origin",
			"Authorization",
			"Cache-Control",
			tracing.TraceHeader,
			tracing.SpanHeader,
		},
		MaxAge: 12 * time.Hour,
	}
}

// WithOrigins narrows the config to the given origins. An empty list keeps it unchanged.
func (c CORSConfig) WithOrigins(origins []string) CORSConfig {
	if len(origins) > 0 {
		c.AllowOrigins = origins
	}
	return c
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	out := cors.Config{
		AllowMethods:    cfg.AllowMethods,
		AllowHeaders:    cfg.AllowHeaders,
		ExposeHeaders:   []string{tracing.TraceHeader, tracing.SpanHeader},
		AllowWebSockets: true,
		MaxAge:          cfg.MaxAge,
	}
	if slices.Contains(cfg.AllowOrigins, "*") {
		out.AllowAllOrigins = true
	} else {
		out.AllowOrigins = cfg.AllowOrigins
	}
	return cors.New(out)
}
