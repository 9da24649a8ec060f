// Package config provides 12-factor configuration management for the extension host.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: developer console HTTP settings (port, host)
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting of the console API
//   - Registry: extension registry URL, or a local catalog directory, and payload cache
//   - Install: install-state API URL (empty keeps installs in memory)
//   - Data: data capability backend URL and client-side rate limit
//   - Auth: bearer token and API key forwarded to collaborators
//   - Runtime: handshake, call and script timeouts, log retention, notification TTL
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Console listening on %s\n", cfg.Addr())
//
// Environment Variables:
//   - PORT, HOST, LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - REGISTRY_URL, REGISTRY_DIR, REGISTRY_CACHE_DIR, REGISTRY_TIMEOUT
//   - INSTALL_API_URL, DATA_API_URL, DATA_RPS, AUTH_TOKEN, API_KEY
//   - HOST_VERSION, HANDSHAKE_TIMEOUT, CALL_TIMEOUT, SCRIPT_TIMEOUT
//   - LOG_RETENTION, NOTIFY_TTL, EVENT_HISTORY
package config
