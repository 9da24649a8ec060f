// Package client is the REST client shared by every outbound collaborator of
// the extension host: the registry, the install-state API and the data
// capability backend.
//
// Built on go-resty/resty:
//   - Retries with backoff on transport errors and 5xx responses
//   - Pooled keep-alive transport from hashicorp/go-retryablehttp
//   - Per-client rate limiting (golang.org/x/time/rate)
//   - A circuit breaker per collaborator; 4xx responses do not trip it
//   - Bearer token and X-API-Key headers
//   - bytedance/sonic for JSON bodies
//
// Non-2xx responses come back as *StatusError so callers can map them onto
// lifecycle failures.
//
// Example Usage:
//
//	c := client.New(client.DefaultOptions("registry", cfg.Registry.URL))
//	var list []manifest.Manifest
//	err := c.GetJSON(ctx, "/extensions", &list)
package client
