// Package middleware holds the gin middleware in front of the console API.
//
//   - CORS: which console origins may call the API; trace headers are exposed
//   - RateLimit: per-IP token buckets with idle eviction and exempt paths
//   - GlobalRateLimit: one bucket shared by every caller
package middleware
