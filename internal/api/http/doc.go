// Package http provides the console's REST surface over the extension host.
//
// Every handler is a thin translation from a gin request onto the
// lifecycle manager. Failures are mapped onto status codes in one place
// (statusFor) so the console sees the same code for the same fault class on
// every route.
//
// Endpoints:
//   - Health: /health
//   - Extensions: /extensions, /extensions/:id, /extensions/:id/document,
//     /extensions/:id/{activate,deactivate,retry,reload,select}
//   - Catalog: /catalog/sync, /catalog/updates
//   - Prompts: /prompts, /prompts/:id/{approve,deny}
//   - Palette: /commands, /commands/invoke, /palette/{toggle,close}
//   - Notifications: /notifications, /notifications/:id
//   - Inspection: /logs, /events, /status, /console/toggle
//
// Example Usage:
//
//	handlers := http.NewHandlers(manager, "1.4.0")
//	http.Register(router, handlers)
package http
