// Package ws streams console state over WebSocket.
//
// A connection receives a snapshot frame on connect and another one after
// every state change. Changes are coalesced: a slow client gets the latest
// snapshot, not every intermediate one. Clients may also follow the bridge
// log, which is pushed entry by entry and dropped when the client falls
// behind.
//
// Client messages:
//   - {"type":"ping"} answered with {"type":"pong"}
//   - {"type":"snapshot"} requests a fresh snapshot
//   - {"type":"logs","ext":"all"|"<id>"|""} follows the log; "" stops
package ws
