// Package ws streams the status snapshot to WebSocket clients.
//
// A client receives the current snapshot right after connecting, then again
// after every poll cycle (Notify) and on each keepalive tick. Messages are
//
//	{"event": "snapshot", "data": { /* same schema as GET /api/v1/snapshot */ }}
//
// The upgrader accepts all origins; restrict them at the reverse proxy.
package ws
