// Package session holds the server-side half of one signaling exchange: a
// responder peer connection, its lifecycle state, and the registry that makes
// teardown happen exactly once.
//
// A Session is owned by the dispatcher goroutine of the WebSocket that sent the
// opening offer. Only Close is safe to call from other goroutines (for example
// Registry.CloseAll during shutdown).
package session
