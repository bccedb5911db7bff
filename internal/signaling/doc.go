// Package signaling accepts WebSocket connections from remote peers and runs
// one dispatcher per connection. The dispatcher relays offers, answers and ICE
// candidates between the socket and a server-side peer session.
package signaling
