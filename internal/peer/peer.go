// Package peer wraps the WebRTC engine behind the small surface the signaling
// relay needs: apply a remote signal, observe an ordered event stream, and
// destroy the connection.
package peer

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/signal"
)

var (
	ErrDestroyed          = errors.New("peer: connection destroyed")
	ErrUnsupportedSignal  = errors.New("peer: unsupported signal")
	ErrConnectionFailed   = errors.New("peer: connection failed")
	ErrLocalDescription   = errors.New("peer: missing local description")
	ErrGatheringCancelled = errors.New("peer: ice gathering cancelled")
)

type Role int

const (
	RoleResponder Role = iota
	RoleInitiator
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// Options configures one peer connection.
type Options struct {
	Role       Role
	ICEServers []webrtc.ICEServer
	// Trickle sends each local ICE candidate as soon as it is gathered. When
	// false the local description is held until gathering completes and
	// carries every candidate inline.
	Trickle bool
}

type EventKind int

const (
	// EventSignal carries a local offer, answer or candidate for the remote side.
	EventSignal EventKind = iota
	EventConnected
	EventClosed
	EventError
	EventTrack
)

func (k EventKind) String() string {
	switch k {
	case EventSignal:
		return "signal"
	case EventConnected:
		return "connected"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	case EventTrack:
		return "track"
	default:
		return "unknown"
	}
}

// TrackInfo describes a remote media track. Media itself is never read.
type TrackInfo struct {
	ID       string
	StreamID string
	Kind     string
	MimeType string
}

type Event struct {
	Kind   EventKind
	Signal signal.Envelope
	Err    error
	Track  TrackInfo
}

// Conn is a single peer connection attempt.
//
// Signal is called from one goroutine at a time. Destroy may race with Signal;
// a Signal after Destroy returns ErrDestroyed or an engine error. Events are
// delivered in the order the engine produced them and stop after Destroy.
type Conn interface {
	Signal(env signal.Envelope) error
	Events() <-chan Event
	// Destroy releases all resources. Calls after the first are no-ops.
	Destroy() error
}

type Factory interface {
	New(opts Options) (Conn, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(opts Options) (Conn, error)

func (f FactoryFunc) New(opts Options) (Conn, error) { return f(opts) }
