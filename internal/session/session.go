package session

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/peer"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/signal"
)

type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a session opened by Open.
type Options struct {
	// RemoteAddr identifies the bound channel in logs.
	RemoteAddr string
	// Peer is passed to the factory. Role is always forced to responder.
	Peer peer.Options
}

type Session struct {
	id         string
	remoteAddr string
	reg        *Registry
	log        *slog.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	state State
	conn  peer.Conn

	closeOnce sync.Once
}

// Open registers a new session, builds its responder peer connection and
// applies offer. On any failure after registration the session is closed
// before the error is returned, so callers never own a half-open session.
func Open(reg *Registry, factory peer.Factory, opts Options, offer signal.Envelope, logger *slog.Logger) (*Session, error) {
	if offer.Kind != signal.KindOffer || offer.SDP == "" {
		return nil, ErrInvalidOffer
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Session{
		remoteAddr: opts.RemoteAddr,
		metrics:    reg.metrics,
		state:      StateIdle,
	}
	s.mu.Lock()
	if err := reg.Register(s); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.log = logger.With("session_id", s.id, "remote_addr", s.remoteAddr)
	s.mu.Unlock()

	popts := opts.Peer
	popts.Role = peer.RoleResponder
	conn, err := factory.New(popts)
	if err != nil {
		s.Close("peer construction failed")
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s.mu.Lock()
	if s.state == StateClosed {
		// Closed by CloseAll while the peer was being built.
		s.mu.Unlock()
		_ = conn.Destroy()
		return nil, ErrSessionClosed
	}
	s.conn = conn
	s.mu.Unlock()

	s.metrics.Inc(metrics.SessionsOpened)
	s.log.Info("session opened", "trickle", popts.Trickle)

	if err := conn.Signal(offer); err != nil {
		s.metrics.Inc(metrics.PeerErrors)
		s.Close("offer rejected by peer connection")
		return nil, fmt.Errorf("apply offer: %w", err)
	}
	s.advance(StateNegotiating)
	return s, nil
}

func (s *Session) ID() string         { return s.id }
func (s *Session) RemoteAddr() string { return s.remoteAddr }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events is the owned peer connection's event stream. It goes quiet once the
// session is closed.
func (s *Session) Events() <-chan peer.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Events()
}

// Apply forwards a remote answer or candidate to the peer connection.
func (s *Session) Apply(env signal.Envelope) error {
	s.mu.Lock()
	state, conn := s.state, s.conn
	s.mu.Unlock()

	if state == StateClosed || conn == nil {
		return ErrSessionClosed
	}

	switch env.Kind {
	case signal.KindOffer:
		return ErrOfferRejected
	case signal.KindAnswer, signal.KindCandidate:
		return conn.Signal(env)
	default:
		return fmt.Errorf("%w: %q", peer.ErrUnsupportedSignal, env.Type)
	}
}

// HandleEvent applies a peer event to the session. For local signals it
// returns the envelope to relay to the remote side.
func (s *Session) HandleEvent(ev peer.Event) (signal.Envelope, bool) {
	switch ev.Kind {
	case peer.EventSignal:
		if s.State() == StateClosed {
			return signal.Envelope{}, false
		}
		return ev.Signal, true
	case peer.EventConnected:
		if s.advance(StateConnected) {
			s.log.Info("peer connected")
		}
	case peer.EventTrack:
		s.log.Info("remote track",
			"track_id", ev.Track.ID,
			"stream_id", ev.Track.StreamID,
			"track_kind", ev.Track.Kind,
			"mime_type", ev.Track.MimeType,
		)
	case peer.EventClosed:
		s.Close("peer connection closed")
	case peer.EventError:
		s.metrics.Inc(metrics.PeerErrors)
		s.log.Warn("peer connection error", "err", ev.Err)
		s.Close("peer connection error")
	}
	return signal.Envelope{}, false
}

// Close tears the session down once: it leaves the registry first, then
// destroys the peer connection. Later calls are no-ops.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateClosed
		conn, log := s.conn, s.log
		s.mu.Unlock()

		if s.reg != nil {
			s.reg.Unregister(s.id)
		}
		if log == nil {
			log = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		if conn != nil {
			if err := conn.Destroy(); err != nil {
				log.Debug("peer destroy failed", "err", err)
			}
			s.metrics.Inc(metrics.SessionsClosed)
		}
		log.Info("session closed", "reason", reason, "prev_state", prev.String())
	})
}

// advance moves the state forward. It never leaves Closed and never goes
// backwards.
func (s *Session) advance(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || to <= s.state {
		return false
	}
	s.state = to
	return true
}
