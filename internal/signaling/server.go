package signaling

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/peer"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/session"
)

const (
	defaultMaxMessageBytes      = 64 * 1024
	defaultMaxMessagesPerSecond = 50
	defaultIdleTimeout          = 60 * time.Second
	defaultPingInterval         = 20 * time.Second

	wsWriteWait = time.Second
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	// Registry tracks live peer sessions. Nil gets a private unlimited registry.
	Registry *session.Registry

	// PeerFactory builds the server-side peer connection for each offer. In
	// production this is a *peer.PionFactory built on peer.NewAPI.
	PeerFactory peer.Factory

	ICEServers []webrtc.ICEServer
	Trickle    bool

	// AllowedOrigins is the browser Origin allow-list. Empty means same-host
	// only; requests without an Origin header are always accepted.
	AllowedOrigins []string

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	IdleTimeout          time.Duration
	PingInterval         time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Server upgrades signaling requests to WebSocket and dispatches them.
//
// Endpoints:
//   - GET /webrtc/signal : WebSocket signaling
//   - GET /              : same handler, for clients that dial the bare host
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.Registry == nil {
		cfg.Registry = session.NewRegistry(0, cfg.Metrics)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = defaultMaxMessagesPerSecond
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = cfg.IdleTimeout / 3
	}

	s := &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		conns: make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if origin.CheckRequest(r, cfg.AllowedOrigins) {
				return true
			}
			cfg.Metrics.Inc(metrics.ConnectionsRejected)
			s.log.Warn("rejected signaling origin", "origin", r.Header.Get("Origin"), "remote_addr", r.RemoteAddr)
			return false
		},
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /webrtc/signal", s.handleWebSocket)
	mux.HandleFunc("GET /{$}", s.handleWebSocket)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Registry is the session registry shared by every dispatcher.
func (s *Server) Registry() *session.Registry { return s.cfg.Registry }

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.PeerFactory == nil {
		http.Error(w, "peer factory not configured", http.StatusInternalServerError)
		return
	}
	if s.isClosed() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		return
	}
	if !s.track(ws) {
		closeWith(ws, websocket.CloseGoingAway, "server shutting down")
		_ = ws.Close()
		return
	}
	defer s.untrack(ws)

	s.cfg.Metrics.Inc(metrics.ConnectionsAccepted)

	d := &dispatcher{
		srv:     s,
		ws:      ws,
		remote:  r.RemoteAddr,
		log:     s.log.With("remote_addr", r.RemoteAddr),
		limiter: ratelimit.NewPerSecond(ratelimit.RealClock{}, s.cfg.MaxMessagesPerSecond),
	}
	d.run()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(ws *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[ws] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(ws *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, ws)
	s.mu.Unlock()
	s.wg.Done()
}

// Close sends a going-away close frame on every open signaling socket, waits
// for their dispatchers to finish and tears down any session still
// registered. New connections are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	open := make([]*websocket.Conn, 0, len(s.conns))
	for ws := range s.conns {
		open = append(open, ws)
	}
	s.mu.Unlock()

	for _, ws := range open {
		closeWith(ws, websocket.CloseGoingAway, "server shutting down")
		_ = ws.Close()
	}
	s.wg.Wait()
	s.cfg.Registry.CloseAll("server shutdown")
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
