package signaling

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/peer"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/session"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/signal"
)

const testOfferSDP = "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

type fakeConn struct {
	opts   peer.Options
	events chan peer.Event

	mu       sync.Mutex
	signals  []signal.Envelope
	destroys int
}

func (c *fakeConn) Signal(env signal.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, env)
	return nil
}

func (c *fakeConn) Events() <-chan peer.Event { return c.events }

func (c *fakeConn) Destroy() error {
	c.mu.Lock()
	c.destroys++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Signals() []signal.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]signal.Envelope(nil), c.signals...)
}

func (c *fakeConn) Destroys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroys
}

type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (f *fakeFactory) New(opts peer.Options) (peer.Conn, error) {
	c := &fakeConn{opts: opts, events: make(chan peer.Event, 16)}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeFactory) Conns() []*fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeConn(nil), f.conns...)
}

type testServer struct {
	srv     *Server
	ts      *httptest.Server
	factory *fakeFactory
	reg     *session.Registry
	metrics *metrics.Metrics
}

func startTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()

	tsrv := &testServer{factory: &fakeFactory{}, metrics: metrics.New()}
	if cfg.PeerFactory == nil {
		cfg.PeerFactory = tsrv.factory
	}
	if cfg.Metrics == nil {
		cfg.Metrics = tsrv.metrics
	}
	tsrv.metrics = cfg.Metrics

	tsrv.srv = NewServer(cfg)
	tsrv.reg = tsrv.srv.Registry()
	tsrv.ts = httptest.NewServer(tsrv.srv.Handler())
	t.Cleanup(func() {
		tsrv.srv.Close()
		tsrv.ts.Close()
	})
	return tsrv
}

func (s *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + path
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(s.wsURL("/webrtc/signal"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sendJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func sendOffer(t *testing.T, c *websocket.Conn) {
	t.Helper()
	sendJSON(t, c, map[string]any{"type": "offer", "sdp": testOfferSDP})
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return out
}

// readCloseCode reads until the server closes the socket and returns the
// close code it sent.
func readCloseCode(t *testing.T, c *websocket.Conn) int {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := c.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("expected close error, got %v", err)
		}
		return ce.Code
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *testServer) waitConns(t *testing.T, n int) []*fakeConn {
	t.Helper()
	waitFor(t, "peer connections", func() bool { return len(s.factory.Conns()) >= n })
	return s.factory.Conns()
}
