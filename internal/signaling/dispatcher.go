package signaling

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/peer"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/session"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/signal"
)

var errRateLimited = errors.New("signaling rate limit exceeded")

// inbound is one read from the socket: a message or the error that ended the
// read loop.
type inbound struct {
	data []byte
	err  error
}

// dispatcher serves one signaling socket. All session access happens on the
// goroutine running run; a separate reader goroutine only moves bytes.
type dispatcher struct {
	srv     *Server
	ws      *websocket.Conn
	remote  string
	log     *slog.Logger
	limiter *ratelimit.TokenBucket

	sess   *session.Session
	events <-chan peer.Event
}

func (d *dispatcher) run() {
	cfg := d.srv.cfg

	d.ws.SetReadLimit(cfg.MaxMessageBytes)
	_ = d.ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	d.ws.SetPongHandler(func(string) error {
		return d.ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	})

	done := make(chan struct{})
	in := make(chan inbound)
	go d.readLoop(in, done)

	ping := time.NewTicker(cfg.PingInterval)

	defer func() {
		ping.Stop()
		close(done)
		d.closeSession("signaling channel closed")
		_ = d.ws.Close()
		d.log.Debug("signaling connection finished")
	}()

	d.log.Debug("signaling connection opened")

	for {
		select {
		case msg := <-in:
			if msg.err != nil {
				d.handleReadError(msg.err)
				return
			}
			d.handleMessage(msg.data)
		case ev := <-d.events:
			d.handleEvent(ev)
		case <-ping.C:
			if err := d.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				d.log.Debug("ping failed", "err", err)
				return
			}
		}
	}
}

func (d *dispatcher) readLoop(in chan<- inbound, done <-chan struct{}) {
	idle := d.srv.cfg.IdleTimeout
	for {
		_, data, err := d.ws.ReadMessage()
		if err == nil {
			_ = d.ws.SetReadDeadline(time.Now().Add(idle))
			// Checked after the read so the bytes are drained and the client
			// reliably sees the close code.
			if !d.limiter.Allow(1) {
				err = errRateLimited
			}
		}
		select {
		case in <- inbound{data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (d *dispatcher) handleReadError(err error) {
	m := d.srv.cfg.Metrics
	switch {
	case errors.Is(err, errRateLimited):
		m.Inc(metrics.SignalingRateLimited)
		d.log.Warn("closing signaling connection", "reason", "rate limited")
		closeWith(d.ws, websocket.ClosePolicyViolation, "rate limit exceeded")
	case errors.Is(err, websocket.ErrReadLimit):
		// gorilla has already sent 1009.
		m.Inc(metrics.SignalingOversized)
		d.log.Warn("closing signaling connection", "reason", "message too large", "limit_bytes", d.srv.cfg.MaxMessageBytes)
	case isTimeout(err):
		d.log.Info("closing signaling connection", "reason", "idle timeout")
		closeWith(d.ws, websocket.CloseNormalClosure, "idle timeout")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		d.log.Debug("signaling connection closed by peer")
	default:
		d.log.Debug("signaling read failed", "err", err)
	}
}

func (d *dispatcher) handleMessage(data []byte) {
	m := d.srv.cfg.Metrics

	env, err := signal.Decode(data)
	if errors.Is(err, signal.ErrInvalidField) {
		m.Inc(metrics.EnvelopesDropped)
		d.log.Warn("dropping signal with invalid field", "kind", env.Kind, "err", err)
		return
	}
	if err != nil {
		m.Inc(metrics.EnvelopesMalformed)
		d.log.Warn("malformed signaling message", "err", err, "bytes", len(data))
		d.write(signal.MalformedReply(data))
		return
	}

	switch env.Kind {
	case signal.KindOffer:
		d.handleOffer(env)
	case signal.KindAnswer, signal.KindCandidate:
		if d.sess == nil {
			m.Inc(metrics.EnvelopesDropped)
			d.log.Warn("dropping signal without session", "kind", env.Kind)
			return
		}
		if err := d.sess.Apply(env); err != nil {
			m.Inc(metrics.EnvelopesDropped)
			d.log.Warn("failed to apply remote signal", "kind", env.Kind, "session_id", d.sess.ID(), "err", err)
			return
		}
		m.Inc(metrics.SignalsRelayedIn)
	default:
		m.Inc(metrics.EnvelopesUnknown)
		d.log.Info("ignoring signal of unknown type", "type", env.Type)
	}
}

func (d *dispatcher) handleOffer(env signal.Envelope) {
	m := d.srv.cfg.Metrics

	if d.sess != nil && d.sess.State() == session.StateClosed {
		d.sess, d.events = nil, nil
	}
	if d.sess != nil {
		m.Inc(metrics.OffersRejected)
		d.log.Warn("rejecting offer", "session_id", d.sess.ID(), "err", session.ErrOfferRejected)
		return
	}
	if env.SDP == "" {
		m.Inc(metrics.EnvelopesDropped)
		d.log.Warn("dropping offer without sdp")
		return
	}

	cfg := d.srv.cfg
	sess, err := session.Open(cfg.Registry, cfg.PeerFactory, session.Options{
		RemoteAddr: d.remote,
		Peer: peer.Options{
			ICEServers: cfg.ICEServers,
			Trickle:    cfg.Trickle,
		},
	}, env, d.log)
	if err != nil {
		d.log.Warn("failed to open session", "err", err)
		return
	}
	m.Inc(metrics.SignalsRelayedIn)
	d.sess = sess
	d.events = sess.Events()
}

func (d *dispatcher) handleEvent(ev peer.Event) {
	if d.sess == nil {
		return
	}
	if env, ok := d.sess.HandleEvent(ev); ok {
		d.log.Debug("relaying local signal", "kind", env.Kind, "session_id", d.sess.ID())
		if d.write(signal.Encode(env)) {
			d.srv.cfg.Metrics.Inc(metrics.SignalsRelayedOut)
		}
	}
	if d.sess.State() == session.StateClosed {
		// The channel stays open; a fresh offer starts a new session.
		d.sess = nil
		d.events = nil
	}
}

func (d *dispatcher) closeSession(reason string) {
	if d.sess == nil {
		return
	}
	d.sess.Close(reason)
	d.sess = nil
	d.events = nil
}

// write sends one text frame. Failures are not surfaced: a dead socket is
// noticed by the reader and ends the loop.
func (d *dispatcher) write(payload []byte) bool {
	_ = d.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := d.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		d.log.Debug("dropping outbound message on closed channel", "err", err)
		return false
	}
	return true
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
