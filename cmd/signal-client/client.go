package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/peer"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/signal"
)

const writeWait = time.Second

var (
	errConnectTimeout = errors.New("peer connection not established before timeout")
	errPeerClosed     = errors.New("peer connection closed")
)

type clientOptions struct {
	URL            string
	Origin         string
	ICEServers     []webrtc.ICEServer
	Trickle        bool
	ConnectTimeout time.Duration
	ExitOnConnect  bool
	Logger         *slog.Logger

	// Factory defaults to a pion-backed factory.
	Factory peer.Factory
}

// runClient drives one initiator peer connection over the relay. It returns
// nil when the relay closes the socket normally or, with ExitOnConnect, once
// the peer connection is established.
func runClient(ctx context.Context, opts clientOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	factory := opts.Factory
	if factory == nil {
		factory = &peer.PionFactory{Logger: logger}
	}

	var header http.Header
	if opts.Origin != "" {
		header = http.Header{"Origin": []string{opts.Origin}}
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", opts.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	defer ws.Close()
	logger.Info("connected to signal relay", "url", opts.URL)

	conn, err := factory.New(peer.Options{
		Role:       peer.RoleInitiator,
		ICEServers: opts.ICEServers,
		Trickle:    opts.Trickle,
	})
	if err != nil {
		return fmt.Errorf("create peer: %w", err)
	}
	defer func() {
		if err := conn.Destroy(); err != nil {
			logger.Debug("peer destroy failed", "err", err)
		}
	}()

	inbound := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-done:
				return
			}
		}
	}()

	var timeout <-chan time.Time
	if opts.ConnectTimeout > 0 {
		t := time.NewTimer(opts.ConnectTimeout)
		defer t.Stop()
		timeout = t.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return ctx.Err()

		case <-timeout:
			return errConnectTimeout

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("signal relay closed the connection", "err", err)
				return nil
			}
			return fmt.Errorf("read: %w", err)

		case msg := <-inbound:
			env, err := signal.Decode(msg)
			if err != nil {
				logger.Warn("relay sent a non-signal message", "message", string(msg))
				continue
			}
			switch env.Kind {
			case signal.KindAnswer, signal.KindCandidate:
				if err := conn.Signal(env); err != nil {
					logger.Warn("failed to apply remote signal", "kind", env.Kind, "err", err)
				}
			default:
				logger.Debug("ignoring relay message", "type", env.Type)
			}

		case ev := <-conn.Events():
			switch ev.Kind {
			case peer.EventSignal:
				if err := writeSignal(ws, ev.Signal); err != nil {
					return fmt.Errorf("write %s: %w", ev.Signal.Kind, err)
				}
			case peer.EventConnected:
				logger.Info("connected")
				if opts.ExitOnConnect {
					return nil
				}
				timeout = nil
			case peer.EventTrack:
				logger.Info("remote track", "track_id", ev.Track.ID, "track_kind", ev.Track.Kind)
			case peer.EventError:
				return fmt.Errorf("peer: %w", ev.Err)
			case peer.EventClosed:
				return errPeerClosed
			}
		}
	}
}

func writeSignal(ws *websocket.Conn, env signal.Envelope) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, signal.Encode(env))
}
