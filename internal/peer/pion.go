package peer

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/signal"
)

const (
	defaultICEGatheringTimeout = 2 * time.Second
	initiatorDataChannelLabel  = "data"
)

// PionFactory creates peer connections backed by pion/webrtc.
type PionFactory struct {
	// API should come from NewAPI so SettingEngine restrictions apply. A nil
	// API falls back to pion defaults.
	API *webrtc.API

	// ICEGatheringTimeout bounds how long a non-trickle connection waits for
	// candidate gathering before sending its description anyway.
	ICEGatheringTimeout time.Duration

	Logger *slog.Logger
}

func (f *PionFactory) New(opts Options) (Conn, error) {
	api := f.API
	if api == nil {
		api = webrtc.NewAPI()
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	gatherTimeout := f.ICEGatheringTimeout
	if gatherTimeout <= 0 {
		gatherTimeout = defaultICEGatheringTimeout
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: opts.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	c := &pionConn{
		pc:            pc,
		opts:          opts,
		log:           logger.With("role", opts.Role.String()),
		gatherTimeout: gatherTimeout,
		queue:         newEventQueue(),
		events:        make(chan Event),
		done:          make(chan struct{}),
	}
	c.installHandlers()
	go c.forward()

	if opts.Role == RoleInitiator {
		if err := c.startOffer(); err != nil {
			_ = c.Destroy()
			return nil, err
		}
	}
	return c, nil
}

type pionConn struct {
	pc            *webrtc.PeerConnection
	opts          Options
	log           *slog.Logger
	gatherTimeout time.Duration

	queue  *eventQueue
	events chan Event
	done   chan struct{}

	// localSent gates trickled candidates until the description they belong
	// to has been queued; earlier candidates wait in pending.
	mu        sync.Mutex
	localSent bool
	pending   []signal.Candidate

	destroyOnce sync.Once
	destroyErr  error
}

func (c *pionConn) installHandlers() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || !c.opts.Trickle {
			return
		}
		wire := signal.CandidateFromPion(cand.ToJSON())

		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.localSent {
			c.pending = append(c.pending, wire)
			return
		}
		c.queue.Push(Event{Kind: EventSignal, Signal: signal.CandidateEnvelope(wire)})
	})

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.log.Debug("peer connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			c.queue.Push(Event{Kind: EventConnected})
		case webrtc.PeerConnectionStateFailed:
			c.queue.Push(Event{Kind: EventError, Err: ErrConnectionFailed})
		case webrtc.PeerConnectionStateClosed:
			c.queue.Push(Event{Kind: EventClosed})
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.queue.Push(Event{Kind: EventTrack, Track: TrackInfo{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     track.Kind().String(),
			MimeType: track.Codec().MimeType,
		}})
	})

	// Data channel payloads are not relayed anywhere; they are only logged.
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		label := dc.Label()
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			c.log.Debug("ignoring datachannel message", "label", label, "bytes", len(msg.Data), "is_string", msg.IsString)
		})
	})
}

func (c *pionConn) forward() {
	for {
		ev, ok := c.queue.Pop()
		if !ok {
			return
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *pionConn) Events() <-chan Event { return c.events }

func (c *pionConn) Signal(env signal.Envelope) error {
	select {
	case <-c.done:
		return ErrDestroyed
	default:
	}

	switch env.Kind {
	case signal.KindOffer:
		if c.opts.Role != RoleResponder {
			return fmt.Errorf("%w: offer sent to initiator", ErrUnsupportedSignal)
		}
		desc, err := env.SessionDescription()
		if err != nil {
			return err
		}
		if err := c.pc.SetRemoteDescription(desc); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		return c.setLocal(answer)
	case signal.KindAnswer:
		desc, err := env.SessionDescription()
		if err != nil {
			return err
		}
		if err := c.pc.SetRemoteDescription(desc); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		return nil
	case signal.KindCandidate:
		// An empty candidate marks end-of-candidates; pion needs nothing for it.
		if env.Candidate == nil || env.Candidate.Candidate == "" {
			return nil
		}
		if err := c.pc.AddICECandidate(env.Candidate.ToPion()); err != nil {
			return fmt.Errorf("add ice candidate: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedSignal, env.Type)
	}
}

func (c *pionConn) startOffer() error {
	if _, err := c.pc.CreateDataChannel(initiatorDataChannelLabel, nil); err != nil {
		return fmt.Errorf("create datachannel: %w", err)
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	return c.setLocal(offer)
}

func (c *pionConn) setLocal(desc webrtc.SessionDescription) error {
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	if !c.opts.Trickle {
		timer := time.NewTimer(c.gatherTimeout)
		defer timer.Stop()
		select {
		case <-gatherComplete:
		case <-timer.C:
			c.log.Warn("ice gathering timed out; sending partial description", "timeout", c.gatherTimeout)
		case <-c.done:
			return ErrGatheringCancelled
		}
	}

	local := c.pc.LocalDescription()
	if local == nil {
		return ErrLocalDescription
	}
	env, err := signal.FromSessionDescription(*local)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Push(Event{Kind: EventSignal, Signal: env})
	c.localSent = true
	for _, cand := range c.pending {
		c.queue.Push(Event{Kind: EventSignal, Signal: signal.CandidateEnvelope(cand)})
	}
	c.pending = nil
	return nil
}

func (c *pionConn) Destroy() error {
	c.destroyOnce.Do(func() {
		close(c.done)
		c.queue.Close()
		c.destroyErr = c.pc.Close()
	})
	return c.destroyErr
}
