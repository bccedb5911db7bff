package session

import (
	"sync"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/peer"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/signal"
)

type fakeConn struct {
	opts      peer.Options
	events    chan peer.Event
	signalErr error
	onDestroy func()

	mu       sync.Mutex
	signals  []signal.Envelope
	destroys int
}

func (c *fakeConn) Signal(env signal.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, env)
	return c.signalErr
}

func (c *fakeConn) Events() <-chan peer.Event { return c.events }

func (c *fakeConn) Destroy() error {
	c.mu.Lock()
	c.destroys++
	hook := c.onDestroy
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
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
	err       error
	signalErr error

	mu    sync.Mutex
	conns []*fakeConn
}

func (f *fakeFactory) New(opts peer.Options) (peer.Conn, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{opts: opts, events: make(chan peer.Event, 16), signalErr: f.signalErr}
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
