package metrics

import "sync"

// Event counter names.
const (
	ConnectionsAccepted = "signaling_connections_accepted"
	ConnectionsRejected = "signaling_connections_rejected_origin"

	SessionsOpened       = "sessions_opened"
	SessionsClosed       = "sessions_closed"
	SessionsQuotaReached = "sessions_quota_reached"
	OffersRejected       = "offers_rejected"

	EnvelopesMalformed = "envelopes_malformed"
	EnvelopesUnknown   = "envelopes_unknown"
	EnvelopesDropped   = "envelopes_dropped"

	SignalsRelayedIn  = "signals_relayed_in"
	SignalsRelayedOut = "signals_relayed_out"

	PeerErrors = "peer_errors"

	SignalingRateLimited = "signaling_rate_limited"
	SignalingOversized   = "signaling_oversized"
)

// Metrics is a concurrency-safe counter registry. A nil *Metrics is a valid
// no-op sink.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
