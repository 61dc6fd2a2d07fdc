// Package hub owns live websocket state: the connection registry, presence
// broadcast, store-and-forward message delivery and the WebRTC signaling
// relay. Durable persistence is delegated to the store package.
package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/peerchat-io/peerchat/internal/metrics"
)

// Transport is the write side of one live client connection. Implemented by
// the websocket session; tests substitute fakes.
type Transport interface {
	Send(v any) error
	Close() error
}

// Connection is the live binding between an identity and one open transport.
type Connection struct {
	Identity      string
	Entry         RosterEntry
	EstablishedAt time.Time
	transport     Transport
}

// Hub is the connection registry. At most one live transport exists per
// identity; admitting a second transport for the same identity replaces the
// first. All mutation and roster computation happen under one mutex so a
// broadcast never observes a torn roster.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]*Connection
	logger zerolog.Logger
}

// New creates an empty hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]*Connection),
		logger: logger,
	}
}

// Admit registers a transport for an identity and broadcasts the new roster.
// The caller must have authenticated the identity already. If the identity
// is already connected the old entry is replaced and its transport closed;
// last writer wins.
func (h *Hub) Admit(entry RosterEntry, t Transport) {
	h.mu.Lock()
	old := h.conns[entry.UserID]
	h.conns[entry.UserID] = &Connection{
		Identity:      entry.UserID,
		Entry:         entry,
		EstablishedAt: time.Now(),
		transport:     t,
	}
	metrics.ConnectionsActive.Set(float64(len(h.conns)))
	h.mu.Unlock()

	if old != nil && old.transport != t {
		// Superseded transport would otherwise dangle until its peer notices.
		_ = old.transport.Close()
		h.logger.Debug().Str("user_id", entry.UserID).Msg("replaced existing connection")
	}

	h.BroadcastRoster()
}

// Remove deletes the identity's registry entry, but only if it still refers
// to the given transport. A close callback racing with a replacement admit
// must not evict the newer connection.
func (h *Hub) Remove(identity string, t Transport) bool {
	h.mu.Lock()
	cur, ok := h.conns[identity]
	if !ok || cur.transport != t {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, identity)
	metrics.ConnectionsActive.Set(float64(len(h.conns)))
	h.mu.Unlock()

	h.BroadcastRoster()
	return true
}

// Lookup returns the live transport for an identity, if any.
func (h *Hub) Lookup(identity string) (Transport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur, ok := h.conns[identity]
	if !ok {
		return nil, false
	}
	return cur.transport, true
}

// Connections returns a snapshot of all current connections.
func (h *Hub) Connections() []Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, *c)
	}
	return out
}

// BroadcastRoster pushes the full roster to every connected transport,
// including the connection that just joined or triggered the change. Each
// frame is the authoritative replacement of the previous roster. Writes to
// slow or half-open transports fail silently; those connections are pruned
// by their own close events.
func (h *Hub) BroadcastRoster() {
	h.mu.Lock()
	roster := make([]RosterEntry, 0, len(h.conns))
	targets := make([]Transport, 0, len(h.conns))
	for _, c := range h.conns {
		roster = append(roster, c.Entry)
		targets = append(targets, c.transport)
	}
	h.mu.Unlock()

	frame := RosterFrame{Type: FrameClients, Clients: roster}
	for _, t := range targets {
		if err := t.Send(frame); err != nil {
			h.logger.Debug().Err(err).Msg("roster push failed")
		}
	}
	metrics.RosterBroadcasts.Inc()
}

// Relay forwards a signal envelope to its target identity, if connected.
// The payload is opaque; there is no retry and no queueing.
func (h *Hub) Relay(env SignalEnvelope) bool {
	t, ok := h.Lookup(env.To)
	if !ok {
		metrics.SignalsRelayed.WithLabelValues("dropped").Inc()
		return false
	}

	err := t.Send(SignalFrame{
		Type:       FrameSignal,
		SignalType: env.Kind,
		From:       env.From,
		Payload:    env.Payload,
	})
	if err != nil {
		metrics.SignalsRelayed.WithLabelValues("dropped").Inc()
		return false
	}
	metrics.SignalsRelayed.WithLabelValues("delivered").Inc()
	return true
}
