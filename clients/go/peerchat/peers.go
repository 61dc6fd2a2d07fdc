package peerchat

// PeerState is the negotiation state of one remote peer link.
type PeerState int

const (
	PeerNegotiating PeerState = iota
	PeerConnected
)

// PeerLink tracks WebRTC negotiation with one remote identity. The manager
// never interprets negotiation payloads; it only sequences them.
type PeerLink struct {
	RemoteID  string
	State     PeerState
	Initiator bool
}

// StartPeer creates an initiator-side peer link. The caller produces the
// offer and sends it with SendSignal; the link moves to PeerConnected when
// the answer arrives.
func (m *ConnManager) StartPeer(remoteID string) *PeerLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	if link, ok := m.peers[remoteID]; ok {
		return link
	}
	link := &PeerLink{RemoteID: remoteID, State: PeerNegotiating, Initiator: true}
	m.peers[remoteID] = link
	return link
}

// Peer returns the link for a remote identity, if one exists.
func (m *ConnManager) Peer(remoteID string) (*PeerLink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.peers[remoteID]
	return link, ok
}

// ClosePeer discards the link for a remote identity.
func (m *ConnManager) ClosePeer(remoteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, remoteID)
}

// handleSignal routes an incoming signal to the per-remote peer link.
// An offer with no existing link creates one as non-initiator; answers and
// candidates apply only to existing links; anything else is dropped.
func (m *ConnManager) handleSignal(sig Signal) {
	m.mu.Lock()
	link, exists := m.peers[sig.From]

	switch sig.Kind {
	case "offer":
		if !exists {
			link = &PeerLink{RemoteID: sig.From, State: PeerNegotiating, Initiator: false}
			m.peers[sig.From] = link
		}
	case "answer":
		if !exists {
			m.mu.Unlock()
			return // answer for a negotiation we never started
		}
		link.State = PeerConnected
	case "ice-candidate":
		if !exists {
			m.mu.Unlock()
			return // candidate with no offer; stale, drop
		}
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if m.handlers.OnSignal != nil {
		m.handlers.OnSignal(sig)
	}
}
