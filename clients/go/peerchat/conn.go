package peerchat

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the connection manager's lifecycle state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Authenticating
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// RosterEntry is one connected identity in a presence roster.
type RosterEntry struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Signal is a WebRTC signal received from a remote peer. Payload is opaque
// negotiation data for the WebRTC engine.
type Signal struct {
	Kind    string
	From    string
	Payload json.RawMessage
}

// Handlers are the connection manager's event callbacks. All are optional
// and invoked from the read loop goroutine.
type Handlers struct {
	OnState   func(ConnState)
	OnRoster  func([]RosterEntry)
	OnMessage func(Message)
	OnSignal  func(Signal)
	OnError   func(string)
}

// serverFrame is the union of everything the server sends.
type serverFrame struct {
	Type       string          `json:"type"`
	Clients    []RosterEntry   `json:"clients,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"` // Message object or error string
	SignalType string          `json:"signalType,omitempty"`
	From       string          `json:"from,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ConnManager owns the websocket transport lifecycle: connect, authenticate,
// auto-reconnect with a fixed backoff, and dispatch of incoming frames. It
// also tracks the presence roster, per-conversation message history and a
// peer-link state machine per remote identity.
type ConnManager struct {
	wsURL      string
	userID     string
	handlers   Handlers
	retryDelay time.Duration
	dialer     *websocket.Dialer

	mu            sync.Mutex
	wmu           sync.Mutex // serializes websocket writes
	state         ConnState
	conn          *websocket.Conn
	done          chan struct{} // closed by Teardown; cancels the retry wait
	started       bool
	roster        []RosterEntry
	conversations map[string][]Message
	peers         map[string]*PeerLink
}

// NewConnManager creates a connection manager for the given websocket URL
// (e.g. "ws://localhost:8080/ws") and identity.
func NewConnManager(wsURL, userID string, handlers Handlers) *ConnManager {
	return &ConnManager{
		wsURL:         wsURL,
		userID:        userID,
		handlers:      handlers,
		retryDelay:    3 * time.Second,
		dialer:        websocket.DefaultDialer,
		done:          make(chan struct{}),
		conversations: make(map[string][]Message),
		peers:         make(map[string]*PeerLink),
	}
}

// Start begins connecting and keeps the connection alive until Teardown.
// Retries are unbounded; failure is assumed transient.
func (m *ConnManager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("connection manager already started")
	}
	m.started = true
	m.mu.Unlock()

	go m.run()
	return nil
}

// Teardown closes the transport and cancels any pending reconnect. No frames
// are processed after it returns.
func (m *ConnManager) Teardown() {
	m.mu.Lock()
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()
	m.setState(Disconnected)
}

// State returns the current lifecycle state.
func (m *ConnManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Roster returns the latest presence roster.
func (m *ConnManager) Roster() []RosterEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RosterEntry, len(m.roster))
	copy(out, m.roster)
	return out
}

// Conversation returns the locally accumulated messages exchanged with the
// given remote identity during this session.
func (m *ConnManager) Conversation(remoteID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.conversations[remoteID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

func (m *ConnManager) run() {
	for {
		select {
		case <-m.done:
			return
		default:
		}

		m.connectOnce()

		// Transport is down. Wait out the backoff unless torn down.
		select {
		case <-m.done:
			return
		case <-time.After(m.retryDelay):
		}
	}
}

// connectOnce runs one full connection lifetime: dial, authenticate, then
// read frames until the transport dies.
func (m *ConnManager) connectOnce() {
	m.setState(Connecting)

	conn, _, err := m.dialer.Dial(m.wsURL, nil)
	if err != nil {
		m.setState(Disconnected)
		return
	}

	m.mu.Lock()
	select {
	case <-m.done:
		// Torn down while dialing
		m.mu.Unlock()
		conn.Close()
		return
	default:
	}
	m.conn = conn
	m.mu.Unlock()

	auth := map[string]string{"type": "auth", "userId": m.userID}
	if err := m.writeJSON(auth); err != nil {
		m.dropConn()
		return
	}
	m.setState(Authenticating)

	for {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			m.dropConn()
			return
		}

		select {
		case <-m.done:
			return
		default:
		}

		m.dispatch(frame)
	}
}

func (m *ConnManager) dispatch(frame serverFrame) {
	switch frame.Type {
	case "auth-success":
		m.setState(Connected)

	case "clients":
		m.mu.Lock()
		m.roster = frame.Clients // wholesale replacement, never a delta
		m.mu.Unlock()
		if m.handlers.OnRoster != nil {
			m.handlers.OnRoster(frame.Clients)
		}

	case "new-message":
		var msg Message
		if err := json.Unmarshal(frame.Message, &msg); err != nil {
			return
		}
		other := msg.SenderID
		if other == m.userID {
			other = msg.ReceiverID
		}
		m.mu.Lock()
		m.conversations[other] = append(m.conversations[other], msg)
		m.mu.Unlock()
		if m.handlers.OnMessage != nil {
			m.handlers.OnMessage(msg)
		}

	case "signal":
		m.handleSignal(Signal{
			Kind:    frame.SignalType,
			From:    frame.From,
			Payload: frame.Payload,
		})

	case "error":
		var msg string
		json.Unmarshal(frame.Message, &msg)
		if m.handlers.OnError != nil {
			m.handlers.OnError(msg)
		}
	}
}

// SendSignal relays a WebRTC signal to a remote identity through the server.
func (m *ConnManager) SendSignal(kind, to string, payload json.RawMessage) error {
	return m.writeJSON(map[string]any{
		"type":       "signal",
		"signalType": kind,
		"to":         to,
		"payload":    payload,
	})
}

func (m *ConnManager) writeJSON(v any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return conn.WriteJSON(v)
}

func (m *ConnManager) dropConn() {
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()
	m.setState(Disconnected)
}

func (m *ConnManager) setState(s ConnState) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if changed && m.handlers.OnState != nil {
		m.handlers.OnState(s)
	}
}
