package hub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/peerchat-io/peerchat/internal/models"
	"github.com/peerchat-io/peerchat/internal/store"
)

type wsFixture struct {
	db    *store.SQLiteStore
	hub   *Hub
	srv   *httptest.Server
	wsURL string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	db := newTestStore(t)
	h := New(zerolog.Nop())
	d := NewDelivery(h, db, store.NewSQLQueue(db), zerolog.Nop())
	ws := NewServer(h, d, db, nil, zerolog.Nop())

	srv := httptest.NewServer(ws)
	t.Cleanup(srv.Close)

	return &wsFixture{
		db:    db,
		hub:   h,
		srv:   srv,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (f *wsFixture) createUser(t *testing.T, email, name string) *models.User {
	t.Helper()
	user, err := f.db.CreateUser(context.Background(), email, name, "x")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrameOfType reads frames until one of the wanted type arrives,
// skipping interleaved roster broadcasts and the like.
func readFrameOfType(t *testing.T, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for %q frame: %v", frameType, err)
		}
		if frame["type"] == frameType {
			return frame
		}
	}
	t.Fatalf("no %q frame within deadline", frameType)
	return nil
}

func authFrame(userID string) map[string]any {
	return map[string]any{"type": "auth", "userId": userID}
}

func rosterIDs(frame map[string]any) map[string]bool {
	ids := map[string]bool{}
	clients, _ := frame["clients"].([]any)
	for _, c := range clients {
		if m, ok := c.(map[string]any); ok {
			ids[m["userId"].(string)] = true
		}
	}
	return ids
}

func TestHandshakeUnknownIdentityKeepsConnectionOpen(t *testing.T) {
	f := newWSFixture(t)
	user := f.createUser(t, "alice@example.com", "Alice")

	conn := f.dial(t)

	if err := conn.WriteJSON(authFrame("00000000-0000-0000-0000-000000000099")); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrameOfType(t, conn, FrameError)
	if frame["message"] != "Authentication failed" {
		t.Fatalf("unexpected error message: %v", frame["message"])
	}

	// The transport must remain open for a retry.
	if err := conn.WriteJSON(authFrame(user.ID.String())); err != nil {
		t.Fatalf("retry write: %v", err)
	}
	readFrameOfType(t, conn, FrameAuthSuccess)
}

func TestPresenceBroadcastOnConnectAndDisconnect(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")
	bob := f.createUser(t, "bob@example.com", "Bob")

	connA := f.dial(t)
	connA.WriteJSON(authFrame(alice.ID.String()))
	readFrameOfType(t, connA, FrameAuthSuccess)

	connB := f.dial(t)
	connB.WriteJSON(authFrame(bob.ID.String()))

	// B's admit broadcasts the roster before the auth-success reply, so the
	// clients frame arrives first on B's connection.
	frameB := readFrameOfType(t, connB, FrameClients)
	idsB := rosterIDs(frameB)
	if !idsB[alice.ID.String()] || !idsB[bob.ID.String()] {
		t.Fatalf("expected both identities in B's roster, got %v", idsB)
	}
	readFrameOfType(t, connB, FrameAuthSuccess)

	// A receives the updated roster via the same broadcast.
	var ids map[string]bool
	for {
		frame := readFrameOfType(t, connA, FrameClients)
		ids = rosterIDs(frame)
		if len(ids) == 2 {
			break
		}
	}
	if !ids[alice.ID.String()] || !ids[bob.ID.String()] {
		t.Fatalf("expected both identities in roster, got %v", ids)
	}

	connB.Close()

	// A eventually receives a roster excluding B.
	for {
		frame := readFrameOfType(t, connA, FrameClients)
		ids = rosterIDs(frame)
		if !ids[bob.ID.String()] {
			break
		}
	}
	if !ids[alice.ID.String()] {
		t.Fatalf("roster after disconnect should still contain alice, got %v", ids)
	}
}

func TestQueuedMessagesDrainOnConnect(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")
	bob := f.createUser(t, "bob@example.com", "Bob")

	// Send while bob is offline.
	d := NewDelivery(f.hub, f.db, store.NewSQLQueue(f.db), zerolog.Nop())
	if _, err := d.Send(context.Background(), &models.Message{
		SenderID: alice.ID.String(), ReceiverID: bob.ID.String(), Content: "hi bob",
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	connB := f.dial(t)
	connB.WriteJSON(authFrame(bob.ID.String()))
	readFrameOfType(t, connB, FrameAuthSuccess)

	frame := readFrameOfType(t, connB, FrameNewMessage)
	msg, _ := frame["message"].(map[string]any)
	if msg == nil || msg["content"] != "hi bob" {
		t.Fatalf("expected drained message, got %v", frame)
	}
}

func TestSignalRelayBetweenConnectedPeers(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")
	bob := f.createUser(t, "bob@example.com", "Bob")

	connA := f.dial(t)
	connA.WriteJSON(authFrame(alice.ID.String()))
	readFrameOfType(t, connA, FrameAuthSuccess)

	connB := f.dial(t)
	connB.WriteJSON(authFrame(bob.ID.String()))
	readFrameOfType(t, connB, FrameAuthSuccess)

	connA.WriteJSON(map[string]any{
		"type":       "signal",
		"signalType": "offer",
		"to":         bob.ID.String(),
		"payload":    map[string]any{"sdp": "v=0 test offer"},
	})

	frame := readFrameOfType(t, connB, FrameSignal)
	if frame["signalType"] != "offer" || frame["from"] != alice.ID.String() {
		t.Fatalf("unexpected signal frame: %v", frame)
	}
	payload, _ := frame["payload"].(map[string]any)
	if payload == nil || payload["sdp"] != "v=0 test offer" {
		t.Fatalf("payload not forwarded verbatim: %v", frame["payload"])
	}
}

func TestSignalBeforeAuthRejected(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t)
	conn.WriteJSON(map[string]any{"type": "signal", "signalType": "offer", "to": "x"})

	frame := readFrameOfType(t, conn, FrameError)
	if frame["message"] != "Not authenticated" {
		t.Fatalf("unexpected error: %v", frame["message"])
	}
}

func TestMalformedFrameDoesNotKillConnection(t *testing.T) {
	f := newWSFixture(t)
	user := f.createUser(t, "alice@example.com", "Alice")

	conn := f.dial(t)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	frame := readFrameOfType(t, conn, FrameError)
	if frame["message"] != "Invalid message format" {
		t.Fatalf("unexpected error: %v", frame["message"])
	}

	// Still usable afterwards.
	conn.WriteJSON(authFrame(user.ID.String()))
	readFrameOfType(t, conn, FrameAuthSuccess)
}
