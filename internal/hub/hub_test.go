package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeTransport records everything sent to it.
type fakeTransport struct {
	mu     sync.Mutex
	frames []any
	closed bool
}

func (t *fakeTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, v)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) sent() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]any, len(t.frames))
	copy(out, t.frames)
	return out
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) lastRoster(tb testing.TB) RosterFrame {
	tb.Helper()
	for i := len(t.frames) - 1; i >= 0; i-- {
		if f, ok := t.frames[i].(RosterFrame); ok {
			return f
		}
	}
	tb.Fatal("no roster frame received")
	return RosterFrame{}
}

func entry(id string) RosterEntry {
	return RosterEntry{UserID: id, Email: id + "@example.com", Name: id}
}

func TestAdmitAndLookup(t *testing.T) {
	h := New(zerolog.Nop())
	tr := &fakeTransport{}

	h.Admit(entry("alice"), tr)

	got, ok := h.Lookup("alice")
	if !ok {
		t.Fatal("expected alice to be connected")
	}
	if got != tr {
		t.Fatal("lookup returned wrong transport")
	}
	if _, ok := h.Lookup("bob"); ok {
		t.Fatal("bob should not be connected")
	}
}

func TestAdmitReplacesAndClosesOldTransport(t *testing.T) {
	h := New(zerolog.Nop())
	t1 := &fakeTransport{}
	t2 := &fakeTransport{}

	h.Admit(entry("alice"), t1)
	h.Admit(entry("alice"), t2)

	if len(h.Connections()) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(h.Connections()))
	}
	got, _ := h.Lookup("alice")
	if got != t2 {
		t.Fatal("expected lookup to return the replacement transport")
	}
	if !t1.isClosed() {
		t.Fatal("superseded transport was not closed")
	}
	if t2.isClosed() {
		t.Fatal("replacement transport must stay open")
	}
}

func TestGuardedRemoveIgnoresStaleTransport(t *testing.T) {
	h := New(zerolog.Nop())
	t1 := &fakeTransport{}
	t2 := &fakeTransport{}

	h.Admit(entry("alice"), t1)
	h.Admit(entry("alice"), t2)

	// Late close callback from the superseded connection.
	if h.Remove("alice", t1) {
		t.Fatal("stale remove must not report success")
	}
	if _, ok := h.Lookup("alice"); !ok {
		t.Fatal("alice must still be connected via the replacement")
	}

	if !h.Remove("alice", t2) {
		t.Fatal("current-transport remove must succeed")
	}
	if _, ok := h.Lookup("alice"); ok {
		t.Fatal("alice should be gone after removal")
	}
}

func TestAtMostOneTransportPerIdentity(t *testing.T) {
	h := New(zerolog.Nop())
	for i := 0; i < 10; i++ {
		h.Admit(entry("alice"), &fakeTransport{})
	}
	if n := len(h.Connections()); n != 1 {
		t.Fatalf("expected exactly 1 connection for alice, got %d", n)
	}
}

func TestRosterBroadcastOnMembershipChange(t *testing.T) {
	h := New(zerolog.Nop())
	ta := &fakeTransport{}
	tb := &fakeTransport{}

	h.Admit(entry("alice"), ta)
	h.Admit(entry("bob"), tb)

	// Both see {alice, bob}, including the one that just joined.
	for _, tr := range []*fakeTransport{ta, tb} {
		roster := tr.lastRoster(t)
		if len(roster.Clients) != 2 {
			t.Fatalf("expected roster of 2, got %d", len(roster.Clients))
		}
		ids := map[string]bool{}
		for _, e := range roster.Clients {
			ids[e.UserID] = true
		}
		if !ids["alice"] || !ids["bob"] {
			t.Fatalf("roster missing members: %v", roster.Clients)
		}
	}

	h.Remove("bob", tb)

	roster := ta.lastRoster(t)
	if len(roster.Clients) != 1 || roster.Clients[0].UserID != "alice" {
		t.Fatalf("expected roster of just alice after bob left, got %v", roster.Clients)
	}
}

func TestRelayDeliversVerbatim(t *testing.T) {
	h := New(zerolog.Nop())
	tb := &fakeTransport{}
	h.Admit(entry("bob"), tb)

	payload := json.RawMessage(`{"sdp":"v=0 fake offer"}`)
	ok := h.Relay(SignalEnvelope{Kind: SignalOffer, From: "alice", To: "bob", Payload: payload})
	if !ok {
		t.Fatal("relay to a connected peer must report delivered")
	}

	var sig SignalFrame
	found := false
	for _, f := range tb.sent() {
		if s, isSig := f.(SignalFrame); isSig {
			sig = s
			found = true
		}
	}
	if !found {
		t.Fatal("bob received no signal frame")
	}
	if sig.Type != FrameSignal || sig.SignalType != SignalOffer || sig.From != "alice" {
		t.Fatalf("unexpected signal frame: %+v", sig)
	}
	if string(sig.Payload) != string(payload) {
		t.Fatalf("payload not forwarded verbatim: %s", sig.Payload)
	}
}

func TestRelayToDisconnectedPeerDropsSilently(t *testing.T) {
	h := New(zerolog.Nop())
	if h.Relay(SignalEnvelope{Kind: SignalAnswer, From: "alice", To: "ghost"}) {
		t.Fatal("relay to an absent peer must report not delivered")
	}
}

func TestConcurrentAdmitRemove(t *testing.T) {
	h := New(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr := &fakeTransport{}
			h.Admit(entry("alice"), tr)
			h.Remove("alice", tr)
		}()
	}
	wg.Wait()

	if n := len(h.Connections()); n > 1 {
		t.Fatalf("registry exposed %d transports for one identity", n)
	}
}
