package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/peerchat-io/peerchat/internal/api"
	"github.com/peerchat-io/peerchat/internal/api/middleware"
	"github.com/peerchat-io/peerchat/internal/config"
	"github.com/peerchat-io/peerchat/internal/hub"
	"github.com/peerchat-io/peerchat/internal/models"
	"github.com/peerchat-io/peerchat/internal/store"
)

// apiFixture wires the full router over a temp SQLite store, no Redis.
type apiFixture struct {
	db  *store.SQLiteStore
	srv *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(db.Close)

	logger := zerolog.Nop()
	h := hub.New(logger)
	delivery := hub.NewDelivery(h, db, store.NewSQLQueue(db), logger)
	ws := hub.NewServer(h, delivery, db, nil, logger)

	cfg := &config.Config{Port: "0", Env: "test"}
	router := api.NewRouter(cfg, logger, db, nil, ws, delivery)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &apiFixture{db: db, srv: srv}
}

// do sends a JSON request, optionally as the given identity, and decodes the
// response into out when non-nil.
func (f *apiFixture) do(t *testing.T, method, path, userID string, body, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.IdentityHeader, userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func (f *apiFixture) register(t *testing.T, email, name string) models.PublicUser {
	t.Helper()
	var user models.PublicUser
	resp := f.do(t, "POST", "/api/auth/register", "", map[string]string{
		"email": email, "name": name, "password": "secret1",
	}, &user)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	return user
}

func TestRegisterValidation(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"valid", map[string]string{"email": "a@example.com", "name": "A", "password": "secret1"}, 201},
		{"bad email", map[string]string{"email": "nope", "name": "A", "password": "secret1"}, 400},
		{"missing name", map[string]string{"email": "b@example.com", "name": "  ", "password": "secret1"}, 400},
		{"short password", map[string]string{"email": "c@example.com", "name": "C", "password": "12345"}, 400},
		{"duplicate email", map[string]string{"email": "a@example.com", "name": "A2", "password": "secret1"}, 400},
	}
	for _, tc := range cases {
		resp := f.do(t, "POST", "/api/auth/register", "", tc.body, nil)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}
}

func TestRegisterNeverLeaksPasswordHash(t *testing.T) {
	f := newAPIFixture(t)

	var raw map[string]any
	f.do(t, "POST", "/api/auth/register", "", map[string]string{
		"email": "a@example.com", "name": "A", "password": "secret1",
	}, &raw)
	if _, ok := raw["password"]; ok {
		t.Fatal("response body contains a password field")
	}
}

func TestLoginVerifiesCredentials(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice@example.com", "Alice")

	var user models.PublicUser
	resp := f.do(t, "POST", "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret1",
	}, &user)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	if user.Status != models.StatusOnline {
		t.Fatalf("login should mark user online, got %q", user.Status)
	}

	resp = f.do(t, "POST", "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad password: status %d", resp.StatusCode)
	}

	// Unknown account and bad password are indistinguishable.
	resp = f.do(t, "POST", "/api/auth/login", "", map[string]string{
		"email": "ghost@example.com", "password": "secret1",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown account: status %d", resp.StatusCode)
	}
}

func TestIdentifiedRoutesRequireIdentity(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, "GET", "/api/users/me", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing header: status %d", resp.StatusCode)
	}

	resp = f.do(t, "GET", "/api/users/me", "not-a-uuid", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("malformed id: status %d", resp.StatusCode)
	}

	resp = f.do(t, "GET", "/api/users/me", "00000000-0000-0000-0000-000000000001", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown id: status %d", resp.StatusCode)
	}
}

func TestMeReturnsOwnProfile(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "alice@example.com", "Alice")

	var me models.PublicUser
	resp := f.do(t, "GET", "/api/users/me", alice.ID, nil, &me)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d", resp.StatusCode)
	}
	if me.ID != alice.ID || me.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", me)
	}
}

func TestFriendFlow(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "alice@example.com", "Alice")
	bob := f.register(t, "bob@example.com", "Bob")

	var req models.FriendRequest
	resp := f.do(t, "POST", "/api/friends/request", alice.ID,
		map[string]string{"email": "bob@example.com"}, &req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request: status %d", resp.StatusCode)
	}

	// Duplicate and self requests are rejected.
	resp = f.do(t, "POST", "/api/friends/request", alice.ID,
		map[string]string{"email": "bob@example.com"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate request: status %d", resp.StatusCode)
	}
	resp = f.do(t, "POST", "/api/friends/request", alice.ID,
		map[string]string{"email": "alice@example.com"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self request: status %d", resp.StatusCode)
	}
	resp = f.do(t, "POST", "/api/friends/request", alice.ID,
		map[string]string{"email": "ghost@example.com"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user: status %d", resp.StatusCode)
	}

	// Bob sees an incoming pending request.
	var entries []models.FriendEntry
	f.do(t, "GET", "/api/friends", bob.ID, nil, &entries)
	if len(entries) != 1 || !entries[0].Pending || !entries[0].Incoming {
		t.Fatalf("unexpected friend listing for bob: %+v", entries)
	}

	// Only the target may accept.
	resp = f.do(t, "POST", "/api/friends/accept", alice.ID,
		map[string]string{"requestId": req.ID.String()}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("requester accept: status %d", resp.StatusCode)
	}
	resp = f.do(t, "POST", "/api/friends/accept", bob.ID,
		map[string]string{"requestId": req.ID.String()}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept: status %d", resp.StatusCode)
	}

	f.do(t, "GET", "/api/friends", alice.ID, nil, &entries)
	if len(entries) != 1 || entries[0].Pending {
		t.Fatalf("friendship should be accepted: %+v", entries)
	}
}

func TestListFriendsEmptyIsArray(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "alice@example.com", "Alice")

	resp := f.do(t, "GET", "/api/friends", alice.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("friends: status %d", resp.StatusCode)
	}
	var raw json.RawMessage
	f.do(t, "GET", "/api/friends", alice.ID, nil, &raw)
	if string(bytes.TrimSpace(raw)) == "null" {
		t.Fatal("empty friends list must serialize as [], not null")
	}
}

func TestSendMessageAndHistory(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "alice@example.com", "Alice")
	bob := f.register(t, "bob@example.com", "Bob")

	var msg models.Message
	resp := f.do(t, "POST", "/api/messages", alice.ID, map[string]string{
		"receiverId": bob.ID, "content": "hello bob",
	}, &msg)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send: status %d", resp.StatusCode)
	}
	if msg.ID == "" || msg.Kind != models.KindText {
		t.Fatalf("unexpected message: %+v", msg)
	}

	var history []models.Message
	f.do(t, "GET", "/api/messages/"+bob.ID, alice.ID, nil, &history)
	if len(history) != 1 || history[0].Content != "hello bob" {
		t.Fatalf("unexpected history: %+v", history)
	}

	// Same history from the receiver's side.
	f.do(t, "GET", "/api/messages/"+alice.ID, bob.ID, nil, &history)
	if len(history) != 1 {
		t.Fatalf("history not symmetric: %+v", history)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "alice@example.com", "Alice")
	bob := f.register(t, "bob@example.com", "Bob")

	long := bytes.Repeat([]byte("x"), 8193)
	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"bad receiver id", map[string]string{"receiverId": "nope", "content": "hi"}, 400},
		{"empty content", map[string]string{"receiverId": bob.ID, "content": ""}, 400},
		{"oversized content", map[string]string{"receiverId": bob.ID, "content": string(long)}, 422},
		{"bad kind", map[string]string{"receiverId": bob.ID, "content": "hi", "type": "carrier-pigeon"}, 400},
		{"unknown recipient", map[string]string{"receiverId": "00000000-0000-0000-0000-000000000001", "content": "hi"}, 404},
	}
	for _, tc := range cases {
		resp := f.do(t, "POST", "/api/messages", alice.ID, tc.body, nil)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}
}

func TestPendingDrainOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "alice@example.com", "Alice")
	bob := f.register(t, "bob@example.com", "Bob")

	f.do(t, "POST", "/api/messages", alice.ID, map[string]string{
		"receiverId": bob.ID, "content": "while you were out",
	}, nil)

	var msgs []models.Message
	f.do(t, "GET", "/api/messages/pending", bob.ID, nil, &msgs)
	if len(msgs) != 1 || msgs[0].Content != "while you were out" {
		t.Fatalf("unexpected pending drain: %+v", msgs)
	}

	// The drain is destructive.
	f.do(t, "GET", "/api/messages/pending", bob.ID, nil, &msgs)
	if len(msgs) != 0 {
		t.Fatalf("second drain must be empty, got %+v", msgs)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "alice@example.com", "Alice")

	resp := f.do(t, "GET", "/api/admin/users", alice.ID, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin: status %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	var health struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	resp := f.do(t, "GET", "/health", "", nil, &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}
	if health.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", health.Status)
	}
	if _, ok := health.Checks["database"]; !ok {
		t.Fatal("health must report a database check")
	}
}
