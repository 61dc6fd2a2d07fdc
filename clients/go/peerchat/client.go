// Package peerchat provides a client for the peerchat server: an HTTP API
// client plus a websocket connection manager that handles presence,
// store-and-forward messages and WebRTC signaling.
package peerchat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a peerchat API client. UserID must be set (by Login or Register)
// before calling identified endpoints.
type Client struct {
	BaseURL    string
	UserID     string
	HTTPClient *http.Client
}

// NewClient creates a new peerchat client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request, attaching the identity header when set.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.UserID != "" {
		req.Header.Set("User-Id", c.UserID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("peerchat error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// User is a user profile as returned by the server.
type User struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// Message is a chat message.
type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Kind       string `json:"type"`
	MediaURL   string `json:"mediaUrl,omitempty"`
	Status     string `json:"status"`
	Timestamp  int64  `json:"ts"`
}

// FriendEntry is one row of the friends listing.
type FriendEntry struct {
	RequestID string `json:"request_id"`
	User      User   `json:"user"`
	Pending   bool   `json:"pending"`
	Incoming  bool   `json:"incoming"`
}

// Register creates an account and adopts its identity.
func (c *Client) Register(email, name, password string) (*User, error) {
	body, _ := json.Marshal(map[string]string{
		"email": email, "name": name, "password": password,
	})
	respBody, err := c.doRequest("POST", "/api/auth/register", body)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, err
	}
	c.UserID = user.ID
	return &user, nil
}

// Login verifies credentials and adopts the account's identity.
func (c *Client) Login(email, password string) (*User, error) {
	body, _ := json.Marshal(map[string]string{
		"email": email, "password": password,
	})
	respBody, err := c.doRequest("POST", "/api/auth/login", body)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, err
	}
	c.UserID = user.ID
	return &user, nil
}

// Me fetches the caller's own profile.
func (c *Client) Me() (*User, error) {
	respBody, err := c.doRequest("GET", "/api/users/me", nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RequestFriend sends a friend request to the user with the given email.
func (c *Client) RequestFriend(email string) error {
	body, _ := json.Marshal(map[string]string{"email": email})
	_, err := c.doRequest("POST", "/api/friends/request", body)
	return err
}

// AcceptFriend accepts an incoming friend request.
func (c *Client) AcceptFriend(requestID string) error {
	body, _ := json.Marshal(map[string]string{"requestId": requestID})
	_, err := c.doRequest("POST", "/api/friends/accept", body)
	return err
}

// Friends lists friends and pending requests.
func (c *Client) Friends() ([]FriendEntry, error) {
	respBody, err := c.doRequest("GET", "/api/friends", nil)
	if err != nil {
		return nil, err
	}
	var entries []FriendEntry
	if err := json.Unmarshal(respBody, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SendMessage sends a chat message. The server persists it and pushes it to
// the receiver if they are connected; the caller cannot tell which happened.
func (c *Client) SendMessage(receiverID, content, kind string) (*Message, error) {
	if kind == "" {
		kind = "text"
	}
	body, _ := json.Marshal(map[string]string{
		"receiverId": receiverID, "content": content, "type": kind,
	})
	respBody, err := c.doRequest("POST", "/api/messages", body)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PendingMessages drains queued messages without a live websocket.
func (c *Client) PendingMessages() ([]Message, error) {
	respBody, err := c.doRequest("GET", "/api/messages/pending", nil)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(respBody, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Conversation fetches the message history with one friend.
func (c *Client) Conversation(friendID string) ([]Message, error) {
	respBody, err := c.doRequest("GET", "/api/messages/"+friendID, nil)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(respBody, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return nil, err
	}
	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
