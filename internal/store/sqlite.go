package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/peerchat-io/peerchat/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/peerchat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/peerchat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		password TEXT NOT NULL,
		status TEXT DEFAULT 'offline',
		is_admin INTEGER DEFAULT 0,
		last_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS friends (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		friend_id TEXT NOT NULL REFERENCES users(id),
		status TEXT DEFAULT 'pending',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, friend_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		content TEXT NOT NULL,
		kind TEXT DEFAULT 'text',
		media_url TEXT DEFAULT '',
		status TEXT DEFAULT 'sent',
		ts INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_friends_friend ON friends(friend_id, status);
	CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(receiver_id, status);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, ts);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record with a bcrypt password hash.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, name, passwordHash string) (*models.User, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password, status, last_seen, created_at)
		VALUES (?, ?, ?, ?, 'offline', ?, ?)
	`, id.String(), email, name, passwordHash, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := row.Scan(&idStr, &user.Email, &user.Name, &user.Password,
		&user.Status, &user.IsAdmin, &user.LastSeen, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password, status, is_admin, last_seen, created_at
		FROM users WHERE id = ?
	`, id.String()))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password, status, is_admin, last_seen, created_at
		FROM users WHERE email = ?
	`, email))
}

// UpdateUserStatus sets a user's presence status.
func (s *SQLiteStore) UpdateUserStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET status = ? WHERE id = ?`, status, id.String())
	return err
}

// UpdateLastSeen stamps the user's last-seen time.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_seen = ? WHERE id = ?`, time.Now().UTC(), id.String())
	return err
}

// ListUsers returns all users, newest first.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, password, status, is_admin, last_seen, created_at
		FROM users ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var idStr string
		if err := rows.Scan(&idStr, &user.Email, &user.Name, &user.Password,
			&user.Status, &user.IsAdmin, &user.LastSeen, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.ID, _ = uuid.Parse(idStr)
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateFriendRequest creates a pending friend request.
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{
		ID:        uuid.New(),
		UserID:    userID,
		FriendID:  friendID,
		Status:    models.FriendPending,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friends (id, user_id, friend_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, req.ID.String(), userID.String(), friendID.String(), req.Status, req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetFriendRequest retrieves a request between two users in either direction.
func (s *SQLiteStore) GetFriendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{}
	var id, uid, fid string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, friend_id, status, created_at FROM friends
		WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
	`, userID.String(), friendID.String(), friendID.String(), userID.String()).
		Scan(&id, &uid, &fid, &req.Status, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	req.ID, _ = uuid.Parse(id)
	req.UserID, _ = uuid.Parse(uid)
	req.FriendID, _ = uuid.Parse(fid)
	return req, nil
}

// AcceptFriendRequest marks a pending request accepted. Only the target of
// the request may accept it.
func (s *SQLiteStore) AcceptFriendRequest(ctx context.Context, requestID, userID uuid.UUID) (*models.FriendRequest, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE friends SET status = 'accepted'
		WHERE id = ? AND friend_id = ? AND status = 'pending'
	`, requestID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, errors.New("friend request not found")
	}

	req := &models.FriendRequest{}
	var id, uid, fid string
	err = s.db.QueryRowContext(ctx, `
		SELECT id, user_id, friend_id, status, created_at FROM friends WHERE id = ?
	`, requestID.String()).Scan(&id, &uid, &fid, &req.Status, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	req.ID, _ = uuid.Parse(id)
	req.UserID, _ = uuid.Parse(uid)
	req.FriendID, _ = uuid.Parse(fid)
	return req, nil
}

// ListFriends returns accepted friends and pending requests involving the
// user, each paired with the other party's public profile.
func (s *SQLiteStore) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.status, f.user_id,
		       u.id, u.email, u.name, u.status, u.last_seen
		FROM friends f
		JOIN users u ON u.id = CASE WHEN f.user_id = ? THEN f.friend_id ELSE f.user_id END
		WHERE f.user_id = ? OR f.friend_id = ?
		ORDER BY f.created_at
	`, userID.String(), userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.FriendEntry
	for rows.Next() {
		var reqID, status, requester string
		var pub models.PublicUser
		if err := rows.Scan(&reqID, &status, &requester,
			&pub.ID, &pub.Email, &pub.Name, &pub.Status, &pub.LastSeen); err != nil {
			return nil, err
		}
		entry := models.FriendEntry{
			User:     pub,
			Pending:  status == models.FriendPending,
			Incoming: status == models.FriendPending && requester != userID.String(),
		}
		entry.RequestID, _ = uuid.Parse(reqID)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreateMessage persists a message, assigning an ID and timestamp if unset.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	fillMessageDefaults(msg)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, kind, media_url, status, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.Kind, msg.MediaURL, msg.Status, msg.Timestamp)
	return err
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content,
			&m.Kind, &m.MediaURL, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Conversation returns the message history between two users in creation order.
func (s *SQLiteStore) Conversation(ctx context.Context, userID, friendID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, kind, media_url, status, ts
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY ts, id LIMIT ?
	`, userID, friendID, friendID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// PendingMessages returns undelivered messages for a receiver in creation order.
func (s *SQLiteStore) PendingMessages(ctx context.Context, receiverID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, kind, media_url, status, ts
		FROM messages WHERE receiver_id = ? AND status = 'sent'
		ORDER BY ts, id
	`, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// AckDelivered marks the given messages delivered.
func (s *SQLiteStore) AckDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = 'delivered' WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// ListMessages returns recent messages across all users, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, kind, media_url, status, ts
		FROM messages ORDER BY ts DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// fillMessageDefaults assigns ID, timestamp, kind and status on a new message.
// ULIDs sort lexically by creation time, which is what gives the store its
// creation-order drain and history guarantees.
func fillMessageDefaults(msg *models.Message) {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	if msg.Kind == "" {
		msg.Kind = models.KindText
	}
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
}
