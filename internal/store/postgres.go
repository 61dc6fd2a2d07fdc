package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peerchat-io/peerchat/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		password TEXT NOT NULL,
		status TEXT DEFAULT 'offline',
		is_admin BOOLEAN DEFAULT FALSE,
		last_seen TIMESTAMPTZ DEFAULT NOW(),
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS friends (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		friend_id UUID NOT NULL REFERENCES users(id),
		status TEXT DEFAULT 'pending',
		created_at TIMESTAMPTZ DEFAULT NOW(),
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
		ts BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(receiver_id, status);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, ts);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record with a bcrypt password hash.
func (s *PostgresStore) CreateUser(ctx context.Context, email, name, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, password)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, name, password, status, is_admin, last_seen, created_at
	`, uuid.New(), email, name, passwordHash).Scan(
		&user.ID, &user.Email, &user.Name, &user.Password,
		&user.Status, &user.IsAdmin, &user.LastSeen, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, name, password, status, is_admin, last_seen, created_at
		FROM users WHERE `+where, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.Password,
		&user.Status, &user.IsAdmin, &user.LastSeen, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = $1", email)
}

// UpdateUserStatus sets a user's presence status.
func (s *PostgresStore) UpdateUserStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET status = $1 WHERE id = $2`, status, id)
	return err
}

// UpdateLastSeen stamps the user's last-seen time.
func (s *PostgresStore) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_seen = NOW() WHERE id = $1`, id)
	return err
}

// ListUsers returns all users, newest first.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
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
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.Password,
			&user.Status, &user.IsAdmin, &user.LastSeen, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateFriendRequest creates a pending friend request.
func (s *PostgresStore) CreateFriendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{
		ID:        uuid.New(),
		UserID:    userID,
		FriendID:  friendID,
		Status:    models.FriendPending,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO friends (id, user_id, friend_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, req.ID, userID, friendID, req.Status, req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetFriendRequest retrieves a request between two users in either direction.
func (s *PostgresStore) GetFriendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, friend_id, status, created_at FROM friends
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`, userID, friendID).Scan(&req.ID, &req.UserID, &req.FriendID, &req.Status, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// AcceptFriendRequest marks a pending request accepted. Only the target of
// the request may accept it.
func (s *PostgresStore) AcceptFriendRequest(ctx context.Context, requestID, userID uuid.UUID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{}
	err := s.pool.QueryRow(ctx, `
		UPDATE friends SET status = 'accepted'
		WHERE id = $1 AND friend_id = $2 AND status = 'pending'
		RETURNING id, user_id, friend_id, status, created_at
	`, requestID, userID).Scan(&req.ID, &req.UserID, &req.FriendID, &req.Status, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("friend request not found")
		}
		return nil, err
	}
	return req, nil
}

// ListFriends returns accepted friends and pending requests involving the
// user, each paired with the other party's public profile.
func (s *PostgresStore) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.status, f.user_id,
		       u.id, u.email, u.name, u.status, u.last_seen
		FROM friends f
		JOIN users u ON u.id = CASE WHEN f.user_id = $1 THEN f.friend_id ELSE f.user_id END
		WHERE f.user_id = $1 OR f.friend_id = $1
		ORDER BY f.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.FriendEntry
	for rows.Next() {
		var status string
		var requester uuid.UUID
		var entry models.FriendEntry
		var pubID uuid.UUID
		if err := rows.Scan(&entry.RequestID, &status, &requester,
			&pubID, &entry.User.Email, &entry.User.Name, &entry.User.Status, &entry.User.LastSeen); err != nil {
			return nil, err
		}
		entry.User.ID = pubID.String()
		entry.Pending = status == models.FriendPending
		entry.Incoming = entry.Pending && requester != userID
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreateMessage persists a message, assigning an ID and timestamp if unset.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	fillMessageDefaults(msg)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, kind, media_url, status, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.Kind, msg.MediaURL, msg.Status, msg.Timestamp)
	return err
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
func (s *PostgresStore) Conversation(ctx context.Context, userID, friendID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryMessages(ctx, `
		SELECT id, sender_id, receiver_id, content, kind, media_url, status, ts
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY ts, id LIMIT $3
	`, userID, friendID, limit)
}

// PendingMessages returns undelivered messages for a receiver in creation order.
func (s *PostgresStore) PendingMessages(ctx context.Context, receiverID string) ([]models.Message, error) {
	return s.queryMessages(ctx, `
		SELECT id, sender_id, receiver_id, content, kind, media_url, status, ts
		FROM messages WHERE receiver_id = $1 AND status = 'sent'
		ORDER BY ts, id
	`, receiverID)
}

// AckDelivered marks the given messages delivered.
func (s *PostgresStore) AckDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE messages SET status = 'delivered' WHERE id = ANY($1)`, ids)
	return err
}

// ListMessages returns recent messages across all users, newest first.
func (s *PostgresStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.queryMessages(ctx, `
		SELECT id, sender_id, receiver_id, content, kind, media_url, status, ts
		FROM messages ORDER BY ts DESC LIMIT $1
	`, limit)
}
