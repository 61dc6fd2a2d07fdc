package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/peerchat-io/peerchat/internal/models"
)

// DataStore defines the interface for durable storage of users, friends and
// messages. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, email, name, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context) ([]models.User, error)

	// Friend operations
	CreateFriendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.FriendRequest, error)
	GetFriendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, requestID, userID uuid.UUID) (*models.FriendRequest, error)
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendEntry, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	Conversation(ctx context.Context, userID, friendID string, limit int) ([]models.Message, error)
	PendingMessages(ctx context.Context, receiverID string) ([]models.Message, error)
	AckDelivered(ctx context.Context, ids []string) error
	ListMessages(ctx context.Context, limit int) ([]models.Message, error)
}

// PendingQueue is the store-and-forward queue consulted by the delivery
// engine. Enqueue records a message whose receiver had no live connection,
// Acknowledge retires a message that was pushed live, and Drain destructively
// returns everything queued for a receiver: a second Drain in immediate
// succession returns nothing.
type PendingQueue interface {
	Enqueue(ctx context.Context, msg *models.Message) error
	Acknowledge(ctx context.Context, msg *models.Message) error
	Drain(ctx context.Context, receiverID string) ([]models.Message, error)
}

// SQLQueue implements PendingQueue on top of the delivery-status column of a
// DataStore's messages table. CreateMessage already leaves a row in the
// "sent" state, so Enqueue has nothing to do; Drain and Acknowledge flip
// matched rows to "delivered", which keeps them visible to the conversation
// history endpoints.
type SQLQueue struct {
	db DataStore
}

// NewSQLQueue creates a queue view over the given store.
func NewSQLQueue(db DataStore) *SQLQueue {
	return &SQLQueue{db: db}
}

func (q *SQLQueue) Enqueue(ctx context.Context, msg *models.Message) error {
	return nil // the persisted row is the queue entry
}

func (q *SQLQueue) Acknowledge(ctx context.Context, msg *models.Message) error {
	return q.db.AckDelivered(ctx, []string{msg.ID})
}

func (q *SQLQueue) Drain(ctx context.Context, receiverID string) ([]models.Message, error) {
	pending, err := q.db.PendingMessages(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	ids := make([]string, len(pending))
	for i := range pending {
		ids[i] = pending[i].ID
	}
	if err := q.db.AckDelivered(ctx, ids); err != nil {
		return nil, err
	}
	return pending, nil
}
