package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peerchat-io/peerchat/internal/models"
)

const (
	// Undrained inbox entries expire eventually; the durable copy lives in
	// the SQL store, so expiry here only bounds Redis memory.
	inboxTTL     = 7 * 24 * time.Hour
	rateLimitTTL = time.Minute
)

// RedisStore handles Redis operations for pending-message inboxes and
// rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that shares the pool.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// inboxKey returns the key for a user's pending-message inbox.
func inboxKey(userID string) string {
	return fmt.Sprintf("inbox:%s", userID)
}

// rateLimitKey returns the key for a caller's rate limit counter.
func rateLimitKey(callerID string) string {
	return fmt.Sprintf("ratelimit:%s", callerID)
}

// StorePending adds a message to the receiver's inbox, scored by timestamp
// so drains come out in creation order.
func (s *RedisStore) StorePending(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := inboxKey(msg.ReceiverID)
	if err := s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Timestamp),
		Member: string(data),
	}).Err(); err != nil {
		return err
	}
	s.client.Expire(ctx, key, inboxTTL)
	return nil
}

// DrainPending destructively returns the receiver's inbox in creation order.
// Read and delete run in one transaction so two concurrent drains cannot
// both observe the same entries.
func (s *RedisStore) DrainPending(ctx context.Context, userID string) ([]models.Message, error) {
	key := inboxKey(userID)

	pipe := s.client.TxPipeline()
	rangeCmd := pipe.ZRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	results := rangeCmd.Val()
	msgs := make([]models.Message, 0, len(results))
	for _, data := range results {
		var m models.Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// RemovePending deletes a single message from the receiver's inbox.
func (s *RedisStore) RemovePending(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.ZRem(ctx, inboxKey(msg.ReceiverID), string(data)).Err()
}

// CheckRateLimit checks if a caller has exceeded the rate limit.
func (s *RedisStore) CheckRateLimit(ctx context.Context, callerID string, limit int) (bool, error) {
	count, err := s.client.Get(ctx, rateLimitKey(callerID)).Int()
	if err != nil && err != redis.Nil {
		return false, err
	}
	return count < limit, nil
}

// IncrementRateLimit increments the rate limit counter.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, callerID string) error {
	key := rateLimitKey(callerID)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rateLimitTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RedisQueue implements PendingQueue with the inbox living in Redis. The SQL
// store still holds the durable history row; this queue only tracks which
// messages have yet to reach their receiver. Acknowledge updates the SQL
// delivery status so history reflects the live push.
type RedisQueue struct {
	redis *RedisStore
	db    DataStore
}

// NewRedisQueue creates a Redis-backed pending queue.
func NewRedisQueue(r *RedisStore, db DataStore) *RedisQueue {
	return &RedisQueue{redis: r, db: db}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg *models.Message) error {
	return q.redis.StorePending(ctx, msg)
}

func (q *RedisQueue) Acknowledge(ctx context.Context, msg *models.Message) error {
	return q.db.AckDelivered(ctx, []string{msg.ID})
}

func (q *RedisQueue) Drain(ctx context.Context, receiverID string) ([]models.Message, error) {
	msgs, err := q.redis.DrainPending(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
	}
	if err := q.db.AckDelivered(ctx, ids); err != nil {
		return nil, err
	}
	return msgs, nil
}
