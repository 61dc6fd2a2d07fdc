package hub

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/peerchat-io/peerchat/internal/metrics"
	"github.com/peerchat-io/peerchat/internal/models"
	"github.com/peerchat-io/peerchat/internal/store"
)

// Delivery implements store-and-forward message delivery. Every message is
// persisted before any push attempt, so a crash between persist and push
// leaves the message queued for the receiver's next connect. A message that
// is pushed to a live receiver is acknowledged out of the pending queue
// immediately and will not be redelivered by a later drain.
type Delivery struct {
	hub    *Hub
	db     store.DataStore
	queue  store.PendingQueue
	logger zerolog.Logger
}

// NewDelivery creates a delivery engine over the given registry and stores.
func NewDelivery(h *Hub, db store.DataStore, queue store.PendingQueue, logger zerolog.Logger) *Delivery {
	return &Delivery{hub: h, db: db, queue: queue, logger: logger}
}

// Send persists a message and pushes it to the receiver's live connection if
// one exists. It returns the persisted record whether or not the push
// happened; an offline receiver is not an error. A failed store write is.
func (d *Delivery) Send(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := d.db.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	if t, ok := d.hub.Lookup(msg.ReceiverID); ok {
		if err := t.Send(MessageFrame{Type: FrameNewMessage, Message: msg}); err == nil {
			if err := d.queue.Acknowledge(ctx, msg); err != nil {
				d.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("delivery ack failed")
			}
			metrics.MessagesSent.WithLabelValues("pushed").Inc()
			return msg, nil
		}
		// Write failed: the transport is dying and will be pruned by its
		// close event. Fall through and queue.
	}

	if err := d.queue.Enqueue(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues("queued").Inc()
	return msg, nil
}

// DrainPending destructively fetches everything queued for the identity and
// pushes each message to its live connection, if present. It runs
// automatically after a successful handshake and backs the pollable
// pending-messages endpoint. A second drain in immediate succession returns
// nothing.
func (d *Delivery) DrainPending(ctx context.Context, identity string) ([]models.Message, error) {
	msgs, err := d.queue.Drain(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	if t, ok := d.hub.Lookup(identity); ok {
		for i := range msgs {
			if err := t.Send(MessageFrame{Type: FrameNewMessage, Message: &msgs[i]}); err != nil {
				d.logger.Debug().Err(err).Str("user_id", identity).Msg("drain push failed")
				break
			}
		}
	}

	metrics.MessagesDrained.Add(float64(len(msgs)))
	return msgs, nil
}
