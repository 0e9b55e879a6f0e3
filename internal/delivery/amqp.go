package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/errors"
)

// OutboundMessage is the payload a separate sender consumes from the queue.
type OutboundMessage struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// AMQP publishes reminders to a durable queue instead of calling the chat API.
type AMQP struct {
	mu    sync.Mutex // amqp channels are not safe for concurrent publishing
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// DialAMQP connects to the broker and declares the outbound queue.
func DialAMQP(url, queue string) (*AMQP, error) {
	if queue == "" {
		queue = constants.DefaultOutboundQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}

	return &AMQP{conn: conn, ch: ch, queue: queue}, nil
}

func (a *AMQP) Deliver(ctx context.Context, recipientID, text string) error {
	msg := OutboundMessage{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(errors.ErrDelivery, "failed to encode outbound message: %v", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	err = a.ch.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return errors.Wrap(errors.ErrDelivery, "publish to %s failed: %v", a.queue, err)
	}
	return nil
}

// Queue returns the name of the queue messages are published to
func (a *AMQP) Queue() string {
	return a.queue
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return errors.Join(a.ch.Close(), a.conn.Close())
}
