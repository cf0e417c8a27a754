package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Dispatcher hands messages to the delivery collaborator. Publish is
// fire-and-forget from the core's point of view: once it returns, ownership
// of the message has transferred.
type Dispatcher interface {
	Publish(ctx context.Context, msg Message) error
}

// CabinetTopic is the pub/sub channel carrying one cabinet's notifications.
// One topic per tenant keeps subscriber lifecycle explicit instead of a
// mutable callback list.
func CabinetTopic(cabinetID uuid.UUID) string {
	return fmt.Sprintf("cabinet:%s:notifications", cabinetID)
}

// RedisDispatcher publishes messages as JSON on the cabinet's topic.
type RedisDispatcher struct {
	client *redis.Client
}

func NewRedisDispatcher(client *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{client: client}
}

func (d *RedisDispatcher) Publish(ctx context.Context, msg Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := d.client.Publish(ctx, CabinetTopic(msg.CabinetID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscribe returns a channel of messages for one cabinet. Closing the
// context tears the subscription down.
func Subscribe(ctx context.Context, client *redis.Client, cabinetID uuid.UUID) (<-chan Message, error) {
	sub := client.Subscribe(ctx, CabinetTopic(cabinetID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe cabinet %s: %w", cabinetID, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
