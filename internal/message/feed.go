package message

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Channel is the redis pub/sub channel carrying all message change events.
// Events are fanned out unfiltered; each subscriber narrows them with its
// own Scope.Match.
const Channel = "chat:events"

type EventKind string

const (
	EventInsert EventKind = "insert"
	EventRead   EventKind = "read"
)

// Event is one change-feed entry. Insert events carry the full stored record;
// read events carry a synthetic record naming the receiver and group.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message Message   `json:"message"`
}

// Feed is the push side of the sync pair. Delivery is best effort: consumers
// treat events as hints to merge, the interval poll is authoritative for
// anything the feed drops.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context) <-chan Event
}

// RedisFeed implements Feed over redis pub/sub.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, Channel, payload).Err()
}

// Subscribe opens a pub/sub subscription scoped to ctx. The returned channel
// is closed when ctx is cancelled or the subscription dies; callers keep
// polling either way.
func (f *RedisFeed) Subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)
	pubsub := f.client.Subscribe(ctx, Channel)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("feed: dropping malformed event: %v", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
