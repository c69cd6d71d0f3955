package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Queue is where notification tasks wait for the worker.
const Queue = "notifications"

// QueueNotifier enqueues notifications as asynq tasks on redis.
type QueueNotifier struct {
	client *asynq.Client
}

func NewQueueNotifier(redisAddr string) *QueueNotifier {
	return &QueueNotifier{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	task := asynq.NewTask(TaskDeliver, payload)
	_, err = q.client.EnqueueContext(ctx, task, asynq.Queue(Queue), asynq.MaxRetry(3))
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (q *QueueNotifier) Close() error {
	return q.client.Close()
}
