// Package notify hands message notifications to the delivery worker. The
// send path only enqueues; retries and persistence belong to the queue and
// the worker, never to the sender.
package notify

import (
	"context"
	"unicode/utf8"
)

// TaskDeliver is the asynq task type consumed by cmd/worker.
const TaskDeliver = "notification:deliver"

// PreviewLen bounds the content preview embedded in notification text.
const PreviewLen = 80

// Notification is the fire-and-forget payload sent when a message lands.
type Notification struct {
	UserID  int    `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Link    string `json:"link"`
}

// Notifier delivers a notification. Implementations must be safe to call
// concurrently; errors are always non-fatal to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Preview truncates content to max runes for notification text.
func Preview(content string, max int) string {
	if utf8.RuneCountInString(content) <= max {
		return content
	}
	runes := []rune(content)
	return string(runes[:max]) + "…"
}
