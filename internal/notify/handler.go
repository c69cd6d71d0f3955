package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
)

// Handler is the worker side: it persists delivered notifications so the
// recipient's notification center can show them.
type Handler struct {
	db *sql.DB
}

func NewHandler(db *sql.DB) *Handler {
	return &Handler{db: db}
}

// HandleDeliver consumes one TaskDeliver task.
func (h *Handler) HandleDeliver(ctx context.Context, t *asynq.Task) error {
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		// Malformed payloads will never succeed; don't let asynq retry them.
		log.Printf("notify: dropping malformed task: %v", err)
		return nil
	}

	query := `
		INSERT INTO notifications (user_id, title, message, type, link)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := h.db.ExecContext(ctx, query, n.UserID, n.Title, n.Message, n.Type, n.Link); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}
