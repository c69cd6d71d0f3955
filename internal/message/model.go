package message

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// MaxContentLen bounds the text payload (runes, not bytes).
const MaxContentLen = 2000

// ErrRejected means the store refused the write before touching the database.
var ErrRejected = errors.New("message rejected")

// Message is a single chat message between a customer and a provider.
// Rows are append-only: the only mutation ever applied is is_read false -> true.
type Message struct {
	ID         int       `json:"id"`
	SenderID   int       `json:"sender_id"`
	ReceiverID int       `json:"receiver_id"`
	ProviderID int       `json:"provider_id"` // conversation group key
	Content    string    `json:"content"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// Before reports whether m sorts before other: created_at ascending,
// id as the tiebreak so clock collisions keep insertion order.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// CounterpartOf returns the other party's id relative to self.
func (m *Message) CounterpartOf(self int) int {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

func (m *Message) validate(caller int) error {
	if m.SenderID == 0 || m.ReceiverID == 0 || m.ProviderID == 0 {
		return fmt.Errorf("%w: missing participant or provider id", ErrRejected)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: empty content", ErrRejected)
	}
	if utf8.RuneCountInString(m.Content) > MaxContentLen {
		return fmt.Errorf("%w: content exceeds %d characters", ErrRejected, MaxContentLen)
	}
	if caller != m.SenderID && caller != m.ReceiverID {
		return fmt.Errorf("%w: caller %d is not a participant", ErrRejected, caller)
	}
	return nil
}
