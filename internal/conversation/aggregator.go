// Package conversation derives per-counterpart conversation summaries from a
// flat message stream. Conversations are never persisted: the whole package is
// a recomputable projection, safe to discard and rebuild at any time.
package conversation

import (
	"sort"
	"time"

	"marketplace-chat/internal/message"
)

// Summary is one row of the conversation list.
type Summary struct {
	CounterpartID int       `json:"counterpart_id"`
	ProviderID    int       `json:"provider_id"` // stable grouping key
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
}

// List is the mutable projection: a summary per provider key plus the set of
// message ids already counted as unread, which is what makes replays
// harmless.
type List struct {
	byKey   map[int]*Summary
	counted map[int]bool
}

func NewList() *List {
	return &List{
		byKey:   make(map[int]*Summary),
		counted: make(map[int]bool),
	}
}

// Fold builds a list from an unordered batch of messages belonging to self.
func Fold(self int, msgs []message.Message) *List {
	l := NewList()
	for i := range msgs {
		l.Apply(self, msgs[i])
	}
	return l
}

// Apply folds a single message in. For a new key it creates the summary; for
// an existing key it replaces the last message only when strictly newer.
// The unread count increments only the first time a given message id is seen
// unread and addressed to self, so applying the same message twice never
// double-counts.
func (l *List) Apply(self int, m message.Message) {
	s, ok := l.byKey[m.ProviderID]
	if !ok {
		s = &Summary{
			CounterpartID: m.CounterpartOf(self),
			ProviderID:    m.ProviderID,
			LastMessage:   m.Content,
			LastMessageAt: m.CreatedAt,
		}
		l.byKey[m.ProviderID] = s
	} else if m.CreatedAt.After(s.LastMessageAt) {
		s.LastMessage = m.Content
		s.LastMessageAt = m.CreatedAt
	}

	if m.ReceiverID == self && !m.IsRead && !l.counted[m.ID] {
		l.counted[m.ID] = true
		s.UnreadCount++
	}
}

// ClearUnread zeroes one conversation's unread count. The counted-id set is
// kept, so stale copies of already-counted messages arriving later cannot
// resurrect the count.
func (l *List) ClearUnread(providerID int) {
	if s, ok := l.byKey[providerID]; ok {
		s.UnreadCount = 0
	}
}

// Get returns the summary for a provider key, or nil.
func (l *List) Get(providerID int) *Summary {
	return l.byKey[providerID]
}

// Ordered returns the summaries newest-first, the order the list renders in.
func (l *List) Ordered() []Summary {
	out := make([]Summary, 0, len(l.byKey))
	for _, s := range l.byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].ProviderID < out[j].ProviderID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}
