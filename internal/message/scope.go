package message

// Scope is the role-dependent view of the message table. The customer and
// provider sides filter conversations differently, so each role gets its own
// query builder, selected once per session instead of branching inside the
// sync and aggregation code.
//
// Match must be exactly equivalent to the SQL predicate returned by where():
// it doubles as the client-side filter for change-feed events and as the
// fallback filter when the store rejects the compound predicate.
type Scope interface {
	// Self is the calling user's id.
	Self() int

	// Match reports whether m is visible in this scope.
	Match(m *Message) bool

	// where returns the primary WHERE clause with $1..$n placeholders.
	where() (clause string, args []any)

	// group returns the broad fetch used as the fallback path: the whole
	// provider group, narrowed afterwards with Match. ok is false when the
	// primary clause is already simple enough to need no fallback.
	group() (clause string, args []any, ok bool)

	// readWhere returns the predicate for the bulk mark-read update.
	readWhere() (clause string, args []any)
}

// InboxScope covers every message the user participates in, across all
// conversations. Backs the conversation-list surface.
type InboxScope struct {
	SelfID int
}

func (s InboxScope) Self() int { return s.SelfID }

func (s InboxScope) Match(m *Message) bool {
	return m.SenderID == s.SelfID || m.ReceiverID == s.SelfID
}

func (s InboxScope) where() (string, []any) {
	return "sender_id = $1 OR receiver_id = $1", []any{s.SelfID}
}

func (s InboxScope) group() (string, []any, bool) {
	return "", nil, false
}

func (s InboxScope) readWhere() (string, []any) {
	return "receiver_id = $1 AND is_read = FALSE", []any{s.SelfID}
}

// CustomerConversationScope is one customer's conversation with one provider:
// the provider id is the group key and the customer must be a participant.
type CustomerConversationScope struct {
	SelfID     int
	ProviderID int
}

func (s CustomerConversationScope) Self() int { return s.SelfID }

func (s CustomerConversationScope) Match(m *Message) bool {
	return m.ProviderID == s.ProviderID &&
		(m.SenderID == s.SelfID || m.ReceiverID == s.SelfID)
}

func (s CustomerConversationScope) where() (string, []any) {
	return "provider_id = $1 AND (sender_id = $2 OR receiver_id = $2)",
		[]any{s.ProviderID, s.SelfID}
}

func (s CustomerConversationScope) group() (string, []any, bool) {
	return "provider_id = $1", []any{s.ProviderID}, true
}

func (s CustomerConversationScope) readWhere() (string, []any) {
	return "receiver_id = $1 AND provider_id = $2 AND is_read = FALSE",
		[]any{s.SelfID, s.ProviderID}
}

// ProviderConversationScope is the provider side of one conversation: the
// group key is the provider's own id, so the scope is narrowed by the
// customer counterpart instead.
type ProviderConversationScope struct {
	SelfID        int
	ProviderID    int
	CounterpartID int
}

func (s ProviderConversationScope) Self() int { return s.SelfID }

func (s ProviderConversationScope) Match(m *Message) bool {
	return m.ProviderID == s.ProviderID &&
		(m.SenderID == s.CounterpartID || m.ReceiverID == s.CounterpartID)
}

func (s ProviderConversationScope) where() (string, []any) {
	return "provider_id = $1 AND (sender_id = $2 OR receiver_id = $2)",
		[]any{s.ProviderID, s.CounterpartID}
}

func (s ProviderConversationScope) group() (string, []any, bool) {
	return "provider_id = $1", []any{s.ProviderID}, true
}

func (s ProviderConversationScope) readWhere() (string, []any) {
	return "receiver_id = $1 AND provider_id = $2 AND sender_id = $3 AND is_read = FALSE",
		[]any{s.SelfID, s.ProviderID, s.CounterpartID}
}
