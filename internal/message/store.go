package message

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

const selectColumns = "id, sender_id, receiver_id, provider_id, content, is_read, created_at"

// Store is the adapter over the messages table. It is the sole owner of
// persisted records; everything downstream works on recomputable projections.
type Store struct {
	db   *sql.DB
	feed Feed
}

// NewStore wraps db. feed may be nil, in which case change events are not
// published (polling still works, it is the correctness backstop anyway).
func NewStore(db *sql.DB, feed Feed) *Store {
	return &Store{db: db, feed: feed}
}

// Insert persists a new message and returns it with the assigned id and
// timestamp. The write is refused with ErrRejected when required fields are
// missing or the caller is not one of the participants.
func (s *Store) Insert(ctx context.Context, caller int, m *Message) (*Message, error) {
	if err := m.validate(caller); err != nil {
		return nil, err
	}

	stored := *m
	stored.IsRead = false
	query := `
		INSERT INTO messages (sender_id, receiver_id, provider_id, content, is_read)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		m.SenderID, m.ReceiverID, m.ProviderID, m.Content,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	s.publish(ctx, Event{Kind: EventInsert, Message: stored})
	return &stored, nil
}

// FetchConversation returns every message visible in scope, ascending by
// created_at with id as tiebreak. If the compound predicate fails, it falls
// back to fetching the whole provider group and narrowing with scope.Match,
// which yields the identical result set.
func (s *Store) FetchConversation(ctx context.Context, scope Scope) ([]Message, error) {
	clause, args := scope.where()
	msgs, err := s.query(ctx, clause, args)
	if err == nil {
		return msgs, nil
	}

	groupClause, groupArgs, ok := scope.group()
	if !ok {
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	log.Printf("compound conversation query failed, using group fallback: %v", err)

	all, ferr := s.query(ctx, groupClause, groupArgs)
	if ferr != nil {
		return nil, fmt.Errorf("fetch conversation fallback: %w", ferr)
	}
	msgs = msgs[:0]
	for i := range all {
		if scope.Match(&all[i]) {
			msgs = append(msgs, all[i])
		}
	}
	return msgs, nil
}

// FetchSince returns messages in scope strictly newer than the watermark,
// ascending. Used by the interval poll.
func (s *Store) FetchSince(ctx context.Context, scope Scope, watermark time.Time) ([]Message, error) {
	clause, args := scope.where()
	clause = fmt.Sprintf("(%s) AND created_at > $%d", clause, len(args)+1)
	args = append(args, watermark)
	msgs, err := s.query(ctx, clause, args)
	if err != nil {
		return nil, fmt.Errorf("fetch since: %w", err)
	}
	return msgs, nil
}

// MarkRead flips is_read on every unread message addressed to the scope's
// caller. Idempotent: already-read rows match nothing. Returns the number of
// rows updated.
func (s *Store) MarkRead(ctx context.Context, scope Scope) (int64, error) {
	clause, args := scope.readWhere()
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET is_read = TRUE WHERE "+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, raErr := res.RowsAffected()
	if shouldPublishRead(n, raErr) {
		// Synthetic record: receiver + group only, a hint for other surfaces
		// to recompute their unread counts from the table.
		s.publish(ctx, Event{Kind: EventRead, Message: readReceipt(scope)})
	}
	return n, nil
}

// shouldPublishRead decides whether a successful UPDATE warrants a read
// event. Drivers that cannot report affected rows get the event
// unconditionally: a spurious read event is an idempotent hint, a dropped one
// leaves other surfaces stale until their next reload.
func shouldPublishRead(n int64, err error) bool {
	return err != nil || n > 0
}

// UnreadTotal recomputes the user's badge count from the table. Always a
// fresh count, never a cached delta, so every surface agrees.
func (s *Store) UnreadTotal(ctx context.Context, userID int) (int, error) {
	var n int
	query := "SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND is_read = FALSE"
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("unread total: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, clause string, args []any) ([]Message, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM messages WHERE %s ORDER BY created_at ASC, id ASC",
		selectColumns, clause,
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.ProviderID,
			&m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) publish(ctx context.Context, ev Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, ev); err != nil {
		// Best effort: subscribers recover on their next poll tick.
		log.Printf("feed publish error: %v", err)
	}
}

func readReceipt(scope Scope) Message {
	m := Message{ReceiverID: scope.Self()}
	switch sc := scope.(type) {
	case CustomerConversationScope:
		m.ProviderID = sc.ProviderID
	case ProviderConversationScope:
		m.ProviderID = sc.ProviderID
	}
	return m
}
