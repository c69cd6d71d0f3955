// Package live keeps one surface (the inbox list or an open conversation)
// fresh by reconciling two redundant update channels: a push subscription to
// the change feed and a fixed-interval poll. Neither channel is trusted on
// its own; both funnel into an id-keyed merge that is idempotent and
// commutative, which is what makes their arbitrary interleaving safe.
package live

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketplace-chat/internal/message"
)

const (
	// DefaultInboxInterval is the conversation-list poll period.
	DefaultInboxInterval = 5 * time.Second
	// DefaultConversationInterval is the open-conversation poll period.
	DefaultConversationInterval = 3 * time.Second
	// DefaultFailureThreshold is how many consecutive sync failures it takes
	// before the surface reports itself degraded. A single missed tick is
	// normal and stays invisible.
	DefaultFailureThreshold = 3
)

// Fetcher is the slice of the message store the engine needs.
type Fetcher interface {
	FetchConversation(ctx context.Context, scope message.Scope) ([]message.Message, error)
	FetchSince(ctx context.Context, scope message.Scope, watermark time.Time) ([]message.Message, error)
}

type Options struct {
	Interval         time.Duration
	FailureThreshold int
}

// Engine owns the local message state for one mounted surface. All state is
// discarded when the surface unmounts; Run's context bounds every timer and
// subscription so nothing dangles past teardown.
type Engine struct {
	id        string
	scope     message.Scope
	store     Fetcher
	feed      message.Feed
	interval  time.Duration
	threshold int

	mu        sync.Mutex
	msgs      []message.Message
	ids       map[int]bool
	marks     []readMark
	watermark time.Time
	failures  int
	degraded  bool

	updates chan struct{}
}

func New(store Fetcher, feed message.Feed, scope message.Scope, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInboxInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	return &Engine{
		id:        uuid.NewString(),
		scope:     scope,
		store:     store,
		feed:      feed,
		interval:  opts.Interval,
		threshold: opts.FailureThreshold,
		ids:       make(map[int]bool),
		updates:   make(chan struct{}, 1),
	}
}

// Updates signals (coalesced) whenever local state changed.
func (e *Engine) Updates() <-chan struct{} { return e.updates }

// Run blocks until ctx is cancelled, driving the initial load, the push
// subscription and the poll ticker.
func (e *Engine) Run(ctx context.Context) {
	if err := e.Reload(ctx); err != nil && ctx.Err() == nil {
		log.Printf("engine %s: initial load failed, poll will retry: %v", e.id, err)
		e.recordFailure()
	}

	var events <-chan message.Event
	if e.feed != nil {
		events = e.feed.Subscribe(ctx)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				// Subscription died; the poll keeps the surface correct.
				events = nil
				continue
			}
			e.apply(ev)

		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

// Merge inserts m into local state unless its id is already present.
// Dedup is strictly by id: timestamps can collide on rapid sends. Insertion
// is positional (created_at, id), never a blind append, so the rendered order
// is identical no matter which channel delivered the message first. Reports
// whether state changed.
func (e *Engine) Merge(m message.Message) bool {
	e.mu.Lock()
	changed := e.mergeLocked(m)
	e.mu.Unlock()
	if changed {
		e.notify()
	}
	return changed
}

// readMark is an optimistic read flip the surface has already committed to.
// Marks outlive the messages they were applied to: a reload that rebuilds
// state from a snapshot taken before the store update, or a poll delivering a
// pre-update copy, re-applies them, so read state can only ever be
// client-ahead, never client-behind.
type readMark struct {
	self       int
	providerID int // 0 = all groups
}

func (rm readMark) covers(m *message.Message) bool {
	if m.ReceiverID != rm.self {
		return false
	}
	return rm.providerID == 0 || rm.providerID == m.ProviderID
}

func (e *Engine) mergeLocked(m message.Message) bool {
	if e.ids[m.ID] {
		return false
	}
	e.ids[m.ID] = true

	for _, rm := range e.marks {
		if !m.IsRead && rm.covers(&m) {
			m.IsRead = true
		}
	}

	i := sort.Search(len(e.msgs), func(i int) bool {
		return m.Before(&e.msgs[i])
	})
	e.msgs = append(e.msgs, message.Message{})
	copy(e.msgs[i+1:], e.msgs[i:])
	e.msgs[i] = m

	if m.CreatedAt.After(e.watermark) {
		e.watermark = m.CreatedAt
	}
	return true
}

// MarkLocalRead optimistically flips is_read on messages addressed to self,
// optionally narrowed to one provider group (0 = all). Returns how many
// flipped. Flips are never rolled back; the mark is remembered and re-applied
// to anything merged later, including messages a surface mounted too early to
// have loaded yet.
func (e *Engine) MarkLocalRead(self, providerID int) int {
	e.mu.Lock()
	mark := readMark{self: self, providerID: providerID}
	known := false
	for _, rm := range e.marks {
		if rm == mark {
			known = true
			break
		}
	}
	if !known {
		e.marks = append(e.marks, mark)
	}
	n := 0
	for i := range e.msgs {
		m := &e.msgs[i]
		if m.ReceiverID != self || m.IsRead {
			continue
		}
		if providerID != 0 && m.ProviderID != providerID {
			continue
		}
		m.IsRead = true
		n++
	}
	e.mu.Unlock()
	if n > 0 {
		e.notify()
	}
	return n
}

// Snapshot copies the current message list, ascending by created_at then id.
func (e *Engine) Snapshot() []message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]message.Message, len(e.msgs))
	copy(out, e.msgs)
	return out
}

// Degraded reports whether the consecutive-failure threshold was crossed.
// Cleared by the next successful sync.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// Reload refetches the whole scope and rebuilds local state from scratch.
// This is the reconciling reload: it supersedes optimistic inserts. Read
// marks are the one thing kept — is_read is monotonic, so a snapshot taken
// before the store update must not resurrect unread state.
func (e *Engine) Reload(ctx context.Context) error {
	msgs, err := e.store.FetchConversation(ctx, e.scope)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		// Surface unmounted while the fetch was in flight; drop the result.
		return ctx.Err()
	}

	e.mu.Lock()
	e.msgs = e.msgs[:0]
	e.ids = make(map[int]bool)
	e.watermark = time.Time{}
	for i := range msgs {
		e.mergeLocked(msgs[i])
	}
	e.failures = 0
	e.degraded = false
	e.mu.Unlock()

	e.notify()
	return nil
}

func (e *Engine) poll(ctx context.Context) {
	e.mu.Lock()
	watermark := e.watermark
	e.mu.Unlock()

	msgs, err := e.store.FetchSince(ctx, e.scope, watermark)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Printf("engine %s: poll failed: %v", e.id, err)
		e.recordFailure()
		return
	}

	e.mu.Lock()
	changed := false
	for i := range msgs {
		if e.scope.Match(&msgs[i]) && e.mergeLocked(msgs[i]) {
			changed = true
		}
	}
	e.failures = 0
	recovered := e.degraded
	e.degraded = false
	e.mu.Unlock()

	if changed || recovered {
		e.notify()
	}
}

func (e *Engine) apply(ev message.Event) {
	switch ev.Kind {
	case message.EventInsert:
		if e.scope.Match(&ev.Message) {
			e.Merge(ev.Message)
		}
	case message.EventRead:
		// Another surface (or device) marked the group read. The flip is the
		// same monotonic mutation we would make locally, so applying it here
		// keeps unread counts agreeing without a refetch.
		if ev.Message.ReceiverID == e.scope.Self() {
			e.MarkLocalRead(ev.Message.ReceiverID, ev.Message.ProviderID)
		}
	}
}

func (e *Engine) recordFailure() {
	e.mu.Lock()
	e.failures++
	crossed := e.failures >= e.threshold && !e.degraded
	if crossed {
		e.degraded = true
	}
	e.mu.Unlock()
	if crossed {
		e.notify()
	}
}

func (e *Engine) notify() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}
