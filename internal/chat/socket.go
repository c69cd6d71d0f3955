package chat

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"marketplace-chat/internal/conversation"
	"marketplace-chat/internal/live"
	"marketplace-chat/internal/message"
	"marketplace-chat/internal/middleware"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// session serializes all websocket writes through one pump; readers hand
// payloads to out and never touch the connection directly.
type session struct {
	conn *websocket.Conn
	out  chan any
}

func newSession(conn *websocket.Conn) *session {
	return &session{conn: conn, out: make(chan any, 16)}
}

func (s *session) send(ctx context.Context, payload any) {
	select {
	case s.out <- payload:
	case <-ctx.Done():
	}
}

func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(payload); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inboxPayload struct {
	Type          string                 `json:"type"`
	Conversations []conversation.Summary `json:"conversations"`
	UnreadTotal   int                    `json:"unread_total"`
	Degraded      bool                   `json:"degraded,omitempty"`
}

type messagesPayload struct {
	Type     string            `json:"type"`
	Messages []message.Message `json:"messages"`
	Degraded bool              `json:"degraded,omitempty"`
}

type errorPayload struct {
	Type    string `json:"type"`
	Reason  string `json:"reason"`
	Content string `json:"content"` // echoed so the client restores the input
}

type inbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ServeInbox mounts the conversation-list surface: an engine scoped to every
// message for the caller, pushed as a folded summary list whenever state
// changes. Closing the socket cancels the engine, its timer and its
// subscription.
func (h *Handler) ServeInbox(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	scope := message.InboxScope{SelfID: id.ID}
	eng := live.New(h.store, h.feed, scope, live.Options{Interval: h.inboxInterval})
	go eng.Run(ctx)

	sess := newSession(conn)
	go sess.writePump(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-eng.Updates():
				sess.send(ctx, h.inboxSnapshot(ctx, id.ID, eng))
			}
		}
	}()

	discardReads(conn, cancel)
}

// ServeConversation mounts the open-conversation surface. Mounting marks the
// conversation read; inbound {"type":"send"} frames run the send pipeline
// with the result merged optimistically into the engine.
func (h *Handler) ServeConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	scope, err := h.conversationScope(id, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	providerID := providerIDOf(scope)
	counterpartID := 0
	if sc, ok := scope.(message.ProviderConversationScope); ok {
		counterpartID = sc.CounterpartID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	eng := live.New(h.store, h.feed, scope, live.Options{Interval: h.convInterval})
	go eng.Run(ctx)

	// The surface is visible now; flip read state before the first render.
	h.tracker.Open(ctx, eng, scope, providerID)

	sess := newSession(conn)
	go sess.writePump(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-eng.Updates():
				sess.send(ctx, messagesPayload{
					Type:     "messages",
					Messages: eng.Snapshot(),
					Degraded: eng.Degraded(),
				})
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("conversation socket: %v", err)
			}
			cancel()
			return
		}

		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Type != "send" {
			continue
		}

		stored, err := h.pipeline.Send(ctx, id, providerID, counterpartID, in.Content)
		if err != nil {
			sess.send(ctx, errorPayload{Type: "error", Reason: reasonFor(err), Content: in.Content})
			continue
		}
		// Optimistic append: don't wait for the push or poll to confirm.
		eng.Merge(*stored)
	}
}

func (h *Handler) inboxSnapshot(ctx context.Context, selfID int, eng *live.Engine) inboxPayload {
	list := conversation.Fold(selfID, eng.Snapshot())

	// The badge is always a fresh count from the store, shared with the
	// navigation surface, never a locally maintained delta.
	unread, err := h.store.UnreadTotal(ctx, selfID)
	if err != nil {
		log.Printf("unread total: %v", err)
	}

	return inboxPayload{
		Type:          "conversations",
		Conversations: list.Ordered(),
		UnreadTotal:   unread,
		Degraded:      eng.Degraded(),
	}
}

func discardReads(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
