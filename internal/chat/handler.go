package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"marketplace-chat/internal/conversation"
	"marketplace-chat/internal/live"
	"marketplace-chat/internal/message"
	"marketplace-chat/internal/middleware"
)

// Handler exposes the messaging subsystem over REST plus the two live
// websocket surfaces (see socket.go).
type Handler struct {
	store    *message.Store
	pipeline *Pipeline
	tracker  *Tracker
	feed     message.Feed

	inboxInterval time.Duration
	convInterval  time.Duration
}

func NewHandler(store *message.Store, pipeline *Pipeline, tracker *Tracker, feed message.Feed) *Handler {
	return &Handler{
		store:         store,
		pipeline:      pipeline,
		tracker:       tracker,
		feed:          feed,
		inboxInterval: live.DefaultInboxInterval,
		convInterval:  live.DefaultConversationInterval,
	}
}

type sendRequest struct {
	ProviderID    int    `json:"provider_id"`
	CounterpartID int    `json:"counterpart_id,omitempty"`
	Content       string `json:"content"`
}

// SendMessage handles POST /api/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stored, err := h.pipeline.Send(r.Context(), id, req.ProviderID, req.CounterpartID, req.Content)
	if err != nil {
		// Echo the content back so the client can restore the input.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusFor(err))
		json.NewEncoder(w).Encode(map[string]string{
			"error":   reasonFor(err),
			"content": req.Content,
		})
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(stored)
}

// ListConversations handles GET /api/conversations: the folded summary list
// plus the badge total, both recomputed from the store.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	msgs, err := h.store.FetchConversation(r.Context(), message.InboxScope{SelfID: id.ID})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	unread, err := h.store.UnreadTotal(r.Context(), id.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	list := conversation.Fold(id.ID, msgs)
	json.NewEncoder(w).Encode(map[string]any{
		"conversations": list.Ordered(),
		"unread_total":  unread,
	})
}

// GetHistory handles GET /api/conversations/{providerID}/messages.
// Providers must pass ?counterpart=<customer id>.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
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

	msgs, err := h.store.FetchConversation(r.Context(), scope)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	json.NewEncoder(w).Encode(msgs)
}

// MarkRead handles POST /api/conversations/{providerID}/read and returns the
// recomputed badge total.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
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

	// No live surface on the REST path; a failed persist is retried by the
	// client's next reconciling reload.
	h.tracker.Open(r.Context(), nil, scope, providerIDOf(scope))

	unread, err := h.store.UnreadTotal(r.Context(), id.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"unread_total": unread})
}

// Unread handles GET /api/unread: the global navigation badge.
func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	unread, err := h.store.UnreadTotal(r.Context(), id.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"unread_total": unread})
}

// conversationScope builds the role-dependent scope for the conversation
// named in the URL. Selected once per request/session; everything downstream
// is role-agnostic.
func (h *Handler) conversationScope(id middleware.Identity, r *http.Request) (message.Scope, error) {
	providerID, err := strconv.Atoi(chi.URLParam(r, "providerID"))
	if err != nil || providerID == 0 {
		return nil, errors.New("invalid provider id")
	}

	switch id.Role {
	case middleware.RoleCustomer:
		return message.CustomerConversationScope{SelfID: id.ID, ProviderID: providerID}, nil
	case middleware.RoleProvider:
		counterpart, err := strconv.Atoi(r.URL.Query().Get("counterpart"))
		if err != nil || counterpart == 0 {
			return nil, errors.New("counterpart is required for providers")
		}
		return message.ProviderConversationScope{
			SelfID:        id.ID,
			ProviderID:    providerID,
			CounterpartID: counterpart,
		}, nil
	default:
		return nil, errors.New("unknown role")
	}
}

func providerIDOf(scope message.Scope) int {
	switch sc := scope.(type) {
	case message.CustomerConversationScope:
		return sc.ProviderID
	case message.ProviderConversationScope:
		return sc.ProviderID
	}
	return 0
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRouteResolution):
		return http.StatusNotFound
	case errors.Is(err, ErrPersistence):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return ErrValidation.Error()
	case errors.Is(err, ErrRouteResolution):
		return ErrRouteResolution.Error()
	case errors.Is(err, ErrPersistence):
		return ErrPersistence.Error()
	default:
		return "internal error"
	}
}
