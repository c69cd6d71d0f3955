package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"marketplace-chat/internal/message"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/notify"
	"marketplace-chat/internal/provider"
)

// Consumer-side interfaces so the pipeline can be exercised without a
// database or a queue behind it.

type Inserter interface {
	Insert(ctx context.Context, caller int, m *message.Message) (*message.Message, error)
}

type Directory interface {
	Resolve(ctx context.Context, providerID int) (*provider.Provider, error)
}

// Pipeline validates, routes and persists an outbound message, then fires
// the notification. Optimistic local merge is the surface's job (it owns the
// engine); the pipeline only returns the stored record.
type Pipeline struct {
	store    Inserter
	dir      Directory
	notifier notify.Notifier
}

func NewPipeline(store Inserter, dir Directory, notifier notify.Notifier) *Pipeline {
	return &Pipeline{store: store, dir: dir, notifier: notifier}
}

// Send runs the full pipeline. providerID is the conversation group key;
// counterpartID is required only when the sender is a provider (a customer's
// receiver is resolved through the directory).
func (p *Pipeline) Send(ctx context.Context, sender middleware.Identity, providerID, counterpartID int, text string) (*message.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", ErrValidation)
	}
	if providerID == 0 {
		return nil, fmt.Errorf("%w: missing conversation", ErrValidation)
	}

	receiver, err := p.resolveReceiver(ctx, sender, providerID, counterpartID)
	if err != nil {
		return nil, err
	}

	m := &message.Message{
		SenderID:   sender.ID,
		ReceiverID: receiver,
		ProviderID: providerID,
		Content:    text,
	}
	stored, err := p.store.Insert(ctx, sender.ID, m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Fire and forget: the message is already persisted, a notification
	// failure must not block or roll it back.
	go p.notifyReceiver(*stored, sender.Name)

	return stored, nil
}

func (p *Pipeline) resolveReceiver(ctx context.Context, sender middleware.Identity, providerID, counterpartID int) (int, error) {
	switch sender.Role {
	case middleware.RoleCustomer:
		prov, err := p.dir.Resolve(ctx, providerID)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRouteResolution, err)
		}
		return prov.OwnerID, nil

	case middleware.RoleProvider:
		if counterpartID == 0 {
			return 0, fmt.Errorf("%w: no counterpart for provider send", ErrRouteResolution)
		}
		return counterpartID, nil

	default:
		return 0, fmt.Errorf("%w: unknown sender role %q", ErrRouteResolution, sender.Role)
	}
}

func (p *Pipeline) notifyReceiver(m message.Message, senderName string) {
	if p.notifier == nil {
		return
	}
	if senderName == "" {
		senderName = "New message"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n := notify.Notification{
		UserID:  m.ReceiverID,
		Title:   "New message",
		Message: senderName + ": " + notify.Preview(m.Content, notify.PreviewLen),
		Type:    "message",
		Link:    "/messages",
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		log.Printf("notification for message %d failed: %v", m.ID, err)
	}
}
