package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"marketplace-chat/internal/message"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/notify"
	"marketplace-chat/internal/provider"
)

type fakeInserter struct {
	err  error
	last *message.Message
}

func (f *fakeInserter) Insert(ctx context.Context, caller int, m *message.Message) (*message.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	stored := *m
	stored.ID = 42
	stored.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.last = &stored
	return &stored, nil
}

type fakeDirectory struct {
	owner int
	name  string
	err   error
}

func (f *fakeDirectory) Resolve(ctx context.Context, providerID int) (*provider.Provider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Provider{ID: providerID, OwnerID: f.owner, DisplayName: f.name}, nil
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
	err error
}

func (f *fakeNotifier) Notify(ctx context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, n)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

var (
	customer = middleware.Identity{ID: 1, Role: middleware.RoleCustomer, Name: "Ana"}
	prov     = middleware.Identity{ID: 2, Role: middleware.RoleProvider, Name: "Glow Spa"}
)

func TestSend_ValidationRejectedBeforeAnyIO(t *testing.T) {
	store := &fakeInserter{}
	p := NewPipeline(store, &fakeDirectory{owner: 2}, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := p.Send(context.Background(), customer, 7, 0, text)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("Send(%q) = %v, want ErrValidation", text, err)
		}
	}
	_, err := p.Send(context.Background(), customer, 0, 0, "hi")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("missing provider: %v, want ErrValidation", err)
	}

	if store.last != nil {
		t.Error("insert reached the store on a validation failure")
	}
}

func TestSend_CustomerRouteResolvesProviderOwner(t *testing.T) {
	store := &fakeInserter{}
	p := NewPipeline(store, &fakeDirectory{owner: 2, name: "Glow Spa"}, nil)

	stored, err := p.Send(context.Background(), customer, 7, 0, "  Is 3pm available?  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if stored.ReceiverID != 2 {
		t.Errorf("ReceiverID = %d, want provider owner 2", stored.ReceiverID)
	}
	if stored.SenderID != 1 || stored.ProviderID != 7 {
		t.Errorf("routing fields = sender %d provider %d", stored.SenderID, stored.ProviderID)
	}
	if stored.Content != "Is 3pm available?" {
		t.Errorf("Content = %q, want trimmed text", stored.Content)
	}
	if stored.IsRead {
		t.Error("new message must start unread")
	}
}

func TestSend_RouteResolutionFailureIsDistinct(t *testing.T) {
	p := NewPipeline(&fakeInserter{}, &fakeDirectory{err: provider.ErrNotFound}, nil)

	_, err := p.Send(context.Background(), customer, 7, 0, "hello")
	if !errors.Is(err, ErrRouteResolution) {
		t.Fatalf("Send = %v, want ErrRouteResolution", err)
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrValidation) {
		t.Error("route failure must not be confusable with other send failures")
	}
}

func TestSend_ProviderRouteUsesCounterpart(t *testing.T) {
	// The directory must not be consulted for provider sends.
	p := NewPipeline(&fakeInserter{}, &fakeDirectory{err: provider.ErrNotFound}, nil)

	stored, err := p.Send(context.Background(), prov, 7, 1, "3pm works")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if stored.ReceiverID != 1 {
		t.Errorf("ReceiverID = %d, want counterpart 1", stored.ReceiverID)
	}

	_, err = p.Send(context.Background(), prov, 7, 0, "to whom?")
	if !errors.Is(err, ErrRouteResolution) {
		t.Errorf("missing counterpart: %v, want ErrRouteResolution", err)
	}
}

func TestSend_PersistenceFailureSkipsNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	p := NewPipeline(&fakeInserter{err: errors.New("store down")}, &fakeDirectory{owner: 2}, notifier)

	_, err := p.Send(context.Background(), customer, 7, 0, "hello")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Send = %v, want ErrPersistence", err)
	}

	time.Sleep(20 * time.Millisecond)
	if notifier.count() != 0 {
		t.Error("notification fired for a message that was never persisted")
	}
}

func TestSend_NotificationPayload(t *testing.T) {
	notifier := &fakeNotifier{}
	p := NewPipeline(&fakeInserter{}, &fakeDirectory{owner: 2}, notifier)

	long := strings.Repeat("a", notify.PreviewLen+20)
	if _, err := p.Send(context.Background(), customer, 7, 0, long); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for notifier.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if notifier.count() != 1 {
		t.Fatal("notification never fired")
	}

	notifier.mu.Lock()
	n := notifier.got[0]
	notifier.mu.Unlock()

	if n.UserID != 2 {
		t.Errorf("UserID = %d, want receiver 2", n.UserID)
	}
	if n.Type != "message" || n.Link != "/messages" {
		t.Errorf("Type/Link = %q/%q", n.Type, n.Link)
	}
	if !strings.HasPrefix(n.Message, "Ana: ") {
		t.Errorf("Message = %q, want sender-name prefix", n.Message)
	}
	if !strings.HasSuffix(n.Message, "…") {
		t.Errorf("Message = %q, want truncated preview", n.Message)
	}
}

func TestSend_NotificationFailureIsNonFatal(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("queue down")}
	p := NewPipeline(&fakeInserter{}, &fakeDirectory{owner: 2}, notifier)

	stored, err := p.Send(context.Background(), customer, 7, 0, "hello")
	if err != nil {
		t.Fatalf("Send = %v, want nil: notification failures never fail the send", err)
	}
	if stored == nil || stored.ID == 0 {
		t.Error("persisted message not returned")
	}
}
