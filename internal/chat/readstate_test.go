package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace-chat/internal/live"
	"marketplace-chat/internal/message"
)

type fakeMarker struct {
	err   error
	calls int
}

func (f *fakeMarker) MarkRead(ctx context.Context, scope message.Scope) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

type fakeSurface struct {
	mu      sync.Mutex
	flips   []int
	reloads int
}

func (f *fakeSurface) MarkLocalRead(self, providerID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flips = append(f.flips, providerID)
	return 1
}

func (f *fakeSurface) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func (f *fakeSurface) reloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads
}

func TestOpen_OptimisticFlipThenPersist(t *testing.T) {
	marker := &fakeMarker{}
	surface := &fakeSurface{}
	tr := NewTracker(marker)

	scope := message.CustomerConversationScope{SelfID: 1, ProviderID: 7}
	tr.Open(context.Background(), surface, scope, 7)

	if len(surface.flips) != 1 || surface.flips[0] != 7 {
		t.Errorf("local flips = %v, want [7]", surface.flips)
	}
	if marker.calls != 1 {
		t.Errorf("MarkRead called %d times, want 1", marker.calls)
	}

	time.Sleep(20 * time.Millisecond)
	if surface.reloadCount() != 0 {
		t.Error("reload scheduled although the persist succeeded")
	}
}

// A failed persist keeps the optimistic flip (client-ahead read state is
// safe) but schedules a reconciling reload.
func TestOpen_PersistFailureSchedulesReconcile(t *testing.T) {
	marker := &fakeMarker{err: errors.New("store down")}
	surface := &fakeSurface{}
	tr := NewTracker(marker)

	scope := message.CustomerConversationScope{SelfID: 1, ProviderID: 7}
	tr.Open(context.Background(), surface, scope, 7)

	if len(surface.flips) != 1 {
		t.Errorf("optimistic flip missing: %v", surface.flips)
	}

	deadline := time.Now().Add(time.Second)
	for surface.reloadCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if surface.reloadCount() == 0 {
		t.Error("no reconciling reload scheduled after persist failure")
	}
}

type staleFetcher struct {
	msgs []message.Message
}

func (f *staleFetcher) FetchConversation(ctx context.Context, scope message.Scope) ([]message.Message, error) {
	out := make([]message.Message, len(f.msgs))
	copy(out, f.msgs)
	return out, nil
}

func (f *staleFetcher) FetchSince(ctx context.Context, scope message.Scope, watermark time.Time) ([]message.Message, error) {
	return nil, nil
}

// The conversation surface opens the tracker right after starting the engine,
// while the initial load is still in flight. Replaying that order against a
// fetch that returns the pre-mark-read snapshot must still converge: the
// optimistic flip may not be lost to the late-arriving load.
func TestOpen_BeforeInitialLoadStillConverges(t *testing.T) {
	unread := message.Message{
		ID: 1, SenderID: 1, ReceiverID: 2, ProviderID: 7,
		Content:   "hello",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fetcher := &staleFetcher{msgs: []message.Message{unread}}
	scope := message.ProviderConversationScope{SelfID: 2, ProviderID: 7, CounterpartID: 1}
	eng := live.New(fetcher, nil, scope, live.Options{})

	tr := NewTracker(&fakeMarker{})
	tr.Open(context.Background(), eng, scope, 7)

	// Initial load lands after the mark, carrying is_read=false.
	if err := eng.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	snap := eng.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d messages, want 1", len(snap))
	}
	if !snap[0].IsRead {
		t.Error("store says read, surface renders unread")
	}
}

func TestOpen_NoSurfaceStillPersists(t *testing.T) {
	marker := &fakeMarker{}
	tr := NewTracker(marker)

	scope := message.ProviderConversationScope{SelfID: 2, ProviderID: 7, CounterpartID: 1}
	tr.Open(context.Background(), nil, scope, 7)

	if marker.calls != 1 {
		t.Errorf("MarkRead called %d times, want 1", marker.calls)
	}
}
