package chat

import (
	"context"
	"log"

	"marketplace-chat/internal/message"
)

type ReadMarker interface {
	MarkRead(ctx context.Context, scope message.Scope) (int64, error)
}

// Surface is the slice of a live engine the tracker touches.
type Surface interface {
	MarkLocalRead(self, providerID int) int
	Reload(ctx context.Context) error
}

// Tracker flips read state when a conversation becomes visible: local flags
// first so the interface reacts immediately, the store after. The optimistic
// flip is never rolled back — read state being client-ahead is harmless — but
// a failed persist schedules a reconciling reload.
type Tracker struct {
	store ReadMarker
}

func NewTracker(store ReadMarker) *Tracker {
	return &Tracker{store: store}
}

// Open marks the conversation read. Idempotent; a surface may call it on
// every mount.
func (t *Tracker) Open(ctx context.Context, surface Surface, scope message.Scope, providerID int) {
	if surface != nil {
		surface.MarkLocalRead(scope.Self(), providerID)
	}

	if _, err := t.store.MarkRead(ctx, scope); err != nil {
		log.Printf("mark read failed, scheduling reconcile: %v", err)
		if surface != nil {
			go func() {
				if rerr := surface.Reload(ctx); rerr != nil {
					log.Printf("reconciling reload failed: %v", rerr)
				}
			}()
		}
	}
}
