package message

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	base := Message{SenderID: 1, ReceiverID: 2, ProviderID: 7, Content: "hi"}

	tests := []struct {
		name   string
		mutate func(*Message)
		caller int
		wantOK bool
	}{
		{name: "valid as sender", mutate: func(m *Message) {}, caller: 1, wantOK: true},
		{name: "valid as receiver", mutate: func(m *Message) {}, caller: 2, wantOK: true},
		{name: "caller not a participant", mutate: func(m *Message) {}, caller: 99},
		{name: "empty content", mutate: func(m *Message) { m.Content = "" }, caller: 1},
		{name: "missing sender", mutate: func(m *Message) { m.SenderID = 0 }, caller: 1},
		{name: "missing provider", mutate: func(m *Message) { m.ProviderID = 0 }, caller: 1},
		{
			name:   "content too long",
			mutate: func(m *Message) { m.Content = strings.Repeat("x", MaxContentLen+1) },
			caller: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base
			tt.mutate(&m)
			err := m.validate(tt.caller)
			if tt.wantOK && err != nil {
				t.Errorf("validate() = %v, want nil", err)
			}
			if !tt.wantOK {
				if err == nil {
					t.Fatal("validate() = nil, want error")
				}
				if !errors.Is(err, ErrRejected) {
					t.Errorf("validate() = %v, want ErrRejected", err)
				}
			}
		})
	}
}

func TestBefore_TiebreakByID(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := Message{ID: 1, CreatedAt: ts}
	b := Message{ID: 2, CreatedAt: ts}

	if !a.Before(&b) {
		t.Error("equal timestamps: lower id must sort first")
	}
	if b.Before(&a) {
		t.Error("equal timestamps: higher id must not sort first")
	}

	later := Message{ID: 0, CreatedAt: ts.Add(time.Second)}
	if !a.Before(&later) {
		t.Error("earlier timestamp must sort first regardless of id")
	}
}

func TestCounterpartOf(t *testing.T) {
	m := Message{SenderID: 1, ReceiverID: 2}
	if got := m.CounterpartOf(1); got != 2 {
		t.Errorf("CounterpartOf(sender) = %d, want 2", got)
	}
	if got := m.CounterpartOf(2); got != 1 {
		t.Errorf("CounterpartOf(receiver) = %d, want 1", got)
	}
}
