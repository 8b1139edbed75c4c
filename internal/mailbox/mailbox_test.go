package mailbox

import (
	"context"
	"testing"

	"github.com/Iron-Ham/mqfetch/internal/event"
	"github.com/Iron-Ham/mqfetch/internal/logging"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

func TestMailbox_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	bus := event.NewBus()

	var sent []event.MailboxSentEvent
	bus.Subscribe(event.TypeMailboxSent, func(e event.Event) {
		sent = append(sent, e.(event.MailboxSentEvent))
	})
	var drained []event.MailboxDrainedEvent
	bus.Subscribe(event.TypeMailboxDrained, func(e event.Event) {
		drained = append(drained, e.(event.MailboxDrainedEvent))
	})

	mb := New(NewMemoryTransport(), WithBus(bus), WithLogger(logging.NopLogger()))

	if err := mb.Send(ctx, protocol.NewIdentity(2, "sess-9")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := mb.Send(ctx, protocol.NewStopClient(2)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(sent) != 2 {
		t.Fatalf("expected 2 sent events, got %d", len(sent))
	}
	if sent[0].Channel != 2 || sent[0].Kind != "session_identity" {
		t.Errorf("sent[0] = %+v", sent[0])
	}

	if _, err := mb.Drain(ctx, 3); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(drained) != 0 {
		t.Error("empty drain should not publish an event")
	}

	n, err := mb.Drain(ctx, 2)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if n != 2 || len(drained) != 1 || drained[0].Discarded != 2 {
		t.Errorf("Drain() = %d, events = %+v", n, drained)
	}
}

func TestMailbox_Stats(t *testing.T) {
	ctx := context.Background()
	mb := New(NewMemoryTransport())

	for range 3 {
		if err := mb.Send(ctx, protocol.NewChunk(1, []byte("a"))); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if _, err := mb.Receive(ctx, 1); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if _, err := mb.Drain(ctx, 1); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	got := mb.Stats()
	want := Stats{Sent: 3, Received: 1, Drained: 2}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestMailbox_IsTransport(t *testing.T) {
	mt := NewMemoryTransport()
	var tr Transport = New(mt)

	ch, err := tr.Allocate(context.Background())
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if ch != protocol.FirstSessionChannel {
		t.Errorf("Allocate() = %v, want %v", ch, protocol.FirstSessionChannel)
	}
	if tr.(*Mailbox).Transport() != mt {
		t.Error("Transport() should return the wrapped backend")
	}
}
