// Package bus decouples the chat transports from the dispatcher.
// Transports publish inbound events; the dispatcher consumes them from
// a single buffered channel.
package bus

import "context"

// EventKind says where an inbound event came from and how to route it.
type EventKind string

const (
	// KindUserMessage is a text message from a customer's private chat.
	KindUserMessage EventKind = "user_message"

	// KindStaffMessage is a message a staffer posted inside a customer
	// thread in the staff workspace.
	KindStaffMessage EventKind = "staff_message"

	// KindCommand is a slash command from a customer ("/start", ...).
	KindCommand EventKind = "command"

	// KindCallback is an inline-button press.
	KindCallback EventKind = "callback"
)

// InboundEvent is one unit of work for the dispatcher.
type InboundEvent struct {
	Channel     string    // "telegram", "discord"
	Kind        EventKind
	UserID      string    // customer ID; resolved from the thread for staff events
	DisplayName string
	ThreadID    string    // set on staff events
	Content     string
	Metadata    map[string]string
}

// Bus is a buffered inbound event queue.
type Bus struct {
	inbound chan InboundEvent
}

// New creates a bus with the given buffer size.
func New(buffer int) *Bus {
	return &Bus{inbound: make(chan InboundEvent, buffer)}
}

// Publish enqueues an event. Blocks when the buffer is full, which
// backpressures the transport's polling loop.
func (b *Bus) Publish(ev InboundEvent) {
	b.inbound <- ev
}

// Consume blocks until an event arrives or ctx is cancelled. ok is
// false on cancellation.
func (b *Bus) Consume(ctx context.Context) (InboundEvent, bool) {
	select {
	case <-ctx.Done():
		return InboundEvent{}, false
	case ev := <-b.inbound:
		return ev, true
	}
}
