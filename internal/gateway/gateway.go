// Package gateway defines the boundary to the chat transport: sending
// messages to end users, posting into staff threads, and creating the
// per-customer threads inside the staff workspace. Implementations live
// under internal/channels (Telegram forum topics, Discord threads).
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies transport failures. Only KindMissing triggers
// thread-directory invalidation; everything else is surfaced as-is.
type ErrorKind int

const (
	// KindTransient covers network errors, rate limits, and any failure
	// that does not prove the target channel is gone.
	KindTransient ErrorKind = iota

	// KindMissing means the target thread/chat was deleted or never
	// existed. The cached thread mapping must not be reused.
	KindMissing
)

// Error is a typed transport failure.
type Error struct {
	Kind ErrorKind
	Op   string // "send", "create_thread", "delete"
	Err  error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Kind == KindMissing {
		kind = "missing"
	}
	return fmt.Sprintf("gateway %s (%s): %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a typed gateway error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsMissing reports whether err classifies as "channel missing/invalid".
func IsMissing(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindMissing
}

// Gateway is the outbound transport contract consumed by the thread
// directory and the dispatcher. All methods are safe for concurrent use.
type Gateway interface {
	// SendToUser delivers text to an end user's private conversation.
	// Returns the transport message ID.
	SendToUser(ctx context.Context, userID, text string) (string, error)

	// SendToThread posts text into a staff-workspace thread.
	SendToThread(ctx context.Context, threadID, text string) (string, error)

	// CreateThread creates a new thread in the staff workspace and
	// returns its ID. The title is best-effort; transports may truncate.
	CreateThread(ctx context.Context, title string) (string, error)

	// DeleteMessage removes a previously sent message from a thread.
	// Used for cleanup of placeholder messages; failures are advisory.
	DeleteMessage(ctx context.Context, threadID, messageID string) error
}
