// Package channels provides the transport abstraction connecting chat
// platforms to the dispatcher via the message bus. One transport at a
// time also serves as the staff workspace gateway.
package channels

import (
	"context"

	"github.com/pandastore/supportbot/internal/gateway"
)

// Channel is the lifecycle contract for a chat transport.
type Channel interface {
	gateway.Gateway

	// Name returns the channel identifier (e.g. "telegram", "discord").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error
}

// WelcomeText greets a customer opening the support chat. Shared by the
// dispatcher's /start handling and the transports' native greetings.
const WelcomeText = `Welcome to PandaStore support!

Ask me anything about the app, plans or payments. A human teammate can take over this chat at any time.`

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
