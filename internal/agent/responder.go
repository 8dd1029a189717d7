// Package agent generates the automated support replies: it assembles
// the support persona prompt from pricing and crawled site knowledge,
// keeps a bounded conversation window, and degrades to a canned
// fallback when the completion backend fails.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pandastore/supportbot/internal/providers"
	"github.com/pandastore/supportbot/internal/store"
)

// FallbackMessage is sent when the completion backend is unavailable.
const FallbackMessage = "Sorry, I'm having trouble answering right now. A member of our team will get back to you shortly."

// Knowledge supplies crawled site content for prompt grounding.
type Knowledge interface {
	// Context returns the grounding text, possibly empty.
	Context() string
}

// Responder produces automated replies for customer messages.
type Responder struct {
	provider    providers.Provider
	history     *store.HistoryStore
	pricing     *store.PricingStore
	knowledge   Knowledge
	maxTokens   int
	temperature float64
}

// NewResponder wires the completion backend to its prompt sources.
// knowledge may be nil.
func NewResponder(p providers.Provider, history *store.HistoryStore, pricing *store.PricingStore, knowledge Knowledge) *Responder {
	return &Responder{
		provider:    p,
		history:     history,
		pricing:     pricing,
		knowledge:   knowledge,
		maxTokens:   600,
		temperature: 0.7,
	}
}

// RecordUser appends a customer message to the history without
// generating a reply. Used when the reply is deferred: the turn must
// not be lost even though no completion runs yet.
func (r *Responder) RecordUser(userID, text string) {
	if err := r.history.Append(userID, "user", text); err != nil {
		slog.Warn("agent: history append failed", "user_id", userID, "error", err)
	}
}

// Reply records the user's message and generates an answer. On backend
// failure it returns FallbackMessage along with the error; the returned
// string is always sendable.
func (r *Responder) Reply(ctx context.Context, userID, text string) (string, error) {
	r.RecordUser(userID, text)
	return r.Respond(ctx, userID)
}

// Respond generates an answer from the recorded history, covering
// deferred replies where the user turns were recorded earlier.
func (r *Responder) Respond(ctx context.Context, userID string) (string, error) {
	msgs := []providers.Message{{Role: "system", Content: r.systemPrompt()}}
	for _, m := range r.history.Get(userID) {
		msgs = append(msgs, providers.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := r.provider.Chat(ctx, providers.ChatRequest{
		Messages:    msgs,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		return FallbackMessage, fmt.Errorf("completion for user %s: %w", userID, err)
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return FallbackMessage, fmt.Errorf("completion for user %s: empty reply", userID)
	}

	if err := r.history.Append(userID, "assistant", reply); err != nil {
		slog.Warn("agent: history append failed", "user_id", userID, "error", err)
	}
	return reply, nil
}

func (r *Responder) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are the customer support assistant for the PandaStore app. ")
	b.WriteString("Answer briefly and politely. If the customer asks for something ")
	b.WriteString("you cannot do (refunds, account recovery, custom deals), tell them ")
	b.WriteString("a staff member will follow up in this chat. Never invent prices or features.\n")

	if plans := r.pricing.Plans(); len(plans) > 0 {
		b.WriteString("\nCurrent plans:\n")
		for _, p := range plans {
			fmt.Fprintf(&b, "- %s: $%.2f", p.Name, p.PriceUSD)
			if p.Description != "" {
				b.WriteString(" (" + p.Description + ")")
			}
			b.WriteString("\n")
		}
	}

	if r.knowledge != nil {
		if kc := strings.TrimSpace(r.knowledge.Context()); kc != "" {
			b.WriteString("\nSite reference:\n")
			b.WriteString(kc)
			b.WriteString("\n")
		}
	}
	return b.String()
}
