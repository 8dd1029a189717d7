package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pandastore/supportbot/internal/providers"
	"github.com/pandastore/supportbot/internal/store"
)

type fakeProvider struct {
	reply   string
	err     error
	lastReq providers.ChatRequest
}

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ChatResponse{Content: f.reply, FinishReason: "stop"}, nil
}

func (f *fakeProvider) DefaultModel() string { return "test-model" }
func (f *fakeProvider) Name() string         { return "fake" }

func newResponder(t *testing.T, p providers.Provider) (*Responder, *store.HistoryStore) {
	t.Helper()
	dir := t.TempDir()
	history, err := store.NewHistoryStore(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	pricing, err := store.NewPricingStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	return NewResponder(p, history, pricing, nil), history
}

func TestReplyRecordsBothTurns(t *testing.T) {
	fp := &fakeProvider{reply: "You can pay with crypto via the payment menu."}
	r, history := newResponder(t, fp)

	got, err := r.Reply(context.Background(), "u1", "how do I pay?")
	if err != nil {
		t.Fatal(err)
	}
	if got != fp.reply {
		t.Errorf("reply = %q", got)
	}

	h := history.Get("u1")
	if len(h) != 2 || h[0].Role != "user" || h[1].Role != "assistant" {
		t.Fatalf("history = %+v", h)
	}
}

func TestReplySendsSystemPromptAndHistory(t *testing.T) {
	fp := &fakeProvider{reply: "sure"}
	r, _ := newResponder(t, fp)

	r.Reply(context.Background(), "u1", "first")
	r.Reply(context.Background(), "u1", "second")

	msgs := fp.lastReq.Messages
	if len(msgs) == 0 || msgs[0].Role != "system" {
		t.Fatalf("first message should be the system prompt, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "support assistant") {
		t.Errorf("system prompt = %q", msgs[0].Content)
	}
	// system + (user, assistant, user) turns
	if len(msgs) != 4 {
		t.Errorf("message count = %d, want 4", len(msgs))
	}
}

func TestReplyFallsBackOnProviderError(t *testing.T) {
	fp := &fakeProvider{err: errors.New("connection refused")}
	r, _ := newResponder(t, fp)

	got, err := r.Reply(context.Background(), "u1", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if got != FallbackMessage {
		t.Errorf("reply = %q, want fallback", got)
	}
}

func TestReplyFallsBackOnEmptyCompletion(t *testing.T) {
	fp := &fakeProvider{reply: "   "}
	r, _ := newResponder(t, fp)

	got, err := r.Reply(context.Background(), "u1", "hello")
	if err == nil {
		t.Fatal("expected error for empty completion")
	}
	if got != FallbackMessage {
		t.Errorf("reply = %q, want fallback", got)
	}
}

func TestAnalyzeIntent(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"how much is the premium plan?", Intent{Buying: true}},
		{"can I get a free trial?", Intent{Buying: false, FreeContent: true}},
		{"is there a giveaway running?", Intent{FreeContent: true}},
		{"where can I buy a free trial", Intent{Buying: true, FreeContent: true}},
		{"my app crashes on startup", Intent{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := AnalyzeIntent(tt.text)
			if got.Buying != tt.want.Buying || got.FreeContent != tt.want.FreeContent {
				t.Errorf("AnalyzeIntent(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}
