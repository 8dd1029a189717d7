package store

import (
	"fmt"
	"testing"
	"time"
)

func TestHistoryCapDropsOldestTurns(t *testing.T) {
	s, err := NewHistoryStore(t.TempDir(), 4)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 6; i++ {
		if err := s.Append("u1", "user", fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	h := s.Get("u1")
	if len(h) != 4 {
		t.Fatalf("history length = %d, want 4", len(h))
	}
	if h[0].Content != "msg-2" || h[3].Content != "msg-5" {
		t.Errorf("unexpected window: first=%q last=%q", h[0].Content, h[3].Content)
	}
}

func TestHistorySurvivesReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewHistoryStore(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	s.Append("u1", "user", "hello")
	s.Append("u1", "assistant", "hi there")

	s2, err := NewHistoryStore(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	h := s2.Get("u1")
	if len(h) != 2 || h[1].Role != "assistant" {
		t.Fatalf("reloaded history = %+v", h)
	}
}

func TestHistoryClear(t *testing.T) {
	s, err := NewHistoryStore(t.TempDir(), 10)
	if err != nil {
		t.Fatal(err)
	}
	s.Append("u1", "user", "hello")
	if err := s.Clear("u1"); err != nil {
		t.Fatal(err)
	}
	if got := s.Get("u1"); len(got) != 0 {
		t.Errorf("history after clear = %+v", got)
	}
}

func TestActiveSince(t *testing.T) {
	s, err := NewHistoryStore(t.TempDir(), 10)
	if err != nil {
		t.Fatal(err)
	}
	s.Append("recent", "user", "hello")

	cutoff := time.Now().Add(-time.Hour)
	active := s.ActiveSince(cutoff)
	if len(active) != 1 || active[0] != "recent" {
		t.Errorf("ActiveSince = %v", active)
	}
	if got := s.ActiveSince(time.Now().Add(time.Hour)); len(got) != 0 {
		t.Errorf("future cutoff returned %v", got)
	}
}
