package discord

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessageShortContentIsUntouched(t *testing.T) {
	got := splitMessage("hello there")
	if len(got) != 1 || got[0] != "hello there" {
		t.Fatalf("chunks = %q, want the content unchanged", got)
	}
}

func TestSplitMessagePrefersNewlineBoundary(t *testing.T) {
	first := strings.Repeat("a", 1500)
	second := strings.Repeat("b", 1500)
	got := splitMessage(first + "\n" + second)

	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if got[0] != first {
		t.Errorf("first chunk = %d runes, want the line before the newline", utf8.RuneCountInString(got[0]))
	}
	if got[1] != second {
		t.Errorf("second chunk = %q..., want the line after the newline", got[1][:10])
	}
}

// Multi-byte content around the limit must split on a rune boundary;
// the limit counts characters, not bytes.
func TestSplitMessageCountsRunesNotBytes(t *testing.T) {
	content := strings.Repeat("ありがとう", 500) // 2500 runes, 7500 bytes
	got := splitMessage(content)

	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	for i, chunk := range got {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8, split mid rune", i)
		}
		if n := utf8.RuneCountInString(chunk); n > discordMaxMessageLen {
			t.Errorf("chunk %d has %d runes, limit is %d", i, n, discordMaxMessageLen)
		}
	}
	if strings.Join(got, "") != content {
		t.Error("chunks do not reassemble into the original content")
	}
}

func TestSplitMessageHardCutWithoutNewlines(t *testing.T) {
	content := strings.Repeat("x", 4500)
	got := splitMessage(content)

	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	if len(got[0]) != discordMaxMessageLen || len(got[1]) != discordMaxMessageLen || len(got[2]) != 500 {
		t.Fatalf("chunk sizes = %d/%d/%d, want 2000/2000/500", len(got[0]), len(got[1]), len(got[2]))
	}
}

// A newline early in the chunk is ignored; cutting there would produce
// pathologically small messages.
func TestSplitMessageIgnoresEarlyNewline(t *testing.T) {
	content := "short line\n" + strings.Repeat("y", 3000)
	got := splitMessage(content)

	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if utf8.RuneCountInString(got[0]) != discordMaxMessageLen {
		t.Fatalf("first chunk = %d runes, want a hard cut at %d", utf8.RuneCountInString(got[0]), discordMaxMessageLen)
	}
}
