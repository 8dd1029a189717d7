// Package moderation screens customer messages before they reach the
// responder: flooding, near-duplicate spam, and word repetition. It
// also owns the progressive ban ladder.
package moderation

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Action is what the dispatcher should do with a message.
type Action int

const (
	ActionAllow Action = iota
	ActionWarn
	ActionBan
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "warn"
	case ActionBan:
		return "ban"
	default:
		return "allow"
	}
}

// Verdict is the result of screening one message.
type Verdict struct {
	Action Action
	Reason string
}

const (
	// Flood limits: 5 messages per minute, minimum 2s between messages.
	messagesPerMinute = 5
	minInterval       = 2 * time.Second

	// Consecutive messages at or above this Jaccard similarity count as
	// duplicates.
	similarityThreshold = 0.8

	// Spam strikes before the verdict escalates from warn to ban.
	spamStrikesToBan = 3

	// Word repetition thresholds within one hour.
	repeatWarnCount = 3
	repeatBanCount  = 5
)

type userState struct {
	limiter     *rate.Limiter
	lastText    string
	lastAt      time.Time
	spamStrikes int
	wordCounts  map[string]int
	wordsSince  time.Time
}

// Detector keeps per-user screening state. Time is passed in
// explicitly so tests drive it directly.
type Detector struct {
	mu    sync.Mutex
	users map[string]*userState
}

func NewDetector() *Detector {
	return &Detector{users: make(map[string]*userState)}
}

// Check screens one message. Verdicts escalate: early spam violations
// warn, repeated ones ban.
func (d *Detector) Check(userID, text string, now time.Time) Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.users[userID]
	if !ok {
		st = &userState{
			limiter:    rate.NewLimiter(rate.Every(time.Minute/messagesPerMinute), messagesPerMinute),
			wordCounts: make(map[string]int),
			wordsSince: now,
		}
		d.users[userID] = st
	}

	if now.Sub(st.wordsSince) >= time.Hour {
		st.wordCounts = make(map[string]int)
		st.wordsSince = now
	}

	verdict := d.checkSpam(st, text, now)
	st.lastText = text
	st.lastAt = now
	if verdict.Action == ActionBan {
		return verdict
	}

	if wv := checkRepetition(st, text); wv.Action > verdict.Action {
		verdict = wv
	}
	return verdict
}

// Reset clears a user's screening state, e.g. after a ban is lifted.
func (d *Detector) Reset(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, userID)
}

func (d *Detector) checkSpam(st *userState, text string, now time.Time) Verdict {
	violation := ""
	switch {
	case !st.lastAt.IsZero() && now.Sub(st.lastAt) < minInterval:
		violation = "messages sent too quickly"
	case !st.limiter.AllowN(now, 1):
		violation = "message rate exceeded"
	case st.lastText != "" && jaccard(st.lastText, text) >= similarityThreshold:
		violation = "repeated near-identical message"
	}
	if violation == "" {
		return Verdict{Action: ActionAllow}
	}

	st.spamStrikes++
	if st.spamStrikes >= spamStrikesToBan {
		return Verdict{Action: ActionBan, Reason: violation}
	}
	return Verdict{Action: ActionWarn, Reason: violation}
}

func checkRepetition(st *userState, text string) Verdict {
	worst := 0
	word := ""
	for _, w := range tokenize(text) {
		if len(w) < 3 {
			continue
		}
		st.wordCounts[w]++
		if st.wordCounts[w] > worst {
			worst = st.wordCounts[w]
			word = w
		}
	}
	switch {
	case worst >= repeatBanCount:
		return Verdict{Action: ActionBan, Reason: "excessive repetition of " + word}
	case worst >= repeatWarnCount:
		return Verdict{Action: ActionWarn, Reason: "repetition of " + word}
	}
	return Verdict{Action: ActionAllow}
}

// jaccard computes word-set similarity between two messages.
func jaccard(a, b string) float64 {
	as := wordSet(a)
	bs := wordSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for w := range as {
		if bs[w] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range tokenize(s) {
		set[w] = true
	}
	return set
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// BanDuration maps an offense count to the ladder rung. Zero means
// permanent pending staff review.
func BanDuration(offense int) time.Duration {
	switch offense {
	case 1:
		return 30 * time.Minute
	case 2:
		return time.Hour
	case 3:
		return 24 * time.Hour
	default:
		return 0
	}
}
