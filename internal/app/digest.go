package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/pandastore/supportbot/internal/handoff"
	"github.com/pandastore/supportbot/internal/store"
	"github.com/pandastore/supportbot/internal/threads"
)

// digestConversationID is the reserved directory key for the digest
// thread in the staff workspace. It never collides with platform user
// IDs, which are numeric.
const digestConversationID = "digest"

// Digest posts a daily summary into a dedicated staff thread: active
// conversations, ownership states, bans and code inventory.
type Digest struct {
	cron      string
	history   *store.HistoryStore
	bans      *store.BanStore
	codes     *store.CodeStore
	pricing   *store.PricingStore
	arbiter   *handoff.Arbiter
	directory *threads.Directory
}

// NewDigest creates the digest job. cron is a standard 5-field
// expression.
func NewDigest(cron string, d *Dispatcher) *Digest {
	return &Digest{
		cron:      cron,
		history:   d.history,
		bans:      d.bans,
		codes:     d.codes,
		pricing:   d.pricing,
		arbiter:   d.arbiter,
		directory: d.directory,
	}
}

// Run posts the digest on schedule until ctx is done.
func (g *Digest) Run(ctx context.Context) error {
	if !gronx.New().IsValid(g.cron) {
		return fmt.Errorf("invalid digest cron %q", g.cron)
	}
	slog.Info("digest scheduled", "cron", g.cron)

	for {
		next, err := gronx.NextTick(g.cron, false)
		if err != nil {
			return fmt.Errorf("digest next tick: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
			g.post(ctx, time.Now())
		}
	}
}

func (g *Digest) post(ctx context.Context, now time.Time) {
	text := g.compose(now)
	err := g.directory.MirrorToThread(ctx, digestConversationID, "Daily digest", text)
	if err != nil {
		slog.Error("digest post failed", "error", err)
		return
	}
	slog.Info("digest posted")
}

func (g *Digest) compose(now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Daily digest — %s\n\n", now.UTC().Format("Mon, 02 Jan 2006"))

	active := g.history.ActiveSince(now.Add(-24 * time.Hour))
	sort.Strings(active)
	fmt.Fprintf(&sb, "Active conversations (24h): %d\n", len(active))

	staffHeld := 0
	for _, state := range g.arbiter.Snapshot() {
		if state != handoff.StateAIImmediate {
			staffHeld++
		}
	}
	fmt.Fprintf(&sb, "Conversations in staff hands: %d\n", staffHeld)

	bans := g.bans.Active()
	fmt.Fprintf(&sb, "Active bans: %d\n", len(bans))
	sort.Slice(bans, func(i, j int) bool { return bans[i].UserID < bans[j].UserID })
	for _, b := range bans {
		if b.Permanent() {
			fmt.Fprintf(&sb, "  • %s: %s (permanent)\n", b.UserID, b.Reason)
		} else {
			fmt.Fprintf(&sb, "  • %s: %s (until %s)\n", b.UserID, b.Reason, b.ExpiresAt.UTC().Format(time.RFC822))
		}
	}

	if plans := g.pricing.Plans(); len(plans) > 0 {
		sb.WriteString("\nCode inventory:\n")
		for _, p := range plans {
			fmt.Fprintf(&sb, "  • %s: %d left\n", p.Name, g.codes.Remaining(p.ID))
		}
	}
	return sb.String()
}
