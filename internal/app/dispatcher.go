// Package app is the dispatcher: it consumes inbound events from the
// bus, serializes work per conversation, and runs each message through
// the moderation gate, the handoff arbiter and the responder. Reply
// delivery to the customer and mirroring into the staff thread are
// independent outcomes; one failing never blocks the other.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pandastore/supportbot/internal/activity"
	"github.com/pandastore/supportbot/internal/agent"
	"github.com/pandastore/supportbot/internal/bus"
	"github.com/pandastore/supportbot/internal/gateway"
	"github.com/pandastore/supportbot/internal/handoff"
	"github.com/pandastore/supportbot/internal/moderation"
	"github.com/pandastore/supportbot/internal/payments"
	"github.com/pandastore/supportbot/internal/sched"
	"github.com/pandastore/supportbot/internal/store"
	"github.com/pandastore/supportbot/internal/threads"
)

// queueDepth bounds each conversation's work backlog.
const queueDepth = 32

// Deps collects everything the dispatcher needs. Oxapay may be nil
// when payments are disabled; Tracer may be nil for the global no-op.
type Deps struct {
	Bus       *bus.Bus
	Gateway   gateway.Gateway
	Directory *threads.Directory
	Responder *agent.Responder
	Detector  *moderation.Detector

	History  *store.HistoryStore
	Bans     *store.BanStore
	Payments *store.PaymentStore
	Codes    *store.CodeStore
	Pricing  *store.PricingStore

	Oxapay *payments.Client

	Clock       sched.Clock
	Scheduler   *sched.Scheduler
	Tracker     *activity.Tracker
	StaffWindow time.Duration

	Tracer trace.Tracer
}

// Dispatcher routes inbound events to per-conversation workers.
type Dispatcher struct {
	bus       *bus.Bus
	gw        gateway.Gateway
	directory *threads.Directory
	responder *agent.Responder
	detector  *moderation.Detector
	arbiter   *handoff.Arbiter

	history   *store.HistoryStore
	bans      *store.BanStore
	payStore  *store.PaymentStore
	codes     *store.CodeStore
	pricing   *store.PricingStore
	oxapay    *payments.Client

	clock  sched.Clock
	tracer trace.Tracer

	mu      sync.Mutex
	queues  map[string]chan func(context.Context)
	names   map[string]string
	baseCtx context.Context

	wg sync.WaitGroup
}

// New wires the dispatcher and its arbiter. The arbiter's deferred
// replies re-enter the owning conversation's serial queue.
func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		bus:       deps.Bus,
		gw:        deps.Gateway,
		directory: deps.Directory,
		responder: deps.Responder,
		detector:  deps.Detector,
		history:   deps.History,
		bans:      deps.Bans,
		payStore:  deps.Payments,
		codes:     deps.Codes,
		pricing:   deps.Pricing,
		oxapay:    deps.Oxapay,
		clock:     deps.Clock,
		tracer:    deps.Tracer,
		queues:    make(map[string]chan func(context.Context)),
		names:     make(map[string]string),
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("supportbot")
	}
	d.arbiter = handoff.New(deps.Clock, deps.Scheduler, deps.Tracker, deps.StaffWindow, d.onDeferredDue)
	return d
}

// Arbiter exposes the handoff arbiter, e.g. for config hot reload.
func (d *Dispatcher) Arbiter() *handoff.Arbiter { return d.arbiter }

// Run consumes bus events until ctx is cancelled, then waits for the
// conversation workers to drain.
func (d *Dispatcher) Run(ctx context.Context) {
	d.mu.Lock()
	d.baseCtx = ctx
	d.mu.Unlock()

	slog.Info("dispatcher started")
	for {
		ev, ok := d.bus.Consume(ctx)
		if !ok {
			break
		}
		d.route(ev)
	}

	d.arbiter.Shutdown()
	d.wg.Wait()
	slog.Info("dispatcher stopped")
}

// route hands an event to its conversation's serial queue. Staff events
// are keyed by the customer the thread belongs to.
func (d *Dispatcher) route(ev bus.InboundEvent) {
	switch ev.Kind {
	case bus.KindStaffMessage:
		userID, ok := d.directory.UserForThread(ev.ThreadID)
		if !ok {
			slog.Debug("dispatch: staff message in unmapped thread",
				"thread_id", ev.ThreadID)
			return
		}
		// The digest thread maps to a reserved id, not a customer.
		// Staff chatter there has nowhere to go.
		if userID == digestConversationID {
			slog.Debug("dispatch: staff message in digest thread ignored",
				"thread_id", ev.ThreadID)
			return
		}
		d.enqueue(userID, func(ctx context.Context) {
			d.handleStaffMessage(ctx, userID, ev)
		})
	case bus.KindUserMessage:
		d.rememberName(ev.UserID, ev.DisplayName)
		d.enqueue(ev.UserID, func(ctx context.Context) {
			d.handleUserMessage(ctx, ev)
		})
	case bus.KindCommand:
		d.rememberName(ev.UserID, ev.DisplayName)
		d.enqueue(ev.UserID, func(ctx context.Context) {
			d.handleCommand(ctx, ev)
		})
	case bus.KindCallback:
		d.rememberName(ev.UserID, ev.DisplayName)
		d.enqueue(ev.UserID, func(ctx context.Context) {
			d.handleCallback(ctx, ev)
		})
	default:
		slog.Warn("dispatch: unknown event kind", "kind", ev.Kind)
	}
}

// enqueue appends work to the conversation's queue, lazily starting its
// worker. Blocks when the queue is full, backpressuring the bus.
func (d *Dispatcher) enqueue(userID string, fn func(context.Context)) {
	q, ctx := d.queueFor(userID)
	if ctx == nil {
		return
	}
	select {
	case q <- fn:
	case <-ctx.Done():
	}
}

// tryEnqueue is the non-blocking variant used by timer callbacks.
func (d *Dispatcher) tryEnqueue(userID string, fn func(context.Context)) bool {
	q, ctx := d.queueFor(userID)
	if ctx == nil {
		return false
	}
	select {
	case q <- fn:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) queueFor(userID string) (chan func(context.Context), context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.baseCtx == nil {
		return nil, nil
	}
	q, ok := d.queues[userID]
	if !ok {
		q = make(chan func(context.Context), queueDepth)
		d.queues[userID] = q
		d.wg.Add(1)
		go d.worker(d.baseCtx, q)
	}
	return q, d.baseCtx
}

// worker drains one conversation's queue so its events are handled in
// arrival order, one at a time.
func (d *Dispatcher) worker(ctx context.Context, q chan func(context.Context)) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-q:
			fn(ctx)
		}
	}
}

// onDeferredDue is the arbiter's callback: the staff window expired
// with an automated reply still owed. It must not block, so the reply
// re-enters the conversation queue without waiting.
func (d *Dispatcher) onDeferredDue(userID string) {
	ok := d.tryEnqueue(userID, func(ctx context.Context) {
		d.handleDeferredReply(ctx, userID)
	})
	if !ok {
		slog.Warn("dispatch: deferred reply dropped, queue full", "user_id", userID)
	}
}

func (d *Dispatcher) rememberName(userID, displayName string) {
	if userID == "" || displayName == "" {
		return
	}
	d.mu.Lock()
	d.names[userID] = displayName
	d.mu.Unlock()
}

func (d *Dispatcher) nameOf(userID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name, ok := d.names[userID]; ok {
		return name
	}
	return "customer"
}

func (d *Dispatcher) span(ctx context.Context, name, userID string) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("conversation.id", userID),
	))
}

// sendToUser delivers text to the customer, logging failures. Delivery
// failures never change conversation state.
func (d *Dispatcher) sendToUser(ctx context.Context, userID, text string) {
	if _, err := d.gw.SendToUser(ctx, userID, text); err != nil {
		slog.Error("dispatch: send to user failed", "user_id", userID, "error", err)
	}
}

// mirror posts text into the customer's staff thread, logging failures.
func (d *Dispatcher) mirror(ctx context.Context, userID, text string) {
	if err := d.directory.MirrorToThread(ctx, userID, d.nameOf(userID), text); err != nil {
		slog.Error("dispatch: thread mirror failed", "user_id", userID, "error", err)
	}
}

func (d *Dispatcher) threadNotice(ctx context.Context, threadID, text string) {
	if _, err := d.gw.SendToThread(ctx, threadID, text); err != nil {
		slog.Warn("dispatch: thread notice failed", "thread_id", threadID, "error", err)
	}
}

// RunMaintenance periodically lifts expired bans and settles pending
// invoices. Blocks until ctx is done.
func (d *Dispatcher) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.liftExpiredBans(ctx)
			if d.oxapay != nil {
				d.settlePendingPayments(ctx)
			}
		}
	}
}

func (d *Dispatcher) liftExpiredBans(ctx context.Context) {
	now := d.clock.Now()
	for _, userID := range d.bans.ExpiredAt(now) {
		if err := d.bans.Lift(userID); err != nil {
			slog.Error("dispatch: ban lift failed", "user_id", userID, "error", err)
			continue
		}
		d.detector.Reset(userID)
		slog.Info("dispatch: ban expired", "user_id", userID)
		d.sendToUser(ctx, userID, "✅ Your ban has expired. Please keep it civil.")
	}
}

func (d *Dispatcher) settlePendingPayments(ctx context.Context) {
	for _, p := range d.payStore.Pending() {
		d.settleInvoice(ctx, p)
	}
}

func banNotice(b store.Ban) string {
	if b.Permanent() {
		return "⛔ You are banned from the support chat pending staff review."
	}
	return fmt.Sprintf("⛔ You are banned from the support chat until %s.",
		b.ExpiresAt.UTC().Format(time.RFC822))
}
