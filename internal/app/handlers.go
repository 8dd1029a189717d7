package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pandastore/supportbot/internal/agent"
	"github.com/pandastore/supportbot/internal/bus"
	"github.com/pandastore/supportbot/internal/channels"
	"github.com/pandastore/supportbot/internal/handoff"
	"github.com/pandastore/supportbot/internal/moderation"
	"github.com/pandastore/supportbot/internal/payments"
	"github.com/pandastore/supportbot/internal/store"
)

// handleUserMessage runs one customer message through the ban gate, the
// moderation gate and the handoff arbiter, then replies or defers.
func (d *Dispatcher) handleUserMessage(ctx context.Context, ev bus.InboundEvent) {
	ctx, span := d.span(ctx, "dispatch.user_message", ev.UserID)
	defer span.End()

	if d.blockedByBan(ctx, ev.UserID) {
		return
	}

	verdict := d.detector.Check(ev.UserID, ev.Content, d.clock.Now())
	switch verdict.Action {
	case moderation.ActionWarn:
		slog.Info("dispatch: message held",
			"user_id", ev.UserID, "reason", verdict.Reason)
		d.sendToUser(ctx, ev.UserID,
			"⚠️ Please slow down: "+verdict.Reason+". Continued abuse leads to a temporary ban.")
		d.mirror(ctx, ev.UserID,
			fmt.Sprintf("⚠️ Held a message from %s: %s", ev.DisplayName, verdict.Reason))
		return
	case moderation.ActionBan:
		d.issueBan(ctx, ev.UserID, ev.DisplayName, verdict.Reason)
		return
	}

	d.responder.RecordUser(ev.UserID, ev.Content)
	d.mirror(ctx, ev.UserID, fmt.Sprintf("👤 %s: %s", ev.DisplayName, ev.Content))

	if d.arbiter.OnUserMessage(ev.UserID) == handoff.DecisionDeferred {
		slog.Debug("dispatch: reply deferred", "user_id", ev.UserID)
		return
	}
	d.respondNow(ctx, ev.UserID)
	d.adviseIntent(ctx, ev)
}

// adviseIntent reacts to what the customer seems to want beyond the
// answer itself: buyers get the plan menu, free-content fishing is
// surfaced to staff.
func (d *Dispatcher) adviseIntent(ctx context.Context, ev bus.InboundEvent) {
	intent := agent.AnalyzeIntent(ev.Content)
	if intent.Buying {
		d.sendPricingText(ctx, ev.UserID)
	}
	if intent.FreeContent {
		d.mirror(ctx, ev.UserID, fmt.Sprintf("🎁 %s asked about free content or giveaways.", ev.DisplayName))
	}
}

// handleDeferredReply runs when the staff window expired with a reply
// still owed. The conversation may have moved on while the task sat in
// the queue: a staff message dequeued ahead of it reopens the window,
// and the customer may have been banned. Both invalidate the reply.
func (d *Dispatcher) handleDeferredReply(ctx context.Context, userID string) {
	ctx, span := d.span(ctx, "dispatch.deferred_reply", userID)
	defer span.End()

	if ban, ok := d.bans.Get(userID); ok && !ban.Expired(d.clock.Now()) {
		slog.Debug("dispatch: deferred reply skipped, user banned", "user_id", userID)
		return
	}
	if s := d.arbiter.GetConversationState(userID); s != handoff.StateAIImmediate {
		slog.Debug("dispatch: deferred reply superseded",
			"user_id", userID, "state", s)
		return
	}
	d.respondNow(ctx, userID)
}

// respondNow generates the automated reply and delivers it. Customer
// delivery and thread mirroring are independent outcomes.
func (d *Dispatcher) respondNow(ctx context.Context, userID string) {
	ctx, span := d.span(ctx, "dispatch.completion", userID)
	reply, err := d.responder.Respond(ctx, userID)
	span.End()
	if err != nil {
		slog.Error("dispatch: completion failed", "user_id", userID, "error", err)
	}
	d.sendToUser(ctx, userID, reply)
	d.mirror(ctx, userID, "🤖 "+reply)
}

// handleStaffMessage forwards a staffer's thread message to the
// customer and opens the staff response window. Takeover happens even
// when forwarding fails; delivery problems never corrupt ownership.
func (d *Dispatcher) handleStaffMessage(ctx context.Context, userID string, ev bus.InboundEvent) {
	ctx, span := d.span(ctx, "dispatch.staff_message", userID)
	defer span.End()

	d.arbiter.OnStaffMessage(userID)

	// Staff replies become part of the conversation the responder sees.
	if err := d.history.Append(userID, "assistant", ev.Content); err != nil {
		slog.Warn("dispatch: history append failed", "user_id", userID, "error", err)
	}

	if _, err := d.gw.SendToUser(ctx, userID, ev.Content); err != nil {
		slog.Error("dispatch: staff forward failed",
			"user_id", userID, "thread_id", ev.ThreadID, "error", err)
		d.threadNotice(ctx, ev.ThreadID, "⚠️ Could not deliver this to the customer. Try again in a moment.")
		return
	}
	d.threadNotice(ctx, ev.ThreadID, "✅ Delivered")
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev bus.InboundEvent) {
	ctx, span := d.span(ctx, "dispatch.command", ev.UserID)
	defer span.End()

	if d.blockedByBan(ctx, ev.UserID) {
		return
	}

	fields := strings.Fields(ev.Content)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "/start":
		d.sendToUser(ctx, ev.UserID, channels.WelcomeText)
	case "/support":
		d.mirror(ctx, ev.UserID, fmt.Sprintf("🙋 %s asked for a human.", ev.DisplayName))
		d.sendToUser(ctx, ev.UserID,
			"A teammate has been notified and will reply here. You can keep typing in the meantime.")
	case "/pricing":
		d.sendPricingText(ctx, ev.UserID)
	case "/paid":
		d.settleUserPayments(ctx, ev.UserID)
	default:
		d.sendToUser(ctx, ev.UserID, "I don't know that command. Try /pricing, /support or /paid.")
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, ev bus.InboundEvent) {
	ctx, span := d.span(ctx, "dispatch.callback", ev.UserID)
	defer span.End()

	if d.blockedByBan(ctx, ev.UserID) {
		return
	}

	if planID, ok := ev.Metadata["plan_id"]; ok {
		d.startCheckout(ctx, ev.UserID, ev.DisplayName, planID)
		return
	}
	slog.Debug("dispatch: callback ignored", "content", ev.Content)
}

// blockedByBan reports whether the customer is currently banned,
// notifying them when so. An expired ban is lifted on the way through.
func (d *Dispatcher) blockedByBan(ctx context.Context, userID string) bool {
	ban, ok := d.bans.Get(userID)
	if !ok {
		return false
	}
	if ban.Expired(d.clock.Now()) {
		if err := d.bans.Lift(userID); err != nil {
			slog.Error("dispatch: ban lift failed", "user_id", userID, "error", err)
		}
		d.detector.Reset(userID)
		slog.Info("dispatch: ban expired", "user_id", userID)
		return false
	}
	d.sendToUser(ctx, userID, banNotice(ban))
	return true
}

// issueBan puts the customer on the next rung of the ban ladder and
// tells both sides.
func (d *Dispatcher) issueBan(ctx context.Context, userID, displayName, reason string) {
	offense := d.bans.Offenses(userID) + 1
	duration := moderation.BanDuration(offense)
	now := d.clock.Now()

	ban := store.Ban{UserID: userID, Reason: reason, IssuedAt: now}
	if duration > 0 {
		ban.ExpiresAt = now.Add(duration)
	}
	if err := d.bans.Put(ban); err != nil {
		slog.Error("dispatch: ban persist failed", "user_id", userID, "error", err)
	}
	d.detector.Reset(userID)

	slog.Info("dispatch: user banned",
		"user_id", userID, "reason", reason, "offense", offense, "duration", duration)

	d.sendToUser(ctx, userID, banNotice(ban)+" Reason: "+reason+".")
	if ban.Permanent() {
		d.mirror(ctx, userID,
			fmt.Sprintf("⛔ Banned %s permanently pending review (%s, offense #%d).", displayName, reason, offense))
	} else {
		d.mirror(ctx, userID,
			fmt.Sprintf("⛔ Banned %s for %s (%s, offense #%d).", displayName, duration, reason, offense))
	}
}

func (d *Dispatcher) sendPricingText(ctx context.Context, userID string) {
	plans := d.pricing.Plans()
	if len(plans) == 0 {
		d.sendToUser(ctx, userID, "Pricing is being updated, please check back soon.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Our plans:\n\n")
	for _, p := range plans {
		fmt.Fprintf(&sb, "• %s: $%.2f", p.Name, p.PriceUSD)
		if p.Description != "" {
			sb.WriteString(" · " + p.Description)
		}
		sb.WriteString("\n")
	}
	d.sendToUser(ctx, userID, sb.String())
}

// startCheckout creates an OxaPay invoice for the plan and hands the
// customer the payment link.
func (d *Dispatcher) startCheckout(ctx context.Context, userID, displayName, planID string) {
	plan, ok := d.pricing.Find(planID)
	if !ok {
		d.sendToUser(ctx, userID, "That plan is no longer available.")
		return
	}
	if d.oxapay == nil {
		d.sendToUser(ctx, userID, "Payments are currently unavailable. A teammate can help you here.")
		d.mirror(ctx, userID, fmt.Sprintf("💳 %s tried to buy %s but payments are disabled.", displayName, plan.Name))
		return
	}

	inv, err := d.oxapay.CreateInvoice(ctx, plan.PriceUSD, "PandaStore "+plan.Name)
	if err != nil {
		slog.Error("dispatch: invoice creation failed",
			"user_id", userID, "plan_id", plan.ID, "error", err)
		d.sendToUser(ctx, userID, "Could not create your invoice, please try again in a few minutes.")
		return
	}

	err = d.payStore.Put(store.Payment{
		OrderID:   inv.OrderID,
		TrackID:   inv.TrackID,
		UserID:    userID,
		PlanID:    plan.ID,
		AmountUSD: plan.PriceUSD,
		Status:    "pending",
		CreatedAt: d.clock.Now().UTC(),
	})
	if err != nil {
		slog.Error("dispatch: payment persist failed", "order_id", inv.OrderID, "error", err)
	}

	d.sendToUser(ctx, userID, fmt.Sprintf(
		"💳 Invoice for %s ($%.2f):\n%s\n\nSend /paid once you have completed the payment.",
		plan.Name, plan.PriceUSD, inv.PayLink))
	d.mirror(ctx, userID, fmt.Sprintf("💳 %s started checkout for %s ($%.2f).", displayName, plan.Name, plan.PriceUSD))
}

// settleUserPayments polls the customer's pending invoices on demand.
func (d *Dispatcher) settleUserPayments(ctx context.Context, userID string) {
	if d.oxapay == nil {
		d.sendToUser(ctx, userID, "Payments are currently unavailable.")
		return
	}
	pending := d.payStore.PendingForUser(userID)
	if len(pending) == 0 {
		d.sendToUser(ctx, userID, "You have no pending invoices.")
		return
	}
	settled := false
	for _, p := range pending {
		if d.settleInvoice(ctx, p) {
			settled = true
		}
	}
	if !settled {
		d.sendToUser(ctx, userID, "Your payment hasn't been confirmed yet. Give it a few minutes and send /paid again.")
	}
}

// settleInvoice checks one invoice with OxaPay and fulfils it when
// paid. Returns true when the invoice left the pending state.
func (d *Dispatcher) settleInvoice(ctx context.Context, p store.Payment) bool {
	status, err := d.oxapay.InvoiceStatus(ctx, p.TrackID)
	if err != nil {
		slog.Warn("dispatch: invoice inquiry failed",
			"order_id", p.OrderID, "track_id", p.TrackID, "error", err)
		return false
	}

	switch status {
	case payments.StatusPaid:
		if err := d.payStore.SetStatus(p.OrderID, "paid"); err != nil {
			slog.Error("dispatch: payment update failed", "order_id", p.OrderID, "error", err)
		}
		d.fulfil(ctx, p)
		return true
	case payments.StatusExpired:
		if err := d.payStore.SetStatus(p.OrderID, "expired"); err != nil {
			slog.Error("dispatch: payment update failed", "order_id", p.OrderID, "error", err)
		}
		d.sendToUser(ctx, p.UserID, "Your invoice expired unpaid. Pick a plan again to get a new one.")
		return true
	default:
		return false
	}
}

// fulfil delivers a redeem code for a paid invoice. An empty code pool
// is a staff problem, not a customer-facing error.
func (d *Dispatcher) fulfil(ctx context.Context, p store.Payment) {
	plan, _ := d.pricing.Find(p.PlanID)
	name := plan.Name
	if name == "" {
		name = p.PlanID
	}

	code, ok, err := d.codes.Pop(p.PlanID)
	if err != nil {
		slog.Error("dispatch: code pop failed", "plan_id", p.PlanID, "error", err)
	}
	if !ok {
		slog.Warn("dispatch: code pool empty", "plan_id", p.PlanID, "order_id", p.OrderID)
		d.sendToUser(ctx, p.UserID,
			"🎉 Payment confirmed! Your code will be delivered by a teammate shortly.")
		d.mirror(ctx, p.UserID, fmt.Sprintf(
			"❗ Order %s for %s is paid but the code pool is empty. Deliver manually.", p.OrderID, name))
		return
	}

	slog.Info("dispatch: order fulfilled",
		"order_id", p.OrderID, "user_id", p.UserID, "plan_id", p.PlanID)
	d.sendToUser(ctx, p.UserID, fmt.Sprintf("🎉 Payment confirmed! Your %s code:\n%s", name, code))
	d.mirror(ctx, p.UserID, fmt.Sprintf("💰 %s bought %s ($%.2f).", d.nameOf(p.UserID), name, p.AmountUSD))
}
