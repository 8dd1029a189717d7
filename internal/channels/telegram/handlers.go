package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/pandastore/supportbot/internal/bus"
	"github.com/pandastore/supportbot/internal/channels"
)

// handleMessage routes one incoming Telegram message: staff supergroup
// topics become staff events, customer DMs become user events.
func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	user := message.From
	if user == nil || user.IsBot {
		return
	}

	if message.Chat.ID == c.config.StaffGroupID {
		c.handleStaffMessage(message)
		return
	}
	if message.Chat.Type != "private" {
		return
	}

	userID := strconv.FormatInt(user.ID, 10)
	displayName := resolveDisplayName(user)

	slog.Debug("telegram message received",
		"chat_type", message.Chat.Type,
		"user_id", user.ID,
		"username", user.Username,
		"text_preview", channels.Truncate(message.Text, 60),
	)

	text := strings.TrimSpace(message.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		c.handleCommand(ctx, message, userID, displayName, text)
		return
	}

	c.bus.Publish(bus.InboundEvent{
		Channel:     c.Name(),
		Kind:        bus.KindUserMessage,
		UserID:      userID,
		DisplayName: displayName,
		Content:     text,
	})
}

// handleStaffMessage turns a message inside a forum topic into a staff
// event. Messages outside any topic (General) are workspace chatter,
// not directed at a customer.
func (c *Channel) handleStaffMessage(message *telego.Message) {
	topicID := message.MessageThreadID
	if topicID == 0 || topicID == telegramGeneralTopicID {
		return
	}
	c.bus.Publish(bus.InboundEvent{
		Channel:     c.Name(),
		Kind:        bus.KindStaffMessage,
		ThreadID:    strconv.Itoa(topicID),
		DisplayName: resolveDisplayName(message.From),
		Content:     message.Text,
	})
}

func (c *Channel) handleCommand(ctx context.Context, message *telego.Message, userID, displayName, text string) {
	cmd := strings.Fields(text)[0]
	switch cmd {
	case "/start":
		_, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID:      tu.ID(message.Chat.ID),
			Text:        channels.WelcomeText,
			ReplyMarkup: c.mainMenuKeyboard(),
		})
		if err != nil {
			slog.Warn("telegram /start reply failed", "user_id", userID, "error", err)
		}
	case "/pricing":
		c.sendPricing(ctx, message.Chat.ID)
	default:
		c.bus.Publish(bus.InboundEvent{
			Channel:     c.Name(),
			Kind:        bus.KindCommand,
			UserID:      userID,
			DisplayName: displayName,
			Content:     text,
		})
	}
}

// handleCallbackQuery processes inline button presses. Menu navigation
// is answered locally; purchases go to the dispatcher.
func (c *Channel) handleCallbackQuery(ctx context.Context, query *telego.CallbackQuery) {
	_ = c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	})

	userID := strconv.FormatInt(query.From.ID, 10)
	data := query.Data

	switch {
	case data == "menu:pricing":
		c.sendPricing(ctx, query.From.ID)
	case strings.HasPrefix(data, "buy:"):
		c.bus.Publish(bus.InboundEvent{
			Channel:     c.Name(),
			Kind:        bus.KindCallback,
			UserID:      userID,
			DisplayName: resolveDisplayName(&query.From),
			Content:     data,
			Metadata:    map[string]string{"plan_id": strings.TrimPrefix(data, "buy:")},
		})
	case data == "menu:support":
		c.bus.Publish(bus.InboundEvent{
			Channel:     c.Name(),
			Kind:        bus.KindCommand,
			UserID:      userID,
			DisplayName: resolveDisplayName(&query.From),
			Content:     "/support",
		})
	default:
		slog.Debug("telegram callback ignored", "data", channels.Truncate(data, 40))
	}
}

func (c *Channel) sendPricing(ctx context.Context, chatID int64) {
	plans := c.pricing.Plans()
	if len(plans) == 0 {
		_, _ = c.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID: tu.ID(chatID),
			Text:   "Pricing is being updated, please check back soon.",
		})
		return
	}

	var sb strings.Builder
	sb.WriteString("Our plans:\n\n")
	rows := make([][]telego.InlineKeyboardButton, 0, len(plans))
	for _, p := range plans {
		fmt.Fprintf(&sb, "• %s: $%.2f\n", p.Name, p.PriceUSD)
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(fmt.Sprintf("Buy %s", p.Name)).WithCallbackData("buy:"+p.ID),
		))
	}

	_, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:      tu.ID(chatID),
		Text:        sb.String(),
		ReplyMarkup: tu.InlineKeyboard(rows...),
	})
	if err != nil {
		slog.Warn("telegram pricing reply failed", "chat_id", chatID, "error", err)
	}
}

func (c *Channel) mainMenuKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("💳 Pricing").WithCallbackData("menu:pricing"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🧑‍💻 Talk to support").WithCallbackData("menu:support"),
		),
	)
}

func resolveDisplayName(user *telego.User) string {
	if user == nil {
		return "customer"
	}
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" && user.Username != "" {
		name = "@" + user.Username
	}
	if name == "" {
		name = strconv.FormatInt(user.ID, 10)
	}
	return name
}
