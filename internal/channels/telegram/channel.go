// Package telegram connects the bot to Telegram via long polling.
// Customer DMs are conversations; forum topics inside the staff
// supergroup are the per-customer threads.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/pandastore/supportbot/internal/bus"
	"github.com/pandastore/supportbot/internal/config"
	"github.com/pandastore/supportbot/internal/gateway"
	"github.com/pandastore/supportbot/internal/store"
)

// telegramGeneralTopicID is the fixed topic ID of the "General" topic
// in forum supergroups. Send API calls must omit it or Telegram rejects
// them with "thread not found".
const telegramGeneralTopicID = 1

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	bot     *telego.Bot
	config  config.TelegramConfig
	bus     *bus.Bus
	pricing *store.PricingStore

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates the Telegram channel. pricing backs the /start and
// pricing-menu inline keyboards.
func New(cfg config.TelegramConfig, msgBus *bus.Bus, pricing *store.PricingStore) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		bot:     bot,
		config:  cfg,
		bus:     msgBus,
		pricing: pricing,
	}, nil
}

func (c *Channel) Name() string { return "telegram" }

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout: 30,
		AllowedUpdates: []string{
			"message",
			"callback_query",
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				} else if update.CallbackQuery != nil {
					c.handleCallbackQuery(pollCtx, update.CallbackQuery)
				}
			}
		}
	}()

	return nil
}

// Stop cancels the long polling context and waits for the polling
// goroutine to exit so Telegram releases the getUpdates lock.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// SendToUser delivers text to a customer DM, with a typing indicator
// proportional to the message length.
func (c *Channel) SendToUser(ctx context.Context, userID, text string) (string, error) {
	chatID, err := parseChatID(userID)
	if err != nil {
		return "", fmt.Errorf("telegram user id %q: %w", userID, err)
	}

	c.simulateTyping(ctx, chatID, len(text))

	msg, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: tu.ID(chatID),
		Text:   text,
	})
	if err != nil {
		return "", classify("send", err)
	}
	return strconv.Itoa(msg.MessageID), nil
}

// SendToThread posts into a forum topic of the staff supergroup.
func (c *Channel) SendToThread(ctx context.Context, threadID, text string) (string, error) {
	topicID, err := strconv.Atoi(threadID)
	if err != nil {
		return "", fmt.Errorf("telegram thread id %q: %w", threadID, err)
	}

	params := &telego.SendMessageParams{
		ChatID: tu.ID(c.config.StaffGroupID),
		Text:   text,
	}
	if topicID != telegramGeneralTopicID {
		params.MessageThreadID = topicID
	}

	msg, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return "", classify("send", err)
	}
	return strconv.Itoa(msg.MessageID), nil
}

// CreateThread creates a forum topic in the staff supergroup.
func (c *Channel) CreateThread(ctx context.Context, title string) (string, error) {
	topic, err := c.bot.CreateForumTopic(ctx, &telego.CreateForumTopicParams{
		ChatID: tu.ID(c.config.StaffGroupID),
		Name:   title,
	})
	if err != nil {
		return "", classify("create_thread", err)
	}
	return strconv.Itoa(topic.MessageThreadID), nil
}

// DeleteMessage removes a message from the staff supergroup.
func (c *Channel) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram message id %q: %w", messageID, err)
	}
	if err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(c.config.StaffGroupID),
		MessageID: msgID,
	}); err != nil {
		return classify("delete", err)
	}
	return nil
}

// simulateTyping shows the typing action briefly so replies don't
// appear instantaneous. Best effort.
func (c *Channel) simulateTyping(ctx context.Context, chatID int64, textLen int) {
	_ = c.bot.SendChatAction(ctx, &telego.SendChatActionParams{
		ChatID: tu.ID(chatID),
		Action: telego.ChatActionTyping,
	})
	delay := time.Duration(textLen) * 15 * time.Millisecond
	if delay > 3*time.Second {
		delay = 3 * time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func parseChatID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// classify maps Telegram API errors onto the gateway taxonomy. "thread
// not found" and friends mean the cached topic is gone and must not be
// reused.
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "thread not found"),
		strings.Contains(msg, "topic_deleted"),
		strings.Contains(msg, "topic_closed"),
		strings.Contains(msg, "chat not found"),
		strings.Contains(msg, "group chat was deactivated"):
		return gateway.NewError(gateway.KindMissing, op, err)
	default:
		return gateway.NewError(gateway.KindTransient, op, err)
	}
}
