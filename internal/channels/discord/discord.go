// Package discord is the alternative staff workspace transport:
// customer DMs are conversations, threads under the staff channel are
// the per-customer threads.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/pandastore/supportbot/internal/bus"
	"github.com/pandastore/supportbot/internal/config"
	"github.com/pandastore/supportbot/internal/gateway"
)

// discordMaxMessageLen is Discord's hard per-message limit.
const discordMaxMessageLen = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	session   *discordgo.Session
	config    config.DiscordConfig
	bus       *bus.Bus
	botUserID string // populated on start
}

// New creates the Discord channel from config.
func New(cfg config.DiscordConfig, msgBus *bus.Bus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		session: session,
		config:  cfg,
		bus:     msgBus,
	}, nil
}

func (c *Channel) Name() string { return "discord" }

// Start opens the Discord gateway connection and begins receiving
// events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	return c.session.Close()
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	// DMs have no guild.
	if m.GuildID == "" {
		kind := bus.KindUserMessage
		if strings.HasPrefix(text, "/") {
			kind = bus.KindCommand
		}
		c.bus.Publish(bus.InboundEvent{
			Channel:     c.Name(),
			Kind:        kind,
			UserID:      m.Author.ID,
			DisplayName: resolveDisplayName(m.Author),
			Content:     text,
		})
		return
	}

	// Guild messages only matter inside customer threads under the
	// staff channel.
	ch, err := c.channelInfo(m.ChannelID)
	if err != nil {
		slog.Debug("discord channel lookup failed", "channel_id", m.ChannelID, "error", err)
		return
	}
	if !ch.IsThread() || ch.ParentID != c.config.StaffChannelID {
		return
	}

	c.bus.Publish(bus.InboundEvent{
		Channel:     c.Name(),
		Kind:        bus.KindStaffMessage,
		ThreadID:    m.ChannelID,
		DisplayName: resolveDisplayName(m.Author),
		Content:     text,
	})
}

func (c *Channel) channelInfo(channelID string) (*discordgo.Channel, error) {
	if ch, err := c.session.State.Channel(channelID); err == nil {
		return ch, nil
	}
	return c.session.Channel(channelID)
}

// SendToUser delivers text to a customer DM, splitting messages over
// Discord's length limit.
func (c *Channel) SendToUser(_ context.Context, userID, text string) (string, error) {
	dm, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return "", classify("send", err)
	}
	return c.sendChunked(dm.ID, text)
}

// SendToThread posts into a customer thread in the staff workspace.
func (c *Channel) SendToThread(_ context.Context, threadID, text string) (string, error) {
	return c.sendChunked(threadID, text)
}

// CreateThread starts a new public thread under the staff channel.
func (c *Channel) CreateThread(_ context.Context, title string) (string, error) {
	thread, err := c.session.ThreadStartComplex(c.config.StaffChannelID, &discordgo.ThreadStart{
		Name:                title,
		AutoArchiveDuration: 10080, // a week; staff threads are long-lived
		Type:                discordgo.ChannelTypeGuildPublicThread,
	})
	if err != nil {
		return "", classify("create_thread", err)
	}
	return thread.ID, nil
}

// DeleteMessage removes a message from a thread.
func (c *Channel) DeleteMessage(_ context.Context, threadID, messageID string) error {
	if err := c.session.ChannelMessageDelete(threadID, messageID); err != nil {
		return classify("delete", err)
	}
	return nil
}

// sendChunked sends content, splitting into multiple messages if over
// the limit. Returns the first message's ID.
func (c *Channel) sendChunked(channelID, content string) (string, error) {
	firstID := ""
	for _, chunk := range splitMessage(content) {
		msg, err := c.session.ChannelMessageSend(channelID, chunk)
		if err != nil {
			return firstID, classify("send", err)
		}
		if firstID == "" {
			firstID = msg.ID
		}
	}
	return firstID, nil
}

// splitMessage cuts content into chunks of at most discordMaxMessageLen
// characters. The limit counts characters, not bytes; cuts land on rune
// boundaries, preferring a newline in the second half of the chunk.
func splitMessage(content string) []string {
	var chunks []string
	for len(content) > 0 {
		cut := runeOffset(content, discordMaxMessageLen)
		if cut == len(content) {
			chunks = append(chunks, content)
			break
		}
		if nl := strings.LastIndex(content[:cut], "\n"); nl >= cut/2 {
			cut = nl
		}
		chunks = append(chunks, content[:cut])
		content = strings.TrimPrefix(content[cut:], "\n")
	}
	return chunks
}

// runeOffset returns the byte offset of the n-th rune in s, or len(s)
// when s has fewer than n runes.
func runeOffset(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}

func resolveDisplayName(u *discordgo.User) string {
	if u == nil {
		return "customer"
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// classify maps Discord REST errors onto the gateway taxonomy.
func classify(op string, err error) error {
	if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeMissingAccess:
			return gateway.NewError(gateway.KindMissing, op, err)
		}
	}
	return gateway.NewError(gateway.KindTransient, op, err)
}
