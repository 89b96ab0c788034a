package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/reefbot/pkg/bus"
	"github.com/tinyland-inc/reefbot/pkg/logger"
)

const discordMaxMessageLength = 2000

// DiscordConfig configures the Discord transport.
type DiscordConfig struct {
	Token string
}

// Discord bridges a Discord bot account onto the event bus.
type Discord struct {
	cfg       DiscordConfig
	bus       *bus.EventBus
	session   *discordgo.Session
	connected atomic.Bool
}

func NewDiscord(cfg DiscordConfig, eb *bus.EventBus) *Discord {
	return &Discord{cfg: cfg, bus: eb}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) MaxMessageLength() int { return discordMaxMessageLength }

func (d *Discord) Start(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord bot token not configured")
	}

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentMessageContent

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		d.connected.Store(true)
		logger.InfoCF("discord", "Gateway ready", map[string]any{
			"username": r.User.Username,
		})
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		logger.WarnC("discord", "Gateway disconnected")
	})
	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onReactionAdd)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	d.session = session
	return nil
}

func (d *Discord) Stop(context.Context) error {
	d.connected.Store(false)
	if d.session == nil {
		return nil
	}
	return d.session.Close()
}

func (d *Discord) IsConnected() bool { return d.connected.Load() }

func (d *Discord) Send(_ context.Context, threadID, content string) (string, error) {
	if d.session == nil {
		return "", fmt.Errorf("discord transport not started")
	}
	msg, err := d.session.ChannelMessageSend(threadID, content)
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	return msg.ID, nil
}

func (d *Discord) Reply(_ context.Context, threadID, messageID, content string) (string, error) {
	if d.session == nil {
		return "", fmt.Errorf("discord transport not started")
	}
	msg, err := d.session.ChannelMessageSendReply(threadID, content, &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: threadID,
	})
	if err != nil {
		return "", fmt.Errorf("discord reply: %w", err)
	}
	return msg.ID, nil
}

func (d *Discord) React(_ context.Context, threadID, messageID, emoji string) error {
	if d.session == nil {
		return fmt.Errorf("discord transport not started")
	}
	if err := d.session.MessageReactionAdd(threadID, messageID, emoji); err != nil {
		return fmt.Errorf("discord react: %w", err)
	}
	return nil
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	var attachments []string
	for _, a := range m.Attachments {
		attachments = append(attachments, a.URL)
	}

	replyTo := ""
	if m.ReferencedMessage != nil {
		replyTo = m.ReferencedMessage.ID
	} else if m.MessageReference != nil {
		replyTo = m.MessageReference.MessageID
	}

	senderID := m.Author.ID
	if m.Author.Username != "" {
		senderID = m.Author.ID + "|" + m.Author.Username
	}

	ev := bus.NewMessageEvent(bus.Message{
		Channel:     d.Name(),
		SenderID:    senderID,
		ThreadID:    m.ChannelID,
		MessageID:   m.ID,
		ReplyToID:   replyTo,
		Body:        m.Content,
		Attachments: attachments,
		Metadata:    map[string]string{"guild_id": m.GuildID},
		ReceivedAt:  time.Now(),
	})
	if err := d.bus.Publish(context.Background(), ev); err != nil {
		logger.WarnCF("discord", "Dropping inbound message", map[string]any{
			"error": err.Error(),
		})
	}
}

func (d *Discord) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if s.State != nil && s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	ev := bus.NewReactionEvent(bus.Reaction{
		Channel:   d.Name(),
		SenderID:  r.UserID,
		ThreadID:  r.ChannelID,
		MessageID: r.MessageID,
		Emoji:     r.Emoji.Name,
	})
	if err := d.bus.Publish(context.Background(), ev); err != nil {
		logger.WarnCF("discord", "Dropping inbound reaction", map[string]any{
			"error": err.Error(),
		})
	}
}
