package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/config"
	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/utils"
)

const (
	sendTimeout = 10 * time.Second

	// discordChunkLimit stays under Discord's 2000 character cap so code
	// blocks can be closed without overflowing.
	discordChunkLimit = 1500
)

// discordSession is the part of *discordgo.Session the channel uses.
type discordSession interface {
	AddHandler(handler any) func()
	Open() error
	Close() error
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

type DiscordChannel struct {
	*BaseChannel
	session discordSession
	config  config.DiscordConfig
	botID   string
}

func NewDiscordChannel(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", msgBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	c.botID = botUser.ID
	c.setRunning(true)

	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	channelID := c.resolveChannelID(msg)
	if channelID == "" {
		logger.DebugCF("discord", "No channel configured for message kind, dropping", map[string]any{
			"kind": string(msg.Kind),
		})
		return nil
	}

	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}

	for _, chunk := range splitMessage(msg.Content, discordChunkLimit) {
		if err := c.sendChunk(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// resolveChannelID picks the destination: the kind's own channel when one
// is configured, then the conversation the message answers, then the main
// channel.
func (c *DiscordChannel) resolveChannelID(msg bus.OutboundMessage) string {
	var byKind string
	switch msg.Kind {
	case bus.KindThoughts:
		byKind = c.config.ThoughtsChannelID
	case bus.KindBeliefs:
		byKind = c.config.BeliefsChannelID
	case bus.KindKnowledge:
		byKind = c.config.KnowledgeChannelID
	}
	switch {
	case byKind != "":
		return byKind
	case msg.ChatID != "":
		return msg.ChatID
	default:
		return c.config.MainChannelID
	}
}

// splitMessage splits long messages into chunks, preserving code block integrity.
// All length calculations use rune count (characters) since Discord's 2000-char
// limit is character-based, not byte-based.
func splitMessage(content string, limit int) []string {
	var messages []string
	runes := []rune(content)

	for len(runes) > 0 {
		if len(runes) <= limit {
			messages = append(messages, string(runes))
			break
		}

		msgEnd := limit

		// Find natural split point within the limit
		msgEnd = findLastRuneNewline(runes[:limit], 200)
		if msgEnd <= 0 {
			msgEnd = findLastRuneSpace(runes[:limit], 100)
		}
		if msgEnd <= 0 {
			msgEnd = limit
		}

		// Check if this would end with an incomplete code block
		unclosedRuneIdx := findLastUnclosedCodeBlockRune(runes[:msgEnd])

		if unclosedRuneIdx >= 0 {
			// Message would end with incomplete code block
			// Try to extend to include the closing ``` (with some buffer)
			extendedLimit := limit + 400
			if len(runes) > extendedLimit {
				closingRuneIdx := findNextClosingCodeBlockRune(runes, msgEnd)
				if closingRuneIdx > 0 && closingRuneIdx <= extendedLimit {
					msgEnd = closingRuneIdx
				} else {
					// Can't find closing, split before the code block
					msgEnd = findLastRuneNewline(runes[:unclosedRuneIdx], 200)
					if msgEnd <= 0 {
						msgEnd = findLastRuneSpace(runes[:unclosedRuneIdx], 100)
					}
					if msgEnd <= 0 {
						msgEnd = unclosedRuneIdx
					}
				}
			} else {
				// Remaining content fits within extended limit
				msgEnd = len(runes)
			}
		}

		if msgEnd <= 0 {
			msgEnd = limit
		}

		messages = append(messages, string(runes[:msgEnd]))
		remaining := strings.TrimSpace(string(runes[msgEnd:]))
		runes = []rune(remaining)
	}

	return messages
}

// findLastUnclosedCodeBlockRune finds the last opening ``` that doesn't have a closing ```
// using rune-based indexing. Returns the rune position or -1 if all code blocks are complete.
func findLastUnclosedCodeBlockRune(runes []rune) int {
	count := 0
	lastOpenIdx := -1

	for i := 0; i < len(runes); i++ {
		if i+2 < len(runes) && runes[i] == '`' && runes[i+1] == '`' && runes[i+2] == '`' {
			if count%2 == 0 {
				lastOpenIdx = i
			}
			count++
			i += 2
		}
	}

	if count%2 == 1 {
		return lastOpenIdx
	}
	return -1
}

// findNextClosingCodeBlockRune finds the next closing ``` starting from a rune position.
// Returns the rune position after the closing ``` or -1 if not found.
func findNextClosingCodeBlockRune(runes []rune, startIdx int) int {
	for i := startIdx; i < len(runes); i++ {
		if i+2 < len(runes) && runes[i] == '`' && runes[i+1] == '`' && runes[i+2] == '`' {
			// Include any trailing newline after the closing ```
			end := i + 3
			if end < len(runes) && runes[end] == '\n' {
				end++
			}
			return end
		}
	}
	return -1
}

// findLastRuneNewline finds the last newline within the last N runes.
func findLastRuneNewline(runes []rune, searchWindow int) int {
	searchStart := len(runes) - searchWindow
	if searchStart < 0 {
		searchStart = 0
	}
	for i := len(runes) - 1; i >= searchStart; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}

// findLastRuneSpace finds the last space within the last N runes.
func findLastRuneSpace(runes []rune, searchWindow int) int {
	searchStart := len(runes) - searchWindow
	if searchStart < 0 {
		searchStart = 0
	}
	for i := len(runes) - 1; i >= searchStart; i-- {
		if runes[i] == ' ' || runes[i] == '\t' {
			return i
		}
	}
	return -1
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, content)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == c.botID {
		return
	}

	if !c.IsAllowed(m.Author.ID + "|" + m.Author.Username) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{
			"user_id": m.Author.ID,
		})
		return
	}

	content := m.Content
	for _, attachment := range m.Attachments {
		content = appendContent(content, fmt.Sprintf("[attachment: %s]", attachment.URL))
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	if err := c.session.ChannelTyping(m.ChannelID); err != nil {
		logger.DebugCF("discord", "Failed to send typing indicator", map[string]any{
			"error": err.Error(),
		})
	}

	logger.DebugCF("discord", "Received message", map[string]any{
		"username": m.Author.Username,
		"user_id":  m.Author.ID,
		"preview":  utils.Truncate(content, 50),
	})

	c.HandleMessage(m.Author.ID, m.ChannelID, content, map[string]string{
		"message_id": m.ID,
		"username":   m.Author.Username,
		"guild_id":   m.GuildID,
		"is_dm":      fmt.Sprintf("%t", m.GuildID == ""),
	})
}

func appendContent(content, suffix string) string {
	if content == "" {
		return suffix
	}
	return content + "\n" + suffix
}
