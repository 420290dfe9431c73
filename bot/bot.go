// Package bot is the Discord surface. It turns messages into orchestrator
// turns and chunks replies to fit Discord's message limit.
package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"schedbot"
	"schedbot/digest"
)

// Discord rejects messages above 2000 characters.
const maxMessageLen = 2000

type Bot struct {
	orch   *schedbot.Orchestrator
	logger *log.Logger

	// Digest is optional; when set, !digest on/off manages the daily agenda
	// subscription.
	Digest *digest.Scheduler

	mu      sync.Mutex
	session *discordgo.Session
}

func NewBot(orch *schedbot.Orchestrator, logger *log.Logger) *Bot {
	if logger == nil {
		logger = log.Default()
	}
	return &Bot{
		orch:   orch,
		logger: logger,
	}
}

func (b *Bot) Start(ctx context.Context, token string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return fmt.Errorf("bot already started")
	}

	s, err := discordgo.New(normalizeBotToken(token))
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	s.AddHandler(b.handleMessage)
	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	if err := s.UpdateGameStatus(0, "!help for commands"); err != nil {
		b.logger.Printf("failed to set presence: %v", err)
	}

	b.session = s
	b.logger.Printf("discord bot started")
	return nil
}

func (b *Bot) Stop() error {
	b.mu.Lock()
	s := b.session
	b.session = nil
	b.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	b.logger.Printf("discord bot stopped")
	return nil
}

// SendDM opens (or reuses) a DM channel with the user and delivers text in
// Discord-sized chunks. Used as the digest notifier.
func (b *Bot) SendDM(userID, text string) error {
	b.mu.Lock()
	s := b.session
	b.mu.Unlock()
	if s == nil {
		return fmt.Errorf("bot not started")
	}

	channel, err := s.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open DM channel for %s: %w", userID, err)
	}
	for _, chunk := range ChunkMessage(text, maxMessageLen) {
		if _, err := s.ChannelMessageSend(channel.ID, chunk); err != nil {
			return fmt.Errorf("send DM to %s: %w", userID, err)
		}
	}
	return nil
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if m.Author.Bot {
		return
	}

	reply := b.Dispatch(m.Author.ID, m.Content)
	if reply == "" {
		return
	}

	for _, chunk := range ChunkMessage(reply, maxMessageLen) {
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			b.logger.Printf("failed to send reply: %v", err)
			return
		}
	}
}

// Dispatch routes one message to the orchestrator. Unprefixed messages are
// treated as chat; unknown commands get a pointer to !help. An empty return
// means no reply should be sent.
func (b *Bot) Dispatch(userID, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	if !strings.HasPrefix(content, "!") {
		return b.orch.Process(userID, content)
	}

	command, rest := splitCommand(content)
	switch command {
	case "!chat":
		if rest == "" {
			return "Usage: !chat <message>"
		}
		return b.orch.Process(userID, rest)
	case "!cal":
		if rest == "" {
			return "Usage: !cal <request>"
		}
		return b.orch.ProcessCalendar(userID, rest)
	case "!clear":
		return b.orch.ClearHistory(userID)
	case "!help":
		return b.orch.Help()
	case "!stats":
		return b.orch.Stats()
	case "!ping":
		return "pong"
	case "!digest":
		return b.handleDigest(userID, rest)
	default:
		return fmt.Sprintf("Unknown command %s. Try !help.", command)
	}
}

func (b *Bot) handleDigest(userID, rest string) string {
	if b.Digest == nil {
		return "The daily digest is not enabled."
	}
	switch strings.ToLower(rest) {
	case "on":
		if b.Digest.Subscribe(userID) {
			return "You are subscribed to the daily digest."
		}
		return "You were already subscribed."
	case "off":
		if b.Digest.Unsubscribe(userID) {
			return "You are unsubscribed from the daily digest."
		}
		return "You were not subscribed."
	default:
		return "Usage: !digest on|off"
	}
}

func splitCommand(content string) (string, string) {
	parts := strings.SplitN(content, " ", 2)
	command := strings.ToLower(parts[0])
	rest := ""
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return command, rest
}

// ChunkMessage splits text into pieces of at most limit characters,
// preferring to break on line boundaries.
func ChunkMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			// a hard split must not land inside a multi-byte rune
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func normalizeBotToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bot ") {
		return token
	}
	return "Bot " + token
}
