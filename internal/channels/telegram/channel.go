package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/clawbox/internal/agent"
	"github.com/nextlevelbuilder/clawbox/internal/config"
)

// Telegram rejects messages longer than this.
const maxMessageLen = 4096

// Responder runs one user message to completion. Satisfied by
// agent.Coordinator.
type Responder interface {
	HandleMessage(ctx context.Context, conversationID, text string) *agent.RunResult
	Reset(ctx context.Context, conversationID string) error
}

// Channel connects to Telegram via the Bot API using long polling. Each
// chat maps to conversation id tg-<chat id>, so a chat keeps its sandbox
// container and history across messages.
type Channel struct {
	bot       *telego.Bot
	cfg       config.TelegramConfig
	responder Responder

	limiters   sync.Map // chat id int64 → *rate.Limiter
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

func New(cfg config.TelegramConfig, responder Responder) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{bot: bot, cfg: cfg, responder: responder}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram bot connected", "username", c.bot.Username())
	c.syncMenuCommands(pollCtx)

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
				}
			}
		}
	}()

	return nil
}

// Stop cancels the long polling context and waits for the polling
// goroutine to exit, so Telegram releases the getUpdates lock before a
// new instance starts.
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

func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)

	if !c.allowed(chatID) {
		slog.Warn("telegram message from disallowed chat", "chat_id", chatID)
		return
	}
	if text == "" {
		c.send(ctx, chatID, "I can only read text messages.")
		return
	}

	if handled := c.handleCommand(ctx, chatID, text); handled {
		return
	}

	if !c.limiter(chatID).Allow() {
		c.send(ctx, chatID, "Too many requests. Give me a moment.")
		return
	}

	// Serialisation per conversation happens further down; processing in
	// a goroutine keeps one busy chat from stalling the poll loop.
	go c.process(ctx, chatID, text)
}

func (c *Channel) process(ctx context.Context, chatID int64, text string) {
	done := make(chan struct{})
	go c.typeWhile(ctx, chatID, done)
	defer close(done)

	conversationID := conversationID(chatID)
	res := c.responder.HandleMessage(ctx, conversationID, text)

	reply := res.FinalText
	if reply == "" {
		reply = stopText(res)
	}
	c.send(ctx, chatID, reply)
}

// typeWhile keeps the typing indicator alive; Telegram drops it after a
// few seconds, so it is re-sent until the response is ready.
func (c *Channel) typeWhile(ctx context.Context, chatID int64, done <-chan struct{}) {
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	for {
		_ = c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Channel) send(ctx context.Context, chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), part)); err != nil {
			slog.Warn("telegram send failed", "chat_id", chatID, "error", err)
			return
		}
	}
}

// allowed checks the optional chat allowlist. An empty list allows everyone.
func (c *Channel) allowed(chatID int64) bool {
	if len(c.cfg.AllowedChatIDs) == 0 {
		return true
	}
	for _, id := range c.cfg.AllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// limiter returns the per-chat rate limiter: burst of 3, then one message
// per two seconds.
func (c *Channel) limiter(chatID int64) *rate.Limiter {
	if l, ok := c.limiters.Load(chatID); ok {
		return l.(*rate.Limiter)
	}
	l, _ := c.limiters.LoadOrStore(chatID, rate.NewLimiter(rate.Every(2*time.Second), 3))
	return l.(*rate.Limiter)
}

func conversationID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

func stopText(res *agent.RunResult) string {
	switch res.StopReason {
	case agent.StopMaxTurns:
		return fmt.Sprintf("Stopped after reaching the turn limit (%d turns).", res.Turns)
	case agent.StopRepeatedCall:
		return "Stopped: the model kept repeating the same tool call."
	case agent.StopConsecutiveErrors:
		return "Stopped: too many tool errors in a row."
	case agent.StopLLMError:
		return "The model call failed. Please try again."
	default:
		return "Done."
	}
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// newline boundaries so code blocks and lists stay readable.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
