package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

const (
	defaultTelegramTimeout = 8 * time.Second
	defaultTelegramRate    = 1
)

// sender is the part of *tele.Bot used for delivery.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram sends each reminder as a bot message.
type Telegram struct {
	bot      sender
	chat     *tele.Chat
	threadID int
	limiter  *rate.Limiter
	prefix   string
}

// NewTelegram builds an offline bot (no update polling) bound to one chat.
func NewTelegram(cfg TelegramConfig, title string) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat_id: %w", ErrNoTarget)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTelegramTimeout
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return newTelegram(b, cfg, title), nil
}

func newTelegram(bot sender, cfg TelegramConfig, title string) *Telegram {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultTelegramRate
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	return &Telegram{
		bot:      bot,
		chat:     &tele.Chat{ID: cfg.ChatID},
		threadID: cfg.ThreadID,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		prefix:   title,
	}
}

func (t *Telegram) Deliver(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	opt := &tele.SendOptions{ThreadID: t.threadID, DisableWebPagePreview: true}
	if _, err := t.bot.Send(t.chat, t.prefix+"\n"+text, opt); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
