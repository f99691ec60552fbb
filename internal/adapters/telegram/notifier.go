package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

// Sender is the subset of the bot API used for outgoing messages
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config contains Telegram bot configuration
type Config struct {
	Token          string
	Debug          bool
	HTTPTimeout    time.Duration
	RateLimitRate  int // messages per second (default: 20)
	RateLimitBurst int // default: 30
}

// Notifier sends plain HTML alerts to chats, throttled below the Telegram limit
type Notifier struct {
	sender  Sender
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewNotifier authorizes the bot token and creates a notifier
func NewNotifier(cfg Config, log *logger.Logger) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log.Infof("Authorized on account %s", api.Self.UserName)

	return NewNotifierWithSender(api, cfg, log), nil
}

// NewNotifierWithSender creates a notifier around an existing sender
func NewNotifierWithSender(sender Sender, cfg Config, log *logger.Logger) *Notifier {
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}

	return &Notifier{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
		log:     log.With("component", "telegram_notifier"),
	}
}

// Send delivers an HTML message to chatID
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "telegram rate limiter")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := n.sender.Send(msg); err != nil {
		return errors.Wrapf(err, "send telegram message to %d", chatID)
	}

	n.log.Debugw("Message sent", "chat_id", chatID, "length", len(text))
	return nil
}
