package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"mediarelay/internal/domain"
	"mediarelay/internal/media"
	"mediarelay/internal/transport"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen   = 4000
	telegramPollTimeout = 30
	telegramSendBackoff = time.Second
)

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	Token   string
	APIBase string // default https://api.telegram.org
	Client  *transport.Client
	Logger  *slog.Logger
}

// Telegram sends replies and receives updates through the Bot API.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	retries int
	backoff time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewTelegram connects to the Bot API. It performs a getMe call, so an
// invalid token fails here.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = media.DefaultAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = transport.New(transport.Options{Logger: cfg.Logger})
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: cfg.Logger.With("component", "tgbotapi"), token: cfg.Token})

	endpoint := strings.TrimRight(cfg.APIBase, "/") + "/bot%s/%s"
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, cfg.Client.HTTP())
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", transport.StripURL(err))
	}
	cfg.Logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	return &Telegram{
		bot:     bot,
		retries: cfg.Client.Retries(),
		backoff: telegramSendBackoff,
		logger:  cfg.Logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Username returns the bot's @username without the at sign.
func (t *Telegram) Username() string { return t.bot.Self.UserName }

// Send delivers text to chatID, split into chunks below the platform limit.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.sendChunk(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk sends one chunk as plain text. Service output is not markup, so
// no parse mode is set. Rate limits honor retry_after; other failures back
// off linearly, both bounded by the configured retry count.
func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text string) error {
	var err error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if _, err = t.bot.Send(tgbotapi.NewMessage(chatID, text)); err == nil {
			return nil
		}
		err = transport.StripURL(err)
		if attempt == t.retries {
			break
		}

		wait := time.Duration(attempt+1) * t.backoff
		if after := retryAfter(err); after > 0 {
			wait = after
		}
		t.logger.Warn("telegram send error, retrying", "chat_id", chatID, "err", err, "backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("telegram send to %d: %w", chatID, err)
}

func retryAfter(err error) time.Duration {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr.RetryAfter > 0 {
		return time.Duration(ptr.RetryAfter) * time.Second
	}
	var val tgbotapi.Error
	if errors.As(err, &val) && val.RetryAfter > 0 {
		return time.Duration(val.RetryAfter) * time.Second
	}
	return 0
}

// SetWebhook registers url with the platform. secret, when set, is echoed
// back by Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (t *Telegram) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", url)
	params.AddNonEmpty("secret_token", secret)
	if _, err := t.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", transport.StripURL(err))
	}
	t.logger.Info("telegram webhook registered", "url", url)
	return nil
}

// DeleteWebhook removes any registered webhook so long polling can work.
func (t *Telegram) DeleteWebhook() error {
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", transport.StripURL(err))
	}
	return nil
}

// Poll receives updates by long polling until ctx is cancelled. Each update
// is handled on its own goroutine; Poll waits for them before returning.
func (t *Telegram) Poll(ctx context.Context, handler domain.UpdateHandler) error {
	if err := t.DeleteWebhook(); err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := t.bot.GetUpdatesChan(u)
	t.logger.Info("telegram polling started")

	defer t.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram polling stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := FromTelegram(update)
			if !ok {
				continue
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				handler.HandleUpdate(ctx, in)
			}()
		}
	}
}

// FromTelegram converts a platform update into an InboundUpdate. Edits,
// callback queries and updates without a chat are not relayed.
func FromTelegram(update tgbotapi.Update) (domain.InboundUpdate, bool) {
	msg := update.Message
	kind := domain.UpdateText
	if msg == nil {
		msg = update.ChannelPost
		kind = domain.UpdateChannelPost
	}
	if msg == nil || msg.Chat == nil {
		return domain.InboundUpdate{}, false
	}

	in := domain.InboundUpdate{
		ID:     update.UpdateID,
		Kind:   kind,
		ChatID: msg.Chat.ID,
		Text:   strings.TrimSpace(msg.Text),
	}
	if msg.From != nil {
		in.SenderID = msg.From.ID
	} else if msg.SenderChat != nil {
		in.SenderID = msg.SenderChat.ID
	}
	if in.Text == "" {
		in.Text = strings.TrimSpace(msg.Caption)
	}

	if d := msg.Document; d != nil {
		in.Document = &domain.Attachment{
			Kind:     domain.MediaDocument,
			FileID:   d.FileID,
			FileName: d.FileName,
			MimeType: d.MimeType,
			FileSize: int64(d.FileSize),
		}
	}
	for _, p := range msg.Photo {
		in.Photos = append(in.Photos, domain.Attachment{
			Kind:     domain.MediaPhoto,
			FileID:   p.FileID,
			FileSize: int64(p.FileSize),
			Width:    p.Width,
			Height:   p.Height,
		})
	}
	if v := msg.Video; v != nil {
		in.Video = &domain.Attachment{
			Kind:     domain.MediaVideo,
			FileID:   v.FileID,
			FileName: v.FileName,
			MimeType: v.MimeType,
			FileSize: int64(v.FileSize),
			Width:    v.Width,
			Height:   v.Height,
		}
	}
	if in.HasMedia() && kind == domain.UpdateText {
		in.Kind = domain.UpdateMedia
	}
	return in, true
}

// splitMessage splits msg into chunks of at most maxLen bytes, preferring
// newline boundaries in the second half of a chunk.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		for cut > 1 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// slogBotLogger routes tgbotapi's internal logging through slog. The library
// logs raw request errors, which carry the token in the URL.
type slogBotLogger struct {
	log   *slog.Logger
	token string
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Warn(l.redact(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Warn(l.redact(fmt.Sprintf(format, v...)))
}

func (l *slogBotLogger) redact(s string) string {
	s = strings.TrimSpace(s)
	if l.token == "" {
		return s
	}
	return strings.ReplaceAll(s, l.token, "***")
}
