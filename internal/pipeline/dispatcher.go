// Package pipeline sequences one update through classification, media
// retrieval, service submission and the reply to the chat.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mediarelay/internal/domain"
	"mediarelay/internal/media"
	"mediarelay/internal/metrics"
	"mediarelay/internal/service"

	"github.com/google/uuid"
)

// State is a step of the per-update pipeline.
type State int

const (
	StateIdle State = iota
	StateClassifying
	StateFetching
	StateSubmitting
	StateRelaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClassifying:
		return "classifying"
	case StateFetching:
		return "fetching"
	case StateSubmitting:
		return "submitting"
	case StateRelaying:
		return "relaying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultWelcomeText = "Hello! Send me a photo, a document or a video and I will reply with the processed result."
	DefaultAckText     = "received msg"
	DefaultTimeout     = 5 * time.Minute
)

// Fetcher retrieves media by platform file identifier.
type Fetcher interface {
	Fetch(ctx context.Context, fileID string, mode domain.PayloadMode) (domain.MediaPayload, error)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Resolver *media.Resolver
	Fetcher  Fetcher
	Adapter  service.Adapter
	Relay    *Relay

	WelcomeText string
	// Acknowledge sends AckText for updates that carry no usable media.
	Acknowledge bool
	AckText     string

	CallbackURL string
	Recipient   string
	MaxBytes    int64         // attachments whose size hint exceeds this fail fast; 0 disables
	Timeout     time.Duration // upper bound for one update

	Logger *slog.Logger
}

// Dispatcher runs the pipeline for one update at a time per call. It holds
// no per-update state, so concurrent calls are safe.
type Dispatcher struct {
	resolver    *media.Resolver
	fetcher     Fetcher
	adapter     service.Adapter
	relay       *Relay
	welcome     string
	acknowledge bool
	ackText     string
	callbackURL string
	recipient   string
	maxBytes    int64
	timeout     time.Duration
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Resolver == nil {
		cfg.Resolver = media.NewResolver()
	}
	if cfg.WelcomeText == "" {
		cfg.WelcomeText = DefaultWelcomeText
	}
	if cfg.AckText == "" {
		cfg.AckText = DefaultAckText
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		resolver:    cfg.Resolver,
		fetcher:     cfg.Fetcher,
		adapter:     cfg.Adapter,
		relay:       cfg.Relay,
		welcome:     cfg.WelcomeText,
		acknowledge: cfg.Acknowledge,
		ackText:     cfg.AckText,
		callbackURL: cfg.CallbackURL,
		recipient:   cfg.Recipient,
		maxBytes:    cfg.MaxBytes,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}
}

// HandleUpdate implements domain.UpdateHandler.
func (d *Dispatcher) HandleUpdate(ctx context.Context, u domain.InboundUpdate) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	d.Dispatch(ctx, u)
}

// Dispatch runs the pipeline for u and returns the state in which it ended.
// Every update that reaches StateFetching produces exactly one reply.
func (d *Dispatcher) Dispatch(ctx context.Context, u domain.InboundUpdate) State {
	metrics.UpdatesTotal.Inc()
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	logger := d.logger.With("request_id", uuid.NewString(), "update_id", u.ID, "chat_id", u.ChatID)
	logger.Debug("update received", "kind", u.Kind)

	// Classifying
	if isStartCommand(u.Text) {
		metrics.CommandsTotal.Inc()
		d.relay.Notify(ctx, u.ChatID, d.welcome)
		return StateClassifying
	}

	att, ok := d.resolver.Resolve(u)
	if !ok {
		metrics.IgnoredTotal.Inc()
		if d.acknowledge {
			d.relay.Notify(ctx, u.ChatID, d.ackText)
		}
		logger.Debug("no usable attachment", "kind", u.Kind, "has_media", u.HasMedia())
		return StateClassifying
	}
	metrics.MediaCounter(string(att.Kind)).Inc()
	logger = logger.With("media", att.Kind, "file_id", att.FileID)

	// Fetching
	payload, err := d.fetch(ctx, att)
	if err != nil {
		metrics.FetchFailures.Inc()
		logger.Error("media fetch failed", "err", err)
		d.relay.Relay(ctx, u.ChatID, Outcome{Err: err})
		return StateFetching
	}
	logger.Info("media fetched", "bytes", payload.Size(), "by_url", payload.IsURL())

	// Submitting
	start := time.Now()
	resp, err := d.adapter.Submit(ctx, payload, domain.SubmitContext{
		ChatID:      u.ChatID,
		CallbackURL: d.callbackURL,
		Recipient:   d.recipient,
	})
	metrics.Since(metrics.SubmitLatency, start)

	var reported *service.ServiceReportedError
	switch {
	case errors.As(err, &reported):
		metrics.ServiceReported.Inc()
		logger.Warn("service reported failure", "service", d.adapter.Name(), "message", reported.Message)
	case err != nil:
		metrics.SubmitFailures.Inc()
		logger.Error("submission failed", "service", d.adapter.Name(), "err", err)
		d.relay.Relay(ctx, u.ChatID, Outcome{Err: err})
		return StateSubmitting
	default:
		logger.Info("service answered", "service", d.adapter.Name(), "status", resp.Status, "body_len", len(resp.Body))
	}

	// Relaying
	d.relay.Relay(ctx, u.ChatID, Outcome{Text: resp.Body, Err: err})
	return StateRelaying
}

func (d *Dispatcher) fetch(ctx context.Context, att domain.Attachment) (domain.MediaPayload, error) {
	if d.maxBytes > 0 && att.FileSize > d.maxBytes {
		return domain.MediaPayload{}, &media.DownloadError{
			FilePath: att.FileID,
			Reason:   fmt.Sprintf("size %d exceeds %d bytes", att.FileSize, d.maxBytes),
		}
	}

	start := time.Now()
	payload, err := d.fetcher.Fetch(ctx, att.FileID, d.adapter.Mode())
	metrics.Since(metrics.FetchLatency, start)
	if err != nil {
		return domain.MediaPayload{}, err
	}
	if att.FileName != "" {
		payload.FileName = att.FileName
	}
	if att.MimeType != "" {
		payload.MimeType = att.MimeType
	}
	return payload, nil
}

// isStartCommand matches "/start", "/start@botname" and "/start <payload>".
func isStartCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd := fields[0]
	return cmd == "/start" || strings.HasPrefix(cmd, "/start@")
}
